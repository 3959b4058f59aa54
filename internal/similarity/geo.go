package similarity

// regions groups countries into clusters that earn partial geography credit.
var regions = map[string]string{
	"US": "North America", "CA": "North America", "MX": "North America",

	"GB": "Europe", "IE": "Europe", "DE": "Europe", "FR": "Europe", "NL": "Europe",
	"BE": "Europe", "LU": "Europe", "ES": "Europe", "PT": "Europe", "IT": "Europe",
	"AT": "Europe", "CH": "Europe", "SE": "Europe", "NO": "Europe", "DK": "Europe",
	"FI": "Europe", "PL": "Europe", "CZ": "Europe", "EE": "Europe",

	"CN": "Asia-Pacific", "HK": "Asia-Pacific", "TW": "Asia-Pacific", "JP": "Asia-Pacific",
	"KR": "Asia-Pacific", "SG": "Asia-Pacific", "IN": "Asia-Pacific", "AU": "Asia-Pacific",
	"NZ": "Asia-Pacific",

	"BR": "Latin America", "AR": "Latin America", "CL": "Latin America",
	"CO": "Latin America", "PE": "Latin America",

	"IL": "Middle East", "AE": "Middle East", "SA": "Middle East",
}

// regionOf returns the regional cluster for a normalized country code.
func regionOf(code string) string {
	return regions[code]
}
