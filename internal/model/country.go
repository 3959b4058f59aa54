package model

import (
	"slices"
	"strings"
)

// countryAliases folds common spellings onto ISO 3166-1 alpha-2 codes.
var countryAliases = map[string]string{
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"u.s.":                     "US",
	"canada":                   "CA",
	"mexico":                   "MX",
	"united kingdom":           "GB",
	"uk":                       "GB",
	"great britain":            "GB",
	"england":                  "GB",
	"germany":                  "DE",
	"france":                   "FR",
	"netherlands":              "NL",
	"ireland":                  "IE",
	"spain":                    "ES",
	"italy":                    "IT",
	"sweden":                   "SE",
	"switzerland":              "CH",
	"israel":                   "IL",
	"india":                    "IN",
	"china":                    "CN",
	"japan":                    "JP",
	"singapore":                "SG",
	"australia":                "AU",
	"brazil":                   "BR",
}

// CountryCode normalizes a country label. Unknown names are upper-cased as-is.
func CountryCode(country string) string {
	c := strings.TrimSpace(country)
	if c == "" {
		return ""
	}
	if code, ok := countryAliases[strings.ToLower(c)]; ok {
		return code
	}
	return strings.ToUpper(c)
}

// CountryLabels returns the lower-cased labels that fold to the same code as
// country, sorted. Stores match a country filter against any of them.
func CountryLabels(country string) []string {
	code := CountryCode(country)
	if code == "" {
		return nil
	}
	labels := []string{strings.ToLower(code)}
	for alias, c := range countryAliases {
		if c == code {
			labels = append(labels, alias)
		}
	}
	slices.Sort(labels)
	return slices.Compact(labels)
}
