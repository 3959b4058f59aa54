package ingest

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps/internal/model"
)

// columnAliases maps accepted header spellings onto canonical field names.
var columnAliases = map[string]string{
	"id":                      "id",
	"company_id":              "id",
	"name":                    "name",
	"company_name":            "name",
	"industry_tags":           "industry_tags",
	"tags":                    "industry_tags",
	"categories":              "industry_tags",
	"industry_group":          "industry_group",
	"primary_industry_group":  "industry_group",
	"industry_sector":         "industry_sector",
	"sector":                  "industry_sector",
	"primary_industry_sector": "industry_sector",
	"verticals":               "verticals",
	"employee_count":          "employee_count",
	"employees":               "employee_count",
	"employee_source":         "employee_source",
	"current_revenue_usd":     "revenue",
	"revenue":                 "revenue",
	"revenue_millions":        "revenue",
	"revenue_source":          "revenue_source",
	"total_funding_usd":       "total_funding_usd",
	"total_raised":            "total_funding_usd",
	"valuation_usd":           "valuation_usd",
	"valuation":               "valuation_usd",
	"is_public":               "is_public",
	"public":                  "is_public",
	"funding_stage":           "funding_stage",
	"stage":                   "funding_stage",
	"country":                 "country",
	"hq_country":              "country",
	"state":                   "state",
	"hq_state":                "state",
	"city":                    "city",
	"hq_city":                 "city",
	"investor_ids":            "investor_ids",
	"investors":               "investor_ids",
}

// Columns resolves a header row to canonical field positions. Unknown
// columns are ignored; id and name are required.
type Columns map[string]int

// ParseHeader builds Columns from a header row.
func ParseHeader(header []string) (Columns, error) {
	cols := make(Columns, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if canon, ok := columnAliases[key]; ok {
			if _, dup := cols[canon]; !dup {
				cols[canon] = i
			}
		}
	}
	for _, req := range []string{"id", "name"} {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("ingest: header missing required column %q", req)
		}
	}
	return cols, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, h)
}

// ParseCompanyRow maps one CSV row onto a Company using the header.
func ParseCompanyRow(header, row []string) (model.Company, error) {
	cols, err := ParseHeader(header)
	if err != nil {
		return model.Company{}, err
	}
	return cols.Parse(row)
}

// Parse maps one row onto a Company. Blank optional cells stay nil.
func (cols Columns) Parse(row []string) (model.Company, error) {
	get := func(field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var c model.Company
	id, err := strconv.ParseInt(get("id"), 10, 64)
	if err != nil || id <= 0 {
		return c, eris.Errorf("ingest: invalid id %q", get("id"))
	}
	c.ID = id
	c.Name = get("name")
	if c.Name == "" {
		return c, eris.Errorf("ingest: company %d: name is required", id)
	}

	c.IndustryTags = splitList(get("industry_tags"))
	c.IndustryGroup = get("industry_group")
	c.IndustrySector = get("industry_sector")
	c.Verticals = get("verticals")
	c.Country = get("country")
	c.State = get("state")
	c.City = get("city")
	c.EmployeeSource = model.ParseDataSource(strings.ToLower(get("employee_source")))
	c.RevenueSource = model.ParseDataSource(strings.ToLower(get("revenue_source")))

	if c.EmployeeCount, err = parseInt(get("employee_count")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: employee_count", id)
	}
	if c.RevenueMillions, err = parseFloat(get("revenue")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: revenue", id)
	}
	if c.TotalFundingUSD, err = parseFloat(get("total_funding_usd")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: total_funding_usd", id)
	}
	if c.ValuationUSD, err = parseFloat(get("valuation_usd")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: valuation_usd", id)
	}
	if c.IsPublic, err = parseBool(get("is_public")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: is_public", id)
	}
	if c.FundingStage, err = ParseFundingStage(get("funding_stage")); err != nil {
		return c, eris.Wrapf(err, "ingest: company %d: funding_stage", id)
	}
	for _, s := range splitList(get("investor_ids")) {
		fid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return c, eris.Errorf("ingest: company %d: invalid investor id %q", id, s)
		}
		c.InvestorIDs = append(c.InvestorIDs, fid)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

var stageLabels = map[string]int{
	"preseed":   0,
	"angel":     0,
	"seed":      1,
	"seriesa":   2,
	"seriesb":   3,
	"seriesc":   4,
	"seriesd":   5,
	"seriesd+":  5,
	"seriese":   5,
	"seriesf":   5,
	"late":      6,
	"latestage": 6,
	"growth":    6,
	"pe":        6,
	"buyout":    6,
	"public":    7,
	"ipo":       7,
}

// ParseFundingStage accepts an ordinal 0-7 or a stage label such as
// "Series B" or "IPO". Blank returns nil.
func ParseFundingStage(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > model.MaxFundingStage {
			return nil, eris.Errorf("stage %d out of range 0-%d", n, model.MaxFundingStage)
		}
		return &n, nil
	}
	key := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	n, ok := stageLabels[key]
	if !ok {
		return nil, eris.Errorf("unknown stage %q", s)
	}
	return &n, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' })
	if len(parts) == 1 {
		parts = strings.Split(s, ",")
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("invalid number %q", s)
	}
	n := int(f)
	return &n, nil
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "$")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("invalid number %q", s)
	}
	return &f, nil
}

func parseBool(s string) (*bool, error) {
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "true", "t", "yes", "y", "1", "public":
		v := true
		return &v, nil
	case "false", "f", "no", "n", "0", "private":
		v := false
		return &v, nil
	default:
		return nil, eris.Errorf("invalid boolean %q", s)
	}
}
