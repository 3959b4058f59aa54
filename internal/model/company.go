// Package model defines the company and feedback records shared by the
// similarity engine, its stores, and the HTTP layer.
package model

import (
	"github.com/rotisserie/eris"
)

// MaxFundingStage is the ordinal assigned to public (post-IPO) companies.
const MaxFundingStage = 7

// DataSource identifies where a size metric came from.
type DataSource string

const (
	SourcePitchBook  DataSource = "pitchbook"
	SourceCrunchbase DataSource = "crunchbase"
	SourceEstimate   DataSource = "estimate"
	SourceUnknown    DataSource = ""
)

// Confidence returns how much a metric from this source can be trusted (0-1).
// PitchBook reports exact figures; Crunchbase only publishes ranges.
func (s DataSource) Confidence() float64 {
	switch s {
	case SourcePitchBook:
		return 0.95
	case SourceCrunchbase:
		return 0.7
	case SourceEstimate:
		return 0.5
	default:
		return 0.6
	}
}

// ParseDataSource maps free-form provenance labels onto a DataSource.
func ParseDataSource(s string) DataSource {
	switch DataSource(s) {
	case SourcePitchBook, SourceCrunchbase, SourceEstimate:
		return DataSource(s)
	default:
		return SourceUnknown
	}
}

// Company is a scoring snapshot of a portfolio company. Optional metrics
// are pointers: nil means the value is unknown, not zero.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Taxonomy
	IndustryTags   []string `json:"industry_tags,omitempty"`
	IndustryGroup  string   `json:"industry_group,omitempty"`
	IndustrySector string   `json:"industry_sector,omitempty"`
	Verticals      string   `json:"verticals,omitempty"` // comma-delimited

	// Size
	EmployeeCount   *int       `json:"employee_count,omitempty"`
	EmployeeSource  DataSource `json:"employee_source,omitempty"`
	RevenueMillions *float64   `json:"current_revenue_usd,omitempty"` // millions USD
	RevenueSource   DataSource `json:"revenue_source,omitempty"`
	TotalFundingUSD *float64   `json:"total_funding_usd,omitempty"`
	ValuationUSD    *float64   `json:"valuation_usd,omitempty"`

	// Status
	IsPublic     *bool `json:"is_public,omitempty"`
	FundingStage *int  `json:"funding_stage,omitempty"` // 0-7, IPO = 7

	// Geography
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`

	// Backing PE/VC firms.
	InvestorIDs []int64 `json:"investor_ids,omitempty"`
}

// Validate checks the invariants a snapshot must satisfy before scoring.
func (c *Company) Validate() error {
	if c.RevenueMillions != nil && *c.RevenueMillions < 0 {
		return eris.Errorf("model: company %d: revenue must be >= 0", c.ID)
	}
	if c.EmployeeCount != nil && *c.EmployeeCount < 0 {
		return eris.Errorf("model: company %d: employee count must be >= 0", c.ID)
	}
	if c.TotalFundingUSD != nil && *c.TotalFundingUSD < 0 {
		return eris.Errorf("model: company %d: total funding must be >= 0", c.ID)
	}
	if c.FundingStage != nil && (*c.FundingStage < 0 || *c.FundingStage > MaxFundingStage) {
		return eris.Errorf("model: company %d: funding stage must be between 0 and %d", c.ID, MaxFundingStage)
	}
	return nil
}

// Summary returns the compact representation rendered in match results.
func (c *Company) Summary() CompanySummary {
	return CompanySummary{
		ID:              c.ID,
		Name:            c.Name,
		IndustrySector:  c.IndustrySector,
		IndustryGroup:   c.IndustryGroup,
		Country:         c.Country,
		State:           c.State,
		City:            c.City,
		RevenueMillions: c.RevenueMillions,
		EmployeeCount:   c.EmployeeCount,
		IsPublic:        c.IsPublic,
	}
}

// CompanySummary is the subset of a Company returned to API callers.
type CompanySummary struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	IndustrySector  string   `json:"industry_sector,omitempty"`
	IndustryGroup   string   `json:"industry_group,omitempty"`
	Country         string   `json:"country,omitempty"`
	State           string   `json:"state,omitempty"`
	City            string   `json:"city,omitempty"`
	RevenueMillions *float64 `json:"current_revenue_usd,omitempty"`
	EmployeeCount   *int     `json:"employee_count,omitempty"`
	IsPublic        *bool    `json:"is_public,omitempty"`
}

// Firm is a private-equity or venture firm that backs portfolio companies.
type Firm struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country,omitempty"`
}
