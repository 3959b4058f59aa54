// Package similarity ranks candidate companies by weighted, explainable
// similarity to one or more seed companies.
package similarity

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Dimension names, in scoring order.
const (
	DimVerticals    = "verticals"
	DimIndustryTags = "industry_tags"
	DimSector       = "sector"
	DimRevenue      = "revenue"
	DimEmployees    = "employees"
	DimFunding      = "funding"
	DimPublicStatus = "public_status"
	DimGeography    = "geography"
	DimFundingStage = "funding_stage"
)

// Tier maps a minimum similarity ratio to the fraction of max points awarded.
type Tier struct {
	MinRatio float64 `yaml:"min_ratio" json:"min_ratio"`
	Fraction float64 `yaml:"fraction" json:"fraction"`
}

// DimensionWeight configures one similarity dimension.
type DimensionWeight struct {
	MaxPoints float64 `yaml:"max_points" json:"max_points"`
	// Confidence is the trust placed in this dimension when it contributes
	// (0-1). Revenue and employee confidence is further scaled by the
	// provenance of the underlying figures.
	Confidence float64 `yaml:"confidence" json:"confidence"`
	// Tiers are only used by ratio dimensions. Ordered by MinRatio descending.
	Tiers []Tier `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// WeightTable is the full scoring scheme. Max points across all dimensions
// sum to 100.
type WeightTable struct {
	Verticals    DimensionWeight `yaml:"verticals" json:"verticals"`
	IndustryTags DimensionWeight `yaml:"industry_tags" json:"industry_tags"`
	Sector       DimensionWeight `yaml:"sector" json:"sector"`
	Revenue      DimensionWeight `yaml:"revenue" json:"revenue"`
	Employees    DimensionWeight `yaml:"employees" json:"employees"`
	Funding      DimensionWeight `yaml:"funding" json:"funding"`
	PublicStatus DimensionWeight `yaml:"public_status" json:"public_status"`
	Geography    DimensionWeight `yaml:"geography" json:"geography"`
	FundingStage DimensionWeight `yaml:"funding_stage" json:"funding_stage"`

	// RegionalFraction is the share of geography points awarded when two
	// companies sit in the same regional cluster but different countries.
	RegionalFraction float64 `yaml:"regional_fraction" json:"regional_fraction"`
	// MaxStageDistance is the largest funding-stage gap still considered similar.
	MaxStageDistance int `yaml:"max_stage_distance" json:"max_stage_distance"`
}

// DefaultWeights returns the production weighting. Revenue dominates:
// company size is the main determinant of comparability for peer analysis.
func DefaultWeights() WeightTable {
	return WeightTable{
		Verticals:    DimensionWeight{MaxPoints: 18, Confidence: 0.8},
		IndustryTags: DimensionWeight{MaxPoints: 8, Confidence: 0.7},
		Sector:       DimensionWeight{MaxPoints: 6, Confidence: 0.9},
		Revenue: DimensionWeight{
			MaxPoints:  42,
			Confidence: 1.0,
			Tiers: []Tier{
				{MinRatio: 0.75, Fraction: 1.0},
				{MinRatio: 0.5, Fraction: 0.7},
				{MinRatio: 0.25, Fraction: 0.35},
				{MinRatio: 0.1, Fraction: 0.1},
			},
		},
		Employees: DimensionWeight{
			MaxPoints:  13,
			Confidence: 1.0,
			Tiers: []Tier{
				{MinRatio: 0.7, Fraction: 1.0},
				{MinRatio: 0.5, Fraction: 0.7},
				{MinRatio: 0.25, Fraction: 0.3},
			},
		},
		Funding: DimensionWeight{
			MaxPoints:  4,
			Confidence: 0.6,
			Tiers: []Tier{
				{MinRatio: 0.5, Fraction: 1.0},
				{MinRatio: 0.2, Fraction: 0.5},
			},
		},
		PublicStatus:     DimensionWeight{MaxPoints: 4, Confidence: 0.9},
		Geography:        DimensionWeight{MaxPoints: 4, Confidence: 0.85},
		FundingStage:     DimensionWeight{MaxPoints: 1, Confidence: 0.6},
		RegionalFraction: 0.5,
		MaxStageDistance: 1,
	}
}

// Dimensions returns every dimension weight keyed by name, in scoring order.
func (w WeightTable) Dimensions() []NamedWeight {
	return []NamedWeight{
		{DimVerticals, w.Verticals},
		{DimIndustryTags, w.IndustryTags},
		{DimSector, w.Sector},
		{DimRevenue, w.Revenue},
		{DimEmployees, w.Employees},
		{DimFunding, w.Funding},
		{DimPublicStatus, w.PublicStatus},
		{DimGeography, w.Geography},
		{DimFundingStage, w.FundingStage},
	}
}

// NamedWeight pairs a dimension name with its weight.
type NamedWeight struct {
	Name string
	DimensionWeight
}

// MaxTotal returns the sum of max points across all dimensions.
func (w WeightTable) MaxTotal() float64 {
	var sum float64
	for _, d := range w.Dimensions() {
		sum += d.MaxPoints
	}
	return sum
}

// Validate checks that a WeightTable is internally consistent.
func (w WeightTable) Validate() error {
	var errs []string

	for _, d := range w.Dimensions() {
		if d.MaxPoints < 0 {
			errs = append(errs, fmt.Sprintf("%s.max_points must be >= 0", d.Name))
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			errs = append(errs, fmt.Sprintf("%s.confidence must be between 0 and 1", d.Name))
		}
		errs = append(errs, validateTiers(d.Name, d.Tiers)...)
	}

	ratioDims := map[string]DimensionWeight{
		DimRevenue:   w.Revenue,
		DimEmployees: w.Employees,
		DimFunding:   w.Funding,
	}
	for name, d := range ratioDims {
		if len(d.Tiers) == 0 {
			errs = append(errs, fmt.Sprintf("%s.tiers must not be empty", name))
		}
	}

	// Weights should be close to 100 (allow tolerance for floating-point).
	if sum := w.MaxTotal(); math.Abs(sum-100) > 1 {
		errs = append(errs, fmt.Sprintf("max points should sum to 100, got %.1f", sum))
	}

	if w.RegionalFraction < 0 || w.RegionalFraction > 1 {
		errs = append(errs, "regional_fraction must be between 0 and 1")
	}
	if w.MaxStageDistance < 0 {
		errs = append(errs, "max_stage_distance must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("similarity: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateTiers requires descending thresholds in (0, 1] with
// non-increasing fractions, so points never drop as similarity rises.
func validateTiers(name string, tiers []Tier) []string {
	var errs []string
	for i, t := range tiers {
		if t.MinRatio <= 0 || t.MinRatio > 1 {
			errs = append(errs, fmt.Sprintf("%s.tiers[%d].min_ratio must be in (0, 1]", name, i))
		}
		if t.Fraction < 0 || t.Fraction > 1 {
			errs = append(errs, fmt.Sprintf("%s.tiers[%d].fraction must be between 0 and 1", name, i))
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.MinRatio >= prev.MinRatio {
			errs = append(errs, fmt.Sprintf("%s.tiers must be ordered by min_ratio descending", name))
		}
		if t.Fraction > prev.Fraction {
			errs = append(errs, fmt.Sprintf("%s.tiers must not award more points at a lower ratio", name))
		}
	}
	return errs
}

// Hash returns a short stable hash of the table for log attribution of
// A/B weight schemes.
func (w WeightTable) Hash() string {
	data, err := json.Marshal(w)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// LoadWeights reads a YAML weight scheme. Dimensions absent from the file
// keep their default values.
func LoadWeights(path string) (WeightTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WeightTable{}, eris.Wrapf(err, "similarity: read weights %s", path)
	}

	// The YAML has a top-level "weights" key
	wrapper := struct {
		Weights WeightTable `yaml:"weights"`
	}{Weights: DefaultWeights()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return WeightTable{}, eris.Wrapf(err, "similarity: parse weights %s", path)
	}

	if err := wrapper.Weights.Validate(); err != nil {
		return WeightTable{}, err
	}
	return wrapper.Weights, nil
}

// tierFraction returns the fraction of the first tier whose threshold the
// ratio meets, or 0.
func tierFraction(tiers []Tier, ratio float64) float64 {
	for _, t := range tiers {
		if ratio >= t.MinRatio {
			return t.Fraction
		}
	}
	return 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
