package similarity

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/comps/internal/model"
)

// maxSharedTokensInNote caps how many shared tokens a note lists.
const maxSharedTokensInNote = 3

// DimensionScore is the transient result of comparing one attribute family
// for a (seed, candidate) pair.
type DimensionScore struct {
	Dimension      string   `json:"dimension"`
	Points         float64  `json:"points"`
	MaxPoints      float64  `json:"max_points"`
	SeedValue      string   `json:"seed_value,omitempty"`
	CandidateValue string   `json:"candidate_value,omitempty"`
	Similarity     float64  `json:"similarity"` // ratio, Jaccard index, or 1/0 match flag
	Comparable     bool     `json:"comparable"` // both sides had data
	Confidence     float64  `json:"confidence"`
	Notes          []string `json:"notes,omitempty"`
}

// Contributed reports whether the dimension awarded any points.
func (d DimensionScore) Contributed() bool {
	return d.Points > 0
}

type scoreFunc func(seed, cand *model.Company, w WeightTable) DimensionScore

// scorers run in a fixed order so notes are emitted deterministically.
var scorers = []scoreFunc{
	scoreVerticals,
	scoreIndustryTags,
	scoreSector,
	scoreRevenue,
	scoreEmployees,
	scoreFunding,
	scorePublicStatus,
	scoreGeography,
	scoreFundingStage,
}

// ScorePair compares a candidate against a seed on every dimension.
func ScorePair(seed, cand *model.Company, w WeightTable) []DimensionScore {
	out := make([]DimensionScore, 0, len(scorers))
	for _, fn := range scorers {
		out = append(out, fn(seed, cand, w))
	}
	return out
}

func scoreVerticals(seed, cand *model.Company, w WeightTable) DimensionScore {
	return scoreTokenOverlap(DimVerticals, "Shared verticals",
		ParseTokens(seed.Verticals), ParseTokens(cand.Verticals),
		seed.Verticals, cand.Verticals, w.Verticals)
}

func scoreIndustryTags(seed, cand *model.Company, w WeightTable) DimensionScore {
	return scoreTokenOverlap(DimIndustryTags, "Shared industry tags",
		NewTokenSet(seed.IndustryTags), NewTokenSet(cand.IndustryTags),
		strings.Join(seed.IndustryTags, ", "), strings.Join(cand.IndustryTags, ", "), w.IndustryTags)
}

// scoreTokenOverlap awards points linear in the Jaccard index.
func scoreTokenOverlap(dim, label string, a, b TokenSet, rawA, rawB string, dw DimensionWeight) DimensionScore {
	ds := DimensionScore{
		Dimension:      dim,
		MaxPoints:      dw.MaxPoints,
		SeedValue:      rawA,
		CandidateValue: rawB,
	}
	j, ok := Jaccard(a, b)
	if !ok {
		return ds
	}
	ds.Comparable = true
	ds.Similarity = j
	ds.Points = round2(j * dw.MaxPoints)
	if ds.Points > 0 {
		ds.Confidence = dw.Confidence
		shared := a.Intersection(b)
		if len(shared) > maxSharedTokensInNote {
			shared = shared[:maxSharedTokensInNote]
		}
		ds.Notes = []string{fmt.Sprintf("%s: %s", label, strings.Join(shared, ", "))}
	}
	return ds
}

func scoreSector(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimSector,
		MaxPoints:      w.Sector.MaxPoints,
		SeedValue:      seed.IndustrySector,
		CandidateValue: cand.IndustrySector,
	}
	match, ok := SameText(seed.IndustrySector, cand.IndustrySector)
	if !ok {
		return ds
	}
	ds.Comparable = true
	if match {
		ds.Similarity = 1
		ds.Points = w.Sector.MaxPoints
		ds.Confidence = w.Sector.Confidence
		ds.Notes = []string{"Same sector: " + strings.TrimSpace(cand.IndustrySector)}
	}
	return ds
}

func scoreRevenue(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimRevenue,
		MaxPoints:      w.Revenue.MaxPoints,
		SeedValue:      formatMillions(seed.RevenueMillions),
		CandidateValue: formatMillions(cand.RevenueMillions),
	}
	ratio, ok := Ratio(seed.RevenueMillions, cand.RevenueMillions)
	if !ok {
		return ds
	}
	ds.Comparable = true
	ds.Similarity = ratio
	ds.Points = round2(w.Revenue.MaxPoints * tierFraction(w.Revenue.Tiers, ratio))
	if ds.Points > 0 {
		ds.Confidence = w.Revenue.Confidence * provenance(seed.RevenueSource, cand.RevenueSource)
		ds.Notes = []string{fmt.Sprintf("Similar revenue: %s vs %s", ds.SeedValue, ds.CandidateValue)}
	}
	return ds
}

func scoreEmployees(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimEmployees,
		MaxPoints:      w.Employees.MaxPoints,
		SeedValue:      formatCount(seed.EmployeeCount),
		CandidateValue: formatCount(cand.EmployeeCount),
	}
	ratio, ok := IntRatio(seed.EmployeeCount, cand.EmployeeCount)
	if !ok {
		return ds
	}
	ds.Comparable = true
	ds.Similarity = ratio
	ds.Points = round2(w.Employees.MaxPoints * tierFraction(w.Employees.Tiers, ratio))
	if ds.Points > 0 {
		ds.Confidence = w.Employees.Confidence * provenance(seed.EmployeeSource, cand.EmployeeSource)
		ds.Notes = []string{fmt.Sprintf("Similar headcount: %s vs %s employees", ds.SeedValue, ds.CandidateValue)}
	}
	return ds
}

func scoreFunding(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimFunding,
		MaxPoints:      w.Funding.MaxPoints,
		SeedValue:      formatUSD(seed.TotalFundingUSD),
		CandidateValue: formatUSD(cand.TotalFundingUSD),
	}
	ratio, ok := Ratio(seed.TotalFundingUSD, cand.TotalFundingUSD)
	if !ok {
		return ds
	}
	ds.Comparable = true
	ds.Similarity = ratio
	ds.Points = round2(w.Funding.MaxPoints * tierFraction(w.Funding.Tiers, ratio))
	if ds.Points > 0 {
		ds.Confidence = w.Funding.Confidence
		ds.Notes = []string{fmt.Sprintf("Similar total funding: %s vs %s", ds.SeedValue, ds.CandidateValue)}
	}
	return ds
}

func scorePublicStatus(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimPublicStatus,
		MaxPoints:      w.PublicStatus.MaxPoints,
		SeedValue:      publicLabel(seed.IsPublic),
		CandidateValue: publicLabel(cand.IsPublic),
	}
	match, ok := SameBool(seed.IsPublic, cand.IsPublic)
	if !ok {
		return ds
	}
	ds.Comparable = true
	if match {
		ds.Similarity = 1
		ds.Points = w.PublicStatus.MaxPoints
		ds.Confidence = w.PublicStatus.Confidence
		ds.Notes = []string{"Both " + publicLabel(cand.IsPublic)}
	}
	return ds
}

// scoreGeography awards full points for the same country and partial
// credit for the same regional cluster. Same state/city only adds notes.
func scoreGeography(seed, cand *model.Company, w WeightTable) DimensionScore {
	a, b := model.CountryCode(seed.Country), model.CountryCode(cand.Country)
	ds := DimensionScore{
		Dimension:      DimGeography,
		MaxPoints:      w.Geography.MaxPoints,
		SeedValue:      a,
		CandidateValue: b,
	}
	if a == "" || b == "" {
		return ds
	}
	ds.Comparable = true

	switch {
	case a == b:
		ds.Similarity = 1
		ds.Points = w.Geography.MaxPoints
		ds.Notes = append(ds.Notes, "Same country: "+b)
		if same, ok := SameText(seed.State, cand.State); ok && same {
			ds.Notes = append(ds.Notes, "Same state: "+strings.TrimSpace(cand.State))
			if same, ok := SameText(seed.City, cand.City); ok && same {
				ds.Notes = append(ds.Notes, "Same city: "+strings.TrimSpace(cand.City))
			}
		}
	case regionOf(a) != "" && regionOf(a) == regionOf(b):
		ds.Similarity = w.RegionalFraction
		ds.Points = round2(w.Geography.MaxPoints * w.RegionalFraction)
		if ds.Points > 0 {
			ds.Notes = append(ds.Notes, "Same region: "+regionOf(b))
		}
	}
	if ds.Points > 0 {
		ds.Confidence = w.Geography.Confidence
	}
	return ds
}

func scoreFundingStage(seed, cand *model.Company, w WeightTable) DimensionScore {
	ds := DimensionScore{
		Dimension:      DimFundingStage,
		MaxPoints:      w.FundingStage.MaxPoints,
		SeedValue:      stageName(seed.FundingStage),
		CandidateValue: stageName(cand.FundingStage),
	}
	dist, ok := StageDistance(seed.FundingStage, cand.FundingStage)
	if !ok {
		return ds
	}
	ds.Comparable = true
	if dist <= w.MaxStageDistance {
		ds.Similarity = 1
		ds.Points = w.FundingStage.MaxPoints
		ds.Confidence = w.FundingStage.Confidence
		if dist == 0 {
			ds.Notes = []string{"Same funding stage: " + ds.CandidateValue}
		} else {
			ds.Notes = []string{fmt.Sprintf("Similar funding stage: %s vs %s", ds.SeedValue, ds.CandidateValue)}
		}
	}
	return ds
}

// provenance is the trust in a comparison, bounded by the weaker source.
func provenance(a, b model.DataSource) float64 {
	return math.Min(a.Confidence(), b.Confidence())
}

var stageNames = [...]string{
	"Pre-Seed",
	"Seed",
	"Series A",
	"Series B",
	"Series C",
	"Series D+",
	"Late Stage",
	"Public",
}

func stageName(stage *int) string {
	if stage == nil {
		return ""
	}
	if *stage < 0 || *stage >= len(stageNames) {
		return fmt.Sprintf("stage %d", *stage)
	}
	return stageNames[*stage]
}

func publicLabel(v *bool) string {
	switch {
	case v == nil:
		return ""
	case *v:
		return "public"
	default:
		return "private"
	}
}

// formatMillions renders a revenue figure held in millions of USD.
func formatMillions(v *float64) string {
	if v == nil {
		return ""
	}
	switch {
	case *v >= 1000:
		return fmt.Sprintf("$%.1fB", *v/1000)
	case *v >= 10:
		return fmt.Sprintf("$%.0fM", *v)
	default:
		return fmt.Sprintf("$%.1fM", *v)
	}
}

// formatUSD renders a whole-dollar amount in millions or billions.
func formatUSD(v *float64) string {
	if v == nil {
		return ""
	}
	m := *v / 1e6
	return formatMillions(&m)
}

func formatCount(v *int) string {
	if v == nil {
		return ""
	}
	return message.NewPrinter(language.English).Sprintf("%d", *v)
}
