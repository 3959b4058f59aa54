package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/comps/internal/model"
)

func fullCompany() *model.Company {
	return &model.Company{
		ID:              1,
		Name:            "Acme Analytics",
		IndustryTags:    []string{"SaaS", "B2B"},
		IndustrySector:  "Software",
		Verticals:       "Digital Marketing Software, CMS",
		EmployeeCount:   ptrInt(1200),
		RevenueMillions: ptrFloat64(150),
		TotalFundingUSD: ptrFloat64(90e6),
		IsPublic:        ptrBool(false),
		FundingStage:    ptrInt(4),
		Country:         "US",
		State:           "NY",
		City:            "New York",
	}
}

func TestCompare_SelfIsUpperBound(t *testing.T) {
	w := DefaultWeights()

	t.Run("fully populated", func(t *testing.T) {
		c := fullCompany()
		res := Compare(c, c, w)
		assert.Equal(t, w.MaxTotal(), res.Score)
		assert.Equal(t, 9, res.CategoriesWithScore)
	})

	t.Run("partially populated", func(t *testing.T) {
		c := &model.Company{IndustrySector: "Software", RevenueMillions: ptrFloat64(20)}
		res := Compare(c, c, w)
		assert.Equal(t, w.Sector.MaxPoints+w.Revenue.MaxPoints, res.Score)
		assert.Equal(t, 2, res.CategoriesWithScore)
	})
}

func TestCompare_RevenueAndHeadcountDominate(t *testing.T) {
	w := DefaultWeights()
	seed := &model.Company{
		ID:              1,
		RevenueMillions: ptrFloat64(150),
		EmployeeCount:   ptrInt(1200),
		Verticals:       "Digital Marketing Software, CMS",
	}
	peer := &model.Company{
		ID:              2,
		RevenueMillions: ptrFloat64(140),
		EmployeeCount:   ptrInt(1100),
		Verticals:       "Digital Marketing Software, A/B Testing",
	}
	giant := &model.Company{
		ID:              3,
		RevenueMillions: ptrFloat64(4500),
		EmployeeCount:   ptrInt(26000),
		Verticals:       "Digital Marketing Software, A/B Testing",
	}

	near := Compare(seed, peer, w)
	far := Compare(seed, giant, w)

	assert.Equal(t, 61.0, near.Score)
	assert.Equal(t, 6.0, far.Score)
	assert.Greater(t, near.Score, far.Score)
	assert.Equal(t, []string{
		"Shared verticals: digital marketing software",
		"Similar revenue: $150M vs $140M",
		"Similar headcount: 1,200 vs 1,100 employees",
	}, near.Notes)
	// verticals 0.8, revenue and headcount 0.6 from unknown provenance
	assert.InDelta(t, (0.8+0.6+0.6)/3, near.Confidence, 1e-9)
}

func TestAggregate(t *testing.T) {
	t.Run("no contributing dimensions", func(t *testing.T) {
		res := Aggregate([]DimensionScore{
			{Dimension: DimRevenue, Comparable: true},
			{Dimension: DimSector},
		})
		assert.Zero(t, res.Score)
		assert.Zero(t, res.Confidence)
		assert.Zero(t, res.CategoriesWithScore)
		assert.Empty(t, res.Notes)
	})

	t.Run("clamps to 100", func(t *testing.T) {
		res := Aggregate([]DimensionScore{
			{Dimension: DimRevenue, Points: 80, Confidence: 1},
			{Dimension: DimSector, Points: 40, Confidence: 0.5},
		})
		assert.Equal(t, 100.0, res.Score)
		assert.Equal(t, 0.75, res.Confidence)
		assert.Equal(t, 2, res.CategoriesWithScore)
	})

	t.Run("rounds to two decimals", func(t *testing.T) {
		res := Aggregate([]DimensionScore{
			{Dimension: DimVerticals, Points: 1.0 / 3, Confidence: 0.8},
			{Dimension: DimSector, Points: 1.0 / 3, Confidence: 0.8},
		})
		assert.Equal(t, 0.67, res.Score)
	})

	t.Run("notes in dimension order", func(t *testing.T) {
		res := Aggregate([]DimensionScore{
			{Dimension: DimSector, Points: 6, Confidence: 0.9, Notes: []string{"Same sector: Software"}},
			{Dimension: DimRevenue, Comparable: true},
			{Dimension: DimGeography, Points: 4, Confidence: 0.85, Notes: []string{"Same country: US", "Same state: NY"}},
		})
		assert.Equal(t, []string{"Same sector: Software", "Same country: US", "Same state: NY"}, res.Notes)
	})
}

func TestCompare_ScoreAndConfidenceBounds(t *testing.T) {
	w := DefaultWeights()
	companies := []*model.Company{
		fullCompany(),
		{ID: 2},
		{ID: 3, Country: "Germany", RevenueMillions: ptrFloat64(3)},
		{ID: 4, Verticals: "Healthcare", IsPublic: ptrBool(true), EmployeeCount: ptrInt(50000)},
	}
	for _, a := range companies {
		for _, b := range companies {
			res := Compare(a, b, w)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 100.0)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
			assert.Equal(t, res.CategoriesWithScore == 0, res.Confidence == 0)
		}
	}
}
