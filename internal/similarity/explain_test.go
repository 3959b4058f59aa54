package similarity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/comps/internal/model"
)

func TestMinimalExplanation(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{score: 92.4, want: "This company is highly similar to the input company (similarity score 92/100)."},
		{score: 80, want: "This company is highly similar to the input company (similarity score 80/100)."},
		{score: 61, want: "This company is comparable to the input company (similarity score 61/100)."},
		{score: 12, want: "This company shares some characteristics with the input company (similarity score 12/100)."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MinimalExplanation(tt.score))
	}
}

func TestRuleBasedExplainer(t *testing.T) {
	seed := &model.Company{ID: 1, Name: "Acme", IndustrySector: "Software"}
	cand := &model.Company{ID: 2, Name: "Beta Corp", IndustrySector: "software"}
	notes := []string{
		"Shared verticals: cms",
		"Similar revenue: $150M vs $140M",
		"Similar headcount: 1,200 vs 1,100 employees",
		"Same country: US",
	}

	got := NewRuleBasedExplainer().Explain(context.Background(), seed, cand, notes, 85)
	assert.Equal(t,
		"Beta Corp is highly similar to Acme (similarity score 85/100): shared verticals: cms; "+
			"similar revenue: $150M vs $140M; similar headcount: 1,200 vs 1,100 employees. "+
			"Both companies operate in the software sector.",
		got)
	assert.NotContains(t, got, "Same country")
}

func TestRuleBasedExplainer_NoNotes(t *testing.T) {
	seed := &model.Company{ID: 1}
	cand := &model.Company{ID: 2}
	got := (&RuleBasedExplainer{MaxNotes: 2}).Explain(context.Background(), seed, cand, nil, 40)
	assert.Equal(t, "Company 2 shares some characteristics with Company 1 (similarity score 40/100).", got)
}

func TestRuleBasedExplainer_NilCompanyDegrades(t *testing.T) {
	got := NewRuleBasedExplainer().Explain(context.Background(), nil, &model.Company{ID: 2}, nil, 70)
	assert.Equal(t, MinimalExplanation(70), got)
}
