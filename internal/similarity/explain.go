package similarity

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/metrics"
	"github.com/sells-group/comps/internal/model"
)

// Explainer turns a scored match into a short natural-language reasoning.
// Implementations must be side-effect free and must never fail: on any
// internal problem they degrade to MinimalExplanation.
type Explainer interface {
	Explain(ctx context.Context, seed, cand *model.Company, notes []string, score float64) string
}

// Score tiers for the opening clause.
const (
	HighSimilarityScore       = 80
	ComparableSimilarityScore = 60
)

// DefaultMaxNotes is how many match notes a rule-based explanation cites.
const DefaultMaxNotes = 3

func tierPhrase(score float64) string {
	switch {
	case score >= HighSimilarityScore:
		return "is highly similar to"
	case score >= ComparableSimilarityScore:
		return "is comparable to"
	default:
		return "shares some characteristics with"
	}
}

// MinimalExplanation is the templated sentence used when richer text
// cannot be produced. It depends only on the score tier.
func MinimalExplanation(score float64) string {
	return fmt.Sprintf("This company %s the input company (similarity score %.0f/100).", tierPhrase(score), score)
}

// RuleBasedExplainer builds explanations from the score tier and match notes.
type RuleBasedExplainer struct {
	MaxNotes int
}

// NewRuleBasedExplainer creates a RuleBasedExplainer citing up to
// DefaultMaxNotes notes.
func NewRuleBasedExplainer() *RuleBasedExplainer {
	return &RuleBasedExplainer{MaxNotes: DefaultMaxNotes}
}

// Explain implements Explainer.
func (e *RuleBasedExplainer) Explain(_ context.Context, seed, cand *model.Company, notes []string, score float64) (out string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("similarity: rule explanation failed", zap.Any("panic", r))
			metrics.Explanations.WithLabelValues("rules", metrics.OutcomeFallback).Inc()
			out = MinimalExplanation(score)
		}
	}()

	if seed == nil || cand == nil {
		metrics.Explanations.WithLabelValues("rules", metrics.OutcomeFallback).Inc()
		return MinimalExplanation(score)
	}

	maxNotes := e.MaxNotes
	if maxNotes <= 0 {
		maxNotes = DefaultMaxNotes
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (similarity score %.0f/100)", displayName(cand), tierPhrase(score), displayName(seed), score)

	if len(notes) > 0 {
		cited := notes
		if len(cited) > maxNotes {
			cited = cited[:maxNotes]
		}
		lowered := make([]string, len(cited))
		for i, n := range cited {
			lowered[i] = lowerFirst(n)
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(lowered, "; "))
	}
	b.WriteString(".")

	if same, ok := SameText(seed.IndustrySector, cand.IndustrySector); ok && same {
		fmt.Fprintf(&b, " Both companies operate in the %s sector.", strings.TrimSpace(cand.IndustrySector))
	}

	metrics.Explanations.WithLabelValues("rules", metrics.OutcomeOK).Inc()
	return b.String()
}

func displayName(c *model.Company) string {
	if strings.TrimSpace(c.Name) != "" {
		return strings.TrimSpace(c.Name)
	}
	return fmt.Sprintf("Company %d", c.ID)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
