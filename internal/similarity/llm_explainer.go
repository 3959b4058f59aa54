package similarity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/comps/internal/metrics"
	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/resilience"
	"github.com/sells-group/comps/pkg/anthropic"
)

// explainPrompt is the shared system prompt for LLM explanations.
const explainPrompt = `You write one-paragraph explanations of why a candidate company was matched as a comparable to an input company.
Use only the facts provided. Do not invent numbers, customers, or products.
Write at most three sentences in plain prose, no lists or headings, and mention the similarity score once.`

// explainTemperature keeps wording stable across repeated requests.
const explainTemperature = 0.2

// LLMExplainerConfig configures an LLMExplainer.
type LLMExplainerConfig struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	// RequestsPerSecond throttles calls to the model; zero disables it.
	RequestsPerSecond float64
	Retry             resilience.RetryConfig
	// BreakerThreshold consecutive failures open the breaker for BreakerCooldown.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// LLMExplainer asks an Anthropic model for the explanation and falls back
// to another Explainer on any failure.
type LLMExplainer struct {
	client   anthropic.Client
	cfg      LLMExplainerConfig
	limiter  *rate.Limiter
	breaker  *resilience.Breaker
	fallback Explainer
}

// NewLLMExplainer creates an LLMExplainer. A nil fallback uses a
// RuleBasedExplainer.
func NewLLMExplainer(client anthropic.Client, cfg LLMExplainerConfig, fallback Explainer) *LLMExplainer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if fallback == nil {
		fallback = NewRuleBasedExplainer()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &LLMExplainer{
		client:   client,
		cfg:      cfg,
		limiter:  limiter,
		breaker:  resilience.NewBreaker("llm_explainer", cfg.BreakerThreshold, cfg.BreakerCooldown),
		fallback: fallback,
	}
}

// Explain implements Explainer.
func (e *LLMExplainer) Explain(ctx context.Context, seed, cand *model.Company, notes []string, score float64) (out string) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("similarity: llm explanation panicked", zap.Any("panic", r))
			out = e.degrade(ctx, seed, cand, notes, score)
		}
	}()

	if seed == nil || cand == nil || e.client == nil {
		return e.degrade(ctx, seed, cand, notes, score)
	}

	text, err := e.generate(ctx, seed, cand, notes, score)
	if err != nil {
		zap.L().Debug("similarity: llm explanation failed",
			zap.Int64("seed_id", seed.ID),
			zap.Int64("candidate_id", cand.ID),
			zap.Error(err),
		)
		return e.degrade(ctx, seed, cand, notes, score)
	}

	metrics.Explanations.WithLabelValues("llm", metrics.OutcomeOK).Inc()
	return text
}

func (e *LLMExplainer) generate(ctx context.Context, seed, cand *model.Company, notes []string, score float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	temp := explainTemperature
	req := anthropic.MessageRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: &temp,
		System:      anthropic.CachedSystem(explainPrompt, ""),
		Messages:    []anthropic.Message{{Role: "user", Content: explainInput(seed, cand, notes, score)}},
	}

	retry := e.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry("anthropic.create_message")
	}

	resp, err := resilience.Call(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return e.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return "", err
	}
	resp.Usage.Log(e.cfg.Model, "explain")

	text := resp.Text()
	if text == "" {
		return "", eris.Errorf("similarity: empty explanation from %s", e.cfg.Model)
	}
	return text, nil
}

func (e *LLMExplainer) degrade(ctx context.Context, seed, cand *model.Company, notes []string, score float64) string {
	metrics.Explanations.WithLabelValues("llm", metrics.OutcomeFallback).Inc()
	return e.fallback.Explain(ctx, seed, cand, notes, score)
}

// explainInput renders the facts the model may use.
func explainInput(seed, cand *model.Company, notes []string, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Input company: %s\n", describeCompany(seed))
	fmt.Fprintf(&b, "Candidate company: %s\n", describeCompany(cand))
	fmt.Fprintf(&b, "Similarity score: %.0f/100\n", score)
	if len(notes) > 0 {
		b.WriteString("Matching attributes:\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
	}
	return b.String()
}

func describeCompany(c *model.Company) string {
	parts := []string{displayName(c)}
	if c.IndustrySector != "" {
		parts = append(parts, "sector "+c.IndustrySector)
	}
	if c.Verticals != "" {
		parts = append(parts, "verticals "+c.Verticals)
	}
	if c.RevenueMillions != nil {
		parts = append(parts, "revenue "+formatMillions(c.RevenueMillions))
	}
	if c.EmployeeCount != nil {
		parts = append(parts, formatCount(c.EmployeeCount)+" employees")
	}
	if c.Country != "" {
		parts = append(parts, "based in "+c.Country)
	}
	return strings.Join(parts, "; ")
}
