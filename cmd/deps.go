package main

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/cache"
	"github.com/sells-group/comps/internal/config"
	"github.com/sells-group/comps/internal/similarity"
	"github.com/sells-group/comps/internal/store"
	"github.com/sells-group/comps/pkg/anthropic"
)

// env bundles the collaborators a command needs.
type env struct {
	Store  store.Store
	Source similarity.CompanySource
	Cache  *cache.CachedSource
	Ranker *similarity.Ranker

	redis *redis.Client
}

// Close releases the store and Redis connections.
func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend and applies migrations.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.New(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// initEnv builds the store, the optional Redis read-through cache, and,
// when withRanker is set, the ranker.
func initEnv(ctx context.Context, c *config.Config, withRanker bool) (*env, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	e := &env{Store: st, Source: st}

	if c.Redis.Enabled() {
		rdb, err := cache.Connect(ctx, c.Redis)
		if err != nil {
			// Ranking still works straight from the store.
			zap.L().Warn("redis unavailable, caching disabled", zap.String("addr", c.Redis.Addr), zap.Error(err))
		} else {
			e.redis = rdb
			e.Cache = cache.New(st, rdb,
				cache.WithTTL(c.Redis.TTL),
				cache.WithCandidateTTL(c.Redis.CandidateTTL),
				cache.WithPrefix(c.Redis.Prefix),
			)
			e.Source = e.Cache
		}
	}

	if withRanker {
		r, err := buildRanker(c, e.Source)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Ranker = r
	}
	return e, nil
}

// loadWeights returns the configured weight scheme or the defaults.
func loadWeights(c *config.Config) (similarity.WeightTable, error) {
	if c.Similarity.WeightsFile == "" {
		return similarity.DefaultWeights(), nil
	}
	return similarity.LoadWeights(c.Similarity.WeightsFile)
}

func buildRanker(c *config.Config, source similarity.CompanySource) (*similarity.Ranker, error) {
	weights, err := loadWeights(c)
	if err != nil {
		return nil, err
	}
	dedup, err := similarity.ParseDedupPolicy(c.Similarity.DedupPolicy)
	if err != nil {
		return nil, err
	}

	opts := []similarity.Option{
		similarity.WithWeights(weights),
		similarity.WithDedupPolicy(dedup),
	}
	if c.Similarity.CandidateCap > 0 {
		opts = append(opts, similarity.WithCandidateCap(c.Similarity.CandidateCap))
	}
	if c.Similarity.MaxCandidateCap > 0 {
		opts = append(opts, similarity.WithMaxCandidateCap(c.Similarity.MaxCandidateCap))
	}

	explainer, err := buildExplainer(c)
	if err != nil {
		return nil, err
	}
	return similarity.NewRanker(source, explainer, opts...)
}

func buildExplainer(c *config.Config) (similarity.Explainer, error) {
	rules := similarity.NewRuleBasedExplainer()
	switch strings.ToLower(c.Explainer.Mode) {
	case "", "rules":
		return rules, nil
	case "llm":
		if c.Anthropic.Key == "" {
			return nil, eris.New("anthropic key is required for llm explanations (COMPS_ANTHROPIC_KEY)")
		}
		return similarity.NewLLMExplainer(anthropic.NewClient(c.Anthropic.Key), similarity.LLMExplainerConfig{
			Model:             c.Anthropic.Model,
			MaxTokens:         c.Explainer.MaxTokens,
			Timeout:           c.Explainer.Timeout,
			RequestsPerSecond: c.Explainer.RequestsPerSecond,
			Retry:             c.Retry.Policy(),
			BreakerThreshold:  c.Explainer.BreakerThreshold,
			BreakerCooldown:   c.Explainer.BreakerCooldown,
		}, rules), nil
	default:
		return nil, eris.Errorf("unknown explainer mode %q", c.Explainer.Mode)
	}
}
