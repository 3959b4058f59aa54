package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/config"
	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
	"github.com/sells-group/comps/internal/store"
)

// sqliteConfig returns a Config backed by a temporary SQLite database.
func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store = store.Config{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "comps.db")}
	c.Explainer.Mode = "rules"
	c.Similarity.MinScore = 60
	c.Similarity.Limit = 20
	c.Similarity.CandidateCap = 2000
	c.Similarity.MaxCandidateCap = 10000
	c.Similarity.DedupPolicy = "first_seed"
	c.Import.BatchSize = 2
	return c
}

func TestBuildExplainer(t *testing.T) {
	c := &config.Config{}

	ex, err := buildExplainer(c)
	require.NoError(t, err)
	assert.IsType(t, &similarity.RuleBasedExplainer{}, ex)

	c.Explainer.Mode = "llm"
	_, err = buildExplainer(c)
	assert.ErrorContains(t, err, "anthropic key is required")

	c.Anthropic.Key = "sk-ant-test"
	ex, err = buildExplainer(c)
	require.NoError(t, err)
	assert.IsType(t, &similarity.LLMExplainer{}, ex)

	c.Explainer.Mode = "oracle"
	_, err = buildExplainer(c)
	assert.Error(t, err)
}

func TestBuildRanker_BadDedupPolicy(t *testing.T) {
	c := sqliteConfig(t)
	c.Similarity.DedupPolicy = "newest"

	_, err := buildRanker(c, &store.SQLiteStore{})
	var cfgErr *similarity.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInitEnv_SQLiteWithoutRedis(t *testing.T) {
	c := sqliteConfig(t)

	e, err := initEnv(context.Background(), c, true)
	require.NoError(t, err)
	defer e.Close()

	assert.Nil(t, e.Cache)
	assert.Equal(t, e.Store, e.Source)
	require.NotNil(t, e.Ranker)
	assert.NoError(t, e.Store.Ping(context.Background()))
}

func TestInitEnv_WithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c := sqliteConfig(t)
	c.Redis.Addr = mr.Addr()
	c.Redis.Prefix = "test:"

	ctx := context.Background()
	e, err := initEnv(ctx, c, true)
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Cache)
	_, err = e.Store.UpsertCompanies(ctx, []model.Company{{ID: 1, Name: "Acme"}})
	require.NoError(t, err)

	got, err := e.Source.GetCompanies(ctx, []int64{1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, mr.Exists("test:company:1"))
}

func TestInitEnv_RedisDownFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	c := sqliteConfig(t)
	c.Redis.Addr = addr

	e, err := initEnv(context.Background(), c, false)
	require.NoError(t, err)
	defer e.Close()

	assert.Nil(t, e.Cache)
	assert.Equal(t, e.Store, e.Source)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	c := &config.Config{}
	c.Store.Driver = "oracle"

	_, err := initStore(context.Background(), c)
	assert.Error(t, err)
}
