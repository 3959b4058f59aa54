// Package config loads service configuration from config.yaml, .env and
// COMPS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/comps/internal/cache"
	"github.com/sells-group/comps/internal/resilience"
	"github.com/sells-group/comps/internal/similarity"
	"github.com/sells-group/comps/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      store.Config     `yaml:"store" mapstructure:"store"`
	Redis      cache.Config     `yaml:"redis" mapstructure:"redis"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Explainer  ExplainerConfig  `yaml:"explainer" mapstructure:"explainer"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExplainerConfig selects and tunes the explanation generator.
type ExplainerConfig struct {
	Mode              string        `yaml:"mode" mapstructure:"mode"` // "rules" or "llm"
	MaxTokens         int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BreakerThreshold  int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// SimilarityConfig tunes the ranker.
type SimilarityConfig struct {
	WeightsFile     string  `yaml:"weights_file" mapstructure:"weights_file"`
	MinScore        float64 `yaml:"min_score" mapstructure:"min_score"`
	Limit           int     `yaml:"limit" mapstructure:"limit"`
	CandidateCap    int     `yaml:"candidate_cap" mapstructure:"candidate_cap"`
	MaxCandidateCap int     `yaml:"max_candidate_cap" mapstructure:"max_candidate_cap"`
	DedupPolicy     string  `yaml:"dedup_policy" mapstructure:"dedup_policy"`
}

// ImportConfig configures bulk company import.
type ImportConfig struct {
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Strict    bool          `yaml:"strict" mapstructure:"strict"`
	Encoding  string        `yaml:"encoding" mapstructure:"encoding"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryConfig configures retries of transient collaborator failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// Policy converts the configured values into a resilience.RetryConfig.
func (r RetryConfig) Policy() resilience.RetryConfig {
	return resilience.NewRetryConfig(r.MaxAttempts, r.InitialBackoff, r.MaxBackoff)
}

// Load reads configuration from .env, a YAML file, and the environment, in
// increasing order of precedence over defaults. An empty file looks for an
// optional config.yaml in the working directory; a named file must exist.
func Load(file string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("COMPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 1)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "15m")
	v.SetDefault("redis.candidate_ttl", "5m")
	v.SetDefault("redis.prefix", "comps:")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("explainer.mode", "rules")
	v.SetDefault("explainer.max_tokens", 256)
	v.SetDefault("explainer.timeout", "10s")
	v.SetDefault("explainer.requests_per_second", 5)
	v.SetDefault("explainer.breaker_threshold", 5)
	v.SetDefault("explainer.breaker_cooldown", "30s")
	v.SetDefault("similarity.weights_file", "")
	v.SetDefault("similarity.min_score", 60)
	v.SetDefault("similarity.limit", 20)
	v.SetDefault("similarity.candidate_cap", 2000)
	v.SetDefault("similarity.max_candidate_cap", 10000)
	v.SetDefault("similarity.dedup_policy", "first_seed")
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("import.strict", false)
	v.SetDefault("import.encoding", "")
	v.SetDefault("import.timeout", "30s")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "200ms")
	v.SetDefault("retry.max_backoff", "5s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command needs. Every problem is reported,
// not just the first.
func (c *Config) Validate(mode string) error {
	var errs []string

	requireDB := func() {
		if c.Store.Driver != "sqlite" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		requireDB()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateEngine()...)
	case "match":
		requireDB()
		errs = append(errs, c.validateEngine()...)
	case "import":
		requireDB()
		if c.Import.BatchSize <= 0 {
			errs = append(errs, "import.batch_size must be > 0")
		}
	case "migrate", "feedback":
		requireDB()
	case "weights":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (postgres, sqlite)", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEngine() []string {
	var errs []string

	switch c.Explainer.Mode {
	case "", "rules":
	case "llm":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when explainer.mode is llm")
		}
	default:
		errs = append(errs, fmt.Sprintf("explainer.mode %q must be rules or llm", c.Explainer.Mode))
	}

	s := c.Similarity
	if s.MinScore < 0 || s.MinScore > 100 {
		errs = append(errs, "similarity.min_score must be between 0 and 100")
	}
	if s.Limit < 1 || s.Limit > similarity.MaxLimit {
		errs = append(errs, fmt.Sprintf("similarity.limit must be between 1 and %d", similarity.MaxLimit))
	}
	if s.CandidateCap <= 0 {
		errs = append(errs, "similarity.candidate_cap must be > 0")
	} else if s.MaxCandidateCap > 0 && s.CandidateCap > s.MaxCandidateCap {
		errs = append(errs, "similarity.candidate_cap must not exceed similarity.max_candidate_cap")
	}
	if _, err := similarity.ParseDedupPolicy(s.DedupPolicy); err != nil {
		errs = append(errs, fmt.Sprintf("similarity.dedup_policy %q must be first_seed or best_score", s.DedupPolicy))
	}
	return errs
}
