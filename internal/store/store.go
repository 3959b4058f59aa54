// Package store persists company snapshots and match feedback in Postgres
// or SQLite.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps/internal/db"
	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

// Store is the candidate repository and feedback sink used by the service.
type Store interface {
	similarity.CompanySource
	similarity.FeedbackSink

	// UpsertCompanies writes snapshots and their investor links, replacing
	// existing rows with the same id.
	UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error)
	UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// New opens the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "comps.db"
		}
		return NewSQLite(dsn)
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
