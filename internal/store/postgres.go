package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comps/internal/db"
	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/resilience"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool    db.Pool
	retry   resilience.RetryConfig
	closeFn func()
}

// NewPostgres connects to Postgres and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, retry: readRetry(), closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, retry: readRetry()}
}

func readRetry() resilience.RetryConfig {
	cfg := resilience.NewRetryConfig(3, 100*time.Millisecond, 2*time.Second)
	cfg.OnRetry = resilience.LogRetry("postgres.read")
	return cfg
}

// Pool returns the underlying pool for bulk operations.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS firms (
	id         BIGINT PRIMARY KEY,
	name       TEXT NOT NULL,
	country    TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id                BIGINT PRIMARY KEY,
	name              TEXT NOT NULL,
	industry_tags     TEXT[] NOT NULL DEFAULT '{}',
	industry_group    TEXT NOT NULL DEFAULT '',
	industry_sector   TEXT NOT NULL DEFAULT '',
	verticals         TEXT NOT NULL DEFAULT '',
	employee_count    INTEGER CHECK (employee_count >= 0),
	employee_source   TEXT NOT NULL DEFAULT '',
	revenue_millions  DOUBLE PRECISION CHECK (revenue_millions >= 0),
	revenue_source    TEXT NOT NULL DEFAULT '',
	total_funding_usd DOUBLE PRECISION CHECK (total_funding_usd >= 0),
	valuation_usd     DOUBLE PRECISION,
	is_public         BOOLEAN,
	funding_stage     INTEGER CHECK (funding_stage BETWEEN 0 AND 7),
	country           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS investments (
	firm_id    BIGINT NOT NULL,
	company_id BIGINT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	PRIMARY KEY (firm_id, company_id)
);

CREATE TABLE IF NOT EXISTS match_feedback (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_company_id BIGINT NOT NULL,
	match_company_id BIGINT NOT NULL,
	rater            TEXT NOT NULL,
	feedback_type    TEXT NOT NULL CHECK (feedback_type IN ('good_match', 'not_a_match')),
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (input_company_id, match_company_id, rater)
);

CREATE INDEX IF NOT EXISTS idx_companies_country ON companies(lower(country));
CREATE INDEX IF NOT EXISTS idx_companies_sector ON companies(lower(industry_sector));
CREATE INDEX IF NOT EXISTS idx_companies_size ON companies(revenue_millions DESC NULLS LAST, valuation_usd DESC NULLS LAST, id);
CREATE INDEX IF NOT EXISTS idx_investments_company ON investments(company_id);
CREATE INDEX IF NOT EXISTS idx_match_feedback_input ON match_feedback(input_company_id);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const companySelect = `SELECT c.id, c.name, c.industry_tags, c.industry_group, c.industry_sector, c.verticals,
	c.employee_count, c.employee_source, c.revenue_millions, c.revenue_source,
	c.total_funding_usd, c.valuation_usd, c.is_public, c.funding_stage,
	c.country, c.state, c.city,
	COALESCE(array_agg(i.firm_id ORDER BY i.firm_id) FILTER (WHERE i.firm_id IS NOT NULL), '{}'::bigint[])
FROM companies c
LEFT JOIN investments i ON i.company_id = c.id`

// GetCompanies loads snapshots for ids in one round trip. Unknown ids are
// omitted from the result.
func (s *PostgresStore) GetCompanies(ctx context.Context, ids []int64) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.Company, error) {
		return s.queryCompanies(ctx, companySelect+`
WHERE c.id = ANY($1)
GROUP BY c.id
ORDER BY c.id`, ids)
	})
	return out, eris.Wrap(err, "postgres: get companies")
}

// ListCandidates loads the candidate pool for one ranking call, largest
// companies first.
func (s *PostgresStore) ListCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Company, error) {
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}
	out, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.Company, error) {
		return s.queryCompanies(ctx, companySelect+`
WHERE NOT (c.id = ANY($1))
  AND (cardinality($2::text[]) = 0 OR lower(c.country) = ANY($2))
  AND ($3 = '' OR lower(c.industry_sector) = lower($3))
GROUP BY c.id
ORDER BY c.revenue_millions DESC NULLS LAST, c.valuation_usd DESC NULLS LAST, c.id
LIMIT NULLIF($4, 0)`,
			exclude, countryArg(q.Country), strings.TrimSpace(q.Sector), q.Limit)
	})
	return out, eris.Wrap(err, "postgres: list candidates")
}

// countryArg expands a country filter to every label folding to the same
// code, so "United States" also matches rows stored as "US".
func countryArg(country string) []string {
	labels := model.CountryLabels(country)
	if labels == nil {
		return []string{}
	}
	return labels
}

func (s *PostgresStore) queryCompanies(ctx context.Context, sql string, args ...any) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCompany(row pgx.Row) (model.Company, error) {
	var (
		c                       model.Company
		empSource, revSource    string
		employees, fundingStage *int32
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.IndustryTags, &c.IndustryGroup, &c.IndustrySector, &c.Verticals,
		&employees, &empSource, &c.RevenueMillions, &revSource,
		&c.TotalFundingUSD, &c.ValuationUSD, &c.IsPublic, &fundingStage,
		&c.Country, &c.State, &c.City,
		&c.InvestorIDs,
	)
	if err != nil {
		return c, eris.Wrap(err, "postgres: scan company")
	}
	c.EmployeeCount = intPtr(employees)
	c.FundingStage = intPtr(fundingStage)
	c.EmployeeSource = model.ParseDataSource(empSource)
	c.RevenueSource = model.ParseDataSource(revSource)
	if len(c.InvestorIDs) == 0 {
		c.InvestorIDs = nil
	}
	return c, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

const upsertFeedbackSQL = `INSERT INTO match_feedback
	(id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (input_company_id, match_company_id, rater) DO UPDATE SET
	feedback_type = EXCLUDED.feedback_type,
	notes = EXCLUDED.notes,
	updated_at = EXCLUDED.updated_at
RETURNING id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at`

// UpsertFeedback stores fb, overwriting the verdict and notes of an
// existing record for the same (input, match, rater). The original id and
// created_at are kept.
func (s *PostgresStore) UpsertFeedback(ctx context.Context, fb *model.Feedback) (*model.Feedback, error) {
	row := s.pool.QueryRow(ctx, upsertFeedbackSQL,
		fb.ID, fb.InputCompanyID, fb.MatchCompanyID, fb.Rater, string(fb.Verdict), fb.Notes,
		fb.CreatedAt, fb.UpdatedAt,
	)
	out, err := scanFeedback(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert feedback")
	}
	return out, nil
}

// ListFeedback returns feedback for an input company, most recent first.
func (s *PostgresStore) ListFeedback(ctx context.Context, inputCompanyID int64) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at
		 FROM match_feedback WHERE input_company_id = $1
		 ORDER BY updated_at DESC, match_company_id`,
		inputCompanyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list feedback")
		}
		out = append(out, *fb)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feedback")
}

func scanFeedback(row pgx.Row) (*model.Feedback, error) {
	var (
		fb      model.Feedback
		verdict string
	)
	if err := row.Scan(&fb.ID, &fb.InputCompanyID, &fb.MatchCompanyID, &fb.Rater,
		&verdict, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.New("no row returned")
		}
		return nil, err
	}
	fb.Verdict = model.Verdict(verdict)
	return &fb, nil
}

var companyColumns = []string{
	"id", "name", "industry_tags", "industry_group", "industry_sector", "verticals",
	"employee_count", "employee_source", "revenue_millions", "revenue_source",
	"total_funding_usd", "valuation_usd", "is_public", "funding_stage",
	"country", "state", "city",
}

// UpsertCompanies bulk-writes companies and replaces their investor links
// in one transaction.
func (s *PostgresStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(companies))
	ids := make([]int64, 0, len(companies))
	var links [][]any
	for i := range companies {
		c := &companies[i]
		if err := c.Validate(); err != nil {
			return 0, eris.Wrap(err, "postgres: upsert companies")
		}
		tags := c.IndustryTags
		if tags == nil {
			tags = []string{}
		}
		rows = append(rows, []any{
			c.ID, c.Name, tags, c.IndustryGroup, c.IndustrySector, c.Verticals,
			int32Ptr(c.EmployeeCount), string(c.EmployeeSource), c.RevenueMillions, string(c.RevenueSource),
			c.TotalFundingUSD, c.ValuationUSD, c.IsPublic, int32Ptr(c.FundingStage),
			c.Country, c.State, c.City,
		})
		ids = append(ids, c.ID)
		for _, firmID := range c.InvestorIDs {
			links = append(links, []any{firmID, c.ID})
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert companies: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.UpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "companies",
		Columns:      companyColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert companies")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM investments WHERE company_id = ANY($1)`, ids); err != nil {
		return 0, eris.Wrap(err, "postgres: clear investments")
	}
	if _, err := db.UpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "investments",
		Columns:      []string{"firm_id", "company_id"},
		ConflictKeys: []string{"firm_id", "company_id"},
	}, links); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert investments")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: upsert companies: commit tx")
	}
	return n, nil
}

// UpsertFirms bulk-writes PE/VC firms.
func (s *PostgresStore) UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error) {
	rows := make([][]any, len(firms))
	for i, f := range firms {
		rows[i] = []any{f.ID, f.Name, f.Country}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "firms",
		Columns:      []string{"id", "name", "country"},
		ConflictKeys: []string{"id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert firms")
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}
