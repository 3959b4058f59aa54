package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/comps/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS firms (
	id      INTEGER PRIMARY KEY,
	name    TEXT NOT NULL,
	country TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS companies (
	id                INTEGER PRIMARY KEY,
	name              TEXT NOT NULL,
	industry_tags     TEXT NOT NULL DEFAULT '[]',
	industry_group    TEXT NOT NULL DEFAULT '',
	industry_sector   TEXT NOT NULL DEFAULT '',
	verticals         TEXT NOT NULL DEFAULT '',
	employee_count    INTEGER,
	employee_source   TEXT NOT NULL DEFAULT '',
	revenue_millions  REAL,
	revenue_source    TEXT NOT NULL DEFAULT '',
	total_funding_usd REAL,
	valuation_usd     REAL,
	is_public         INTEGER,
	funding_stage     INTEGER,
	country           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS investments (
	firm_id    INTEGER NOT NULL,
	company_id INTEGER NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	PRIMARY KEY (firm_id, company_id)
);

CREATE TABLE IF NOT EXISTS match_feedback (
	id               TEXT PRIMARY KEY,
	input_company_id INTEGER NOT NULL,
	match_company_id INTEGER NOT NULL,
	rater            TEXT NOT NULL,
	feedback_type    TEXT NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (input_company_id, match_company_id, rater)
);

CREATE INDEX IF NOT EXISTS idx_companies_country ON companies(country COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_companies_sector ON companies(industry_sector COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_investments_company ON investments(company_id);
CREATE INDEX IF NOT EXISTS idx_match_feedback_input ON match_feedback(input_company_id);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteCompanySelect = `SELECT c.id, c.name, c.industry_tags, c.industry_group, c.industry_sector, c.verticals,
	c.employee_count, c.employee_source, c.revenue_millions, c.revenue_source,
	c.total_funding_usd, c.valuation_usd, c.is_public, c.funding_stage,
	c.country, c.state, c.city,
	(SELECT json_group_array(firm_id) FROM (SELECT firm_id FROM investments WHERE company_id = c.id ORDER BY firm_id))
FROM companies c`

// GetCompanies loads snapshots for ids. Unknown ids are omitted.
func (s *SQLiteStore) GetCompanies(ctx context.Context, ids []int64) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := s.queryCompanies(ctx,
		sqliteCompanySelect+` WHERE c.id IN (`+placeholders(len(ids))+`) ORDER BY c.id`,
		int64Args(ids)...)
	return out, eris.Wrap(err, "sqlite: get companies")
}

// ListCandidates loads the candidate pool, largest companies first.
func (s *SQLiteStore) ListCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Company, error) {
	var (
		where []string
		args  []any
	)
	if len(q.ExcludeIDs) > 0 {
		where = append(where, `c.id NOT IN (`+placeholders(len(q.ExcludeIDs))+`)`)
		args = append(args, int64Args(q.ExcludeIDs)...)
	}
	if labels := model.CountryLabels(q.Country); len(labels) > 0 {
		where = append(where, `lower(c.country) IN (`+placeholders(len(labels))+`)`)
		for _, l := range labels {
			args = append(args, l)
		}
	}
	if sector := strings.TrimSpace(q.Sector); sector != "" {
		where = append(where, `c.industry_sector = ? COLLATE NOCASE`)
		args = append(args, sector)
	}

	query := sqliteCompanySelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY c.revenue_millions DESC NULLS LAST, c.valuation_usd DESC NULLS LAST, c.id LIMIT ?`
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	out, err := s.queryCompanies(ctx, query, args...)
	return out, eris.Wrap(err, "sqlite: list candidates")
}

func (s *SQLiteStore) queryCompanies(ctx context.Context, query string, args ...any) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCompany(row scannable) (model.Company, error) {
	var (
		c                           model.Company
		tagsJSON, investorsJSON     string
		empSource, revSource        string
		employees, fundingStage     sql.NullInt64
		revenue, funding, valuation sql.NullFloat64
		isPublic                    sql.NullBool
	)
	err := row.Scan(
		&c.ID, &c.Name, &tagsJSON, &c.IndustryGroup, &c.IndustrySector, &c.Verticals,
		&employees, &empSource, &revenue, &revSource,
		&funding, &valuation, &isPublic, &fundingStage,
		&c.Country, &c.State, &c.City,
		&investorsJSON,
	)
	if err != nil {
		return c, eris.Wrap(err, "sqlite: scan company")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &c.IndustryTags); err != nil {
		return c, eris.Wrapf(err, "sqlite: unmarshal tags for company %d", c.ID)
	}
	if err := json.Unmarshal([]byte(investorsJSON), &c.InvestorIDs); err != nil {
		return c, eris.Wrapf(err, "sqlite: unmarshal investors for company %d", c.ID)
	}
	if len(c.IndustryTags) == 0 {
		c.IndustryTags = nil
	}
	if len(c.InvestorIDs) == 0 {
		c.InvestorIDs = nil
	}

	c.EmployeeCount = nullInt(employees)
	c.FundingStage = nullInt(fundingStage)
	c.RevenueMillions = nullFloat(revenue)
	c.TotalFundingUSD = nullFloat(funding)
	c.ValuationUSD = nullFloat(valuation)
	if isPublic.Valid {
		c.IsPublic = &isPublic.Bool
	}
	c.EmployeeSource = model.ParseDataSource(empSource)
	c.RevenueSource = model.ParseDataSource(revSource)
	return c, nil
}

const sqliteUpsertCompany = `INSERT INTO companies
	(id, name, industry_tags, industry_group, industry_sector, verticals,
	 employee_count, employee_source, revenue_millions, revenue_source,
	 total_funding_usd, valuation_usd, is_public, funding_stage,
	 country, state, city, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, industry_tags = excluded.industry_tags,
	industry_group = excluded.industry_group, industry_sector = excluded.industry_sector,
	verticals = excluded.verticals, employee_count = excluded.employee_count,
	employee_source = excluded.employee_source, revenue_millions = excluded.revenue_millions,
	revenue_source = excluded.revenue_source, total_funding_usd = excluded.total_funding_usd,
	valuation_usd = excluded.valuation_usd, is_public = excluded.is_public,
	funding_stage = excluded.funding_stage, country = excluded.country,
	state = excluded.state, city = excluded.city, updated_at = excluded.updated_at`

// UpsertCompanies writes companies and replaces their investor links in one
// transaction.
func (s *SQLiteStore) UpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for i := range companies {
		c := &companies[i]
		if err := c.Validate(); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert companies")
		}
		tags := c.IndustryTags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal tags")
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertCompany,
			c.ID, c.Name, string(tagsJSON), c.IndustryGroup, c.IndustrySector, c.Verticals,
			c.EmployeeCount, string(c.EmployeeSource), c.RevenueMillions, string(c.RevenueSource),
			c.TotalFundingUSD, c.ValuationUSD, c.IsPublic, c.FundingStage,
			c.Country, c.State, c.City,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert company %d", c.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM investments WHERE company_id = ?`, c.ID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: clear investments for %d", c.ID)
		}
		for _, firmID := range c.InvestorIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO investments (firm_id, company_id) VALUES (?, ?)`, firmID, c.ID,
			); err != nil {
				return 0, eris.Wrapf(err, "sqlite: insert investment %d/%d", firmID, c.ID)
			}
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return n, nil
}

// UpsertFirms writes PE/VC firms.
func (s *SQLiteStore) UpsertFirms(ctx context.Context, firms []model.Firm) (int64, error) {
	var n int64
	for _, f := range firms {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO firms (id, name, country) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, country = excluded.country`,
			f.ID, f.Name, f.Country,
		); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert firm %d", f.ID)
		}
		n++
	}
	return n, nil
}

// UpsertFeedback stores fb, overwriting the verdict and notes of an
// existing record for the same (input, match, rater).
func (s *SQLiteStore) UpsertFeedback(ctx context.Context, fb *model.Feedback) (*model.Feedback, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO match_feedback
			(id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(input_company_id, match_company_id, rater) DO UPDATE SET
			feedback_type = excluded.feedback_type,
			notes = excluded.notes,
			updated_at = excluded.updated_at
		 RETURNING id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at`,
		fb.ID, fb.InputCompanyID, fb.MatchCompanyID, fb.Rater, string(fb.Verdict), fb.Notes,
		fb.CreatedAt.UTC(), fb.UpdatedAt.UTC(),
	)
	out, err := scanSQLiteFeedback(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: upsert feedback")
	}
	return out, nil
}

// ListFeedback returns feedback for an input company, most recent first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, inputCompanyID int64) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_company_id, match_company_id, rater, feedback_type, notes, created_at, updated_at
		 FROM match_feedback WHERE input_company_id = ?
		 ORDER BY updated_at DESC, match_company_id`,
		inputCompanyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Feedback
	for rows.Next() {
		fb, err := scanSQLiteFeedback(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list feedback")
		}
		out = append(out, *fb)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feedback")
}

func scanSQLiteFeedback(row scannable) (*model.Feedback, error) {
	var (
		fb      model.Feedback
		verdict string
	)
	err := row.Scan(&fb.ID, &fb.InputCompanyID, &fb.MatchCompanyID, &fb.Rater,
		&verdict, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.New("no row returned")
	}
	if err != nil {
		return nil, err
	}
	fb.Verdict = model.Verdict(verdict)
	return &fb, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
