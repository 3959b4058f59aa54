package similarity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/metrics"
	"github.com/sells-group/comps/internal/model"
)

// Ranking defaults.
const (
	DefaultMinScore        = 60.0
	DefaultLimit           = 20
	MaxLimit               = 100
	DefaultCandidateCap    = 2000
	DefaultMaxCandidateCap = 10000
)

// CompanySource is the read contract the ranker depends on. Both methods
// return fully materialized snapshots in one round trip.
type CompanySource interface {
	GetCompanies(ctx context.Context, ids []int64) ([]model.Company, error)
	ListCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Company, error)
}

// DedupPolicy decides which seed a candidate is matched against when
// several seeds are supplied.
type DedupPolicy string

const (
	// DedupFirstSeed scores a candidate against seeds in request order and
	// keeps the first pair that clears min_score.
	DedupFirstSeed DedupPolicy = "first_seed"
	// DedupBestScore keeps the highest-scoring pair across all seeds.
	DedupBestScore DedupPolicy = "best_score"
)

// ParseDedupPolicy parses a configured policy name. Empty means DedupFirstSeed.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(s) {
	case "", DedupFirstSeed:
		return DedupFirstSeed, nil
	case DedupBestScore:
		return DedupBestScore, nil
	default:
		return "", &ConfigError{Reason: fmt.Sprintf("unknown dedup policy %q", s)}
	}
}

// Filters narrow the candidate pool.
type Filters struct {
	Country string `json:"country,omitempty"`
	Sector  string `json:"sector,omitempty"`
}

// Request is one ranking call. A nil MinScore means DefaultMinScore and a
// zero Limit means DefaultLimit.
type Request struct {
	SeedIDs  []int64  `json:"input_company_ids"`
	MinScore *float64 `json:"min_score,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Filters  Filters  `json:"filters,omitempty"`
}

// Match is one ranked candidate.
type Match struct {
	Company             model.CompanySummary `json:"company"`
	SimilarityScore     float64              `json:"similarity_score"`
	Confidence          float64              `json:"confidence"`
	CategoriesWithScore int                  `json:"categories_with_score"`
	MatchedSeedID       int64                `json:"input_company_id"`
	Reasoning           string               `json:"reasoning"`
	MatchingAttributes  []string             `json:"matching_attributes"`
}

// Response is the result of a ranking call. TotalResults counts matches
// that passed the score filter before truncation.
type Response struct {
	InputCompanies []model.CompanySummary `json:"input_companies"`
	Matches        []Match                `json:"matches"`
	TotalResults   int                    `json:"total_results"`
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights replaces DefaultWeights.
func WithWeights(w WeightTable) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithCandidateCap bounds the candidate pool loaded per call.
func WithCandidateCap(n int) Option {
	return func(r *Ranker) { r.candidateCap = n }
}

// WithMaxCandidateCap sets the ceiling a candidate cap may not exceed.
func WithMaxCandidateCap(n int) Option {
	return func(r *Ranker) { r.maxCandidateCap = n }
}

// WithDedupPolicy selects how multi-seed requests are deduplicated.
func WithDedupPolicy(p DedupPolicy) Option {
	return func(r *Ranker) { r.dedup = p }
}

// Ranker turns seed ids into a ranked, explained list of comparable
// companies. It holds no per-request state and is safe for concurrent use.
type Ranker struct {
	source    CompanySource
	explainer Explainer

	weights         WeightTable
	weightsHash     string
	candidateCap    int
	maxCandidateCap int
	dedup           DedupPolicy
}

// NewRanker creates a Ranker. A nil explainer uses a RuleBasedExplainer.
func NewRanker(source CompanySource, explainer Explainer, opts ...Option) (*Ranker, error) {
	if source == nil {
		return nil, &ConfigError{Reason: "company source is required"}
	}
	r := &Ranker{
		source:          source,
		explainer:       explainer,
		weights:         DefaultWeights(),
		candidateCap:    DefaultCandidateCap,
		maxCandidateCap: DefaultMaxCandidateCap,
		dedup:           DedupFirstSeed,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.explainer == nil {
		r.explainer = NewRuleBasedExplainer()
	}

	if err := r.weights.Validate(); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}
	if r.candidateCap <= 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("candidate cap must be positive, got %d", r.candidateCap)}
	}
	if r.candidateCap > r.maxCandidateCap {
		return nil, &ConfigError{Reason: fmt.Sprintf("candidate cap %d exceeds maximum %d", r.candidateCap, r.maxCandidateCap)}
	}
	if _, err := ParseDedupPolicy(string(r.dedup)); err != nil {
		return nil, err
	}

	r.weightsHash = r.weights.Hash()
	return r, nil
}

// Weights returns the active weight table.
func (r *Ranker) Weights() WeightTable { return r.weights }

// scoredPair is an accepted (seed, candidate) pair awaiting explanation.
type scoredPair struct {
	seed   *model.Company
	cand   *model.Company
	result Result
}

// Rank runs the full pipeline: validate, load seeds, load candidates,
// score, deduplicate, filter, sort, truncate, explain.
func (r *Ranker) Rank(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		metrics.RankDuration.Observe(time.Since(start).Seconds())
		metrics.RankRequests.WithLabelValues(rankOutcome(err)).Inc()
	}()

	seedIDs, minScore, limit, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	seeds, err := r.loadSeeds(ctx, seedIDs)
	if err != nil {
		return nil, err
	}

	cands, err := r.loadCandidates(ctx, seedIDs, req.Filters)
	if err != nil {
		return nil, err
	}

	pairs, scored := r.scoreAll(seeds, cands, minScore)
	metrics.CandidatesScored.Observe(float64(scored))

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].result.Score != pairs[j].result.Score {
			return pairs[i].result.Score > pairs[j].result.Score
		}
		return pairs[i].cand.ID < pairs[j].cand.ID
	})

	total := len(pairs)
	if len(pairs) > limit {
		pairs = pairs[:limit]
	}

	resp = &Response{
		InputCompanies: make([]model.CompanySummary, len(seeds)),
		Matches:        make([]Match, len(pairs)),
		TotalResults:   total,
	}
	for i := range seeds {
		resp.InputCompanies[i] = seeds[i].Summary()
	}
	for i, p := range pairs {
		notes := p.result.Notes
		if notes == nil {
			notes = []string{}
		}
		resp.Matches[i] = Match{
			Company:             p.cand.Summary(),
			SimilarityScore:     p.result.Score,
			Confidence:          p.result.Confidence,
			CategoriesWithScore: p.result.CategoriesWithScore,
			MatchedSeedID:       p.seed.ID,
			Reasoning:           r.explain(ctx, p),
			MatchingAttributes:  notes,
		}
	}

	zap.L().Info("similarity: ranked candidates",
		zap.Int64s("seed_ids", seedIDs),
		zap.Int("seeds", len(seeds)),
		zap.Int("candidates", len(cands)),
		zap.Int("pairs_scored", scored),
		zap.Int("total_results", total),
		zap.Int("returned", len(resp.Matches)),
		zap.String("dedup", string(r.dedup)),
		zap.String("weights", r.weightsHash),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// validate normalizes the request, dropping duplicate seed ids while
// keeping request order.
func (r *Ranker) validate(req Request) ([]int64, float64, int, error) {
	if len(req.SeedIDs) == 0 {
		return nil, 0, 0, &ValidationError{Field: "input_company_ids", Reason: "at least one id is required"}
	}

	seen := make(map[int64]bool, len(req.SeedIDs))
	ids := make([]int64, 0, len(req.SeedIDs))
	for _, id := range req.SeedIDs {
		if id <= 0 {
			return nil, 0, 0, &ValidationError{Field: "input_company_ids", Reason: fmt.Sprintf("id %d must be positive", id)}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	minScore := DefaultMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
		if minScore < 0 || minScore > 100 {
			return nil, 0, 0, &ValidationError{Field: "min_score", Reason: fmt.Sprintf("%g is outside 0-100", minScore)}
		}
	}

	limit := req.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 0 || limit > MaxLimit:
		return nil, 0, 0, &ValidationError{Field: "limit", Reason: fmt.Sprintf("%d is outside 1-%d", limit, MaxLimit)}
	}

	return ids, minScore, limit, nil
}

// loadSeeds fetches all seeds in one call and returns them in request
// order. Unresolved ids are logged; NotFoundError only when none resolve.
func (r *Ranker) loadSeeds(ctx context.Context, ids []int64) ([]*model.Company, error) {
	rows, err := r.source.GetCompanies(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "similarity: load seeds")
	}

	byID := make(map[int64]*model.Company, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	seeds := make([]*model.Company, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			seeds = append(seeds, c)
		} else {
			missing = append(missing, id)
		}
	}

	if len(seeds) == 0 {
		return nil, &NotFoundError{IDs: ids}
	}
	if len(missing) > 0 {
		zap.L().Warn("similarity: some input companies not found", zap.Int64s("missing_ids", missing))
	}
	return seeds, nil
}

func (r *Ranker) loadCandidates(ctx context.Context, seedIDs []int64, f Filters) ([]*model.Company, error) {
	rows, err := r.source.ListCandidates(ctx, model.CandidateQuery{
		ExcludeIDs: seedIDs,
		Country:    f.Country,
		Sector:     f.Sector,
		Limit:      r.candidateCap,
	})
	if err != nil {
		return nil, eris.Wrap(err, "similarity: load candidates")
	}
	if len(rows) > r.candidateCap {
		return nil, &ConfigError{Reason: fmt.Sprintf("candidate source returned %d rows, cap is %d", len(rows), r.candidateCap)}
	}

	exclude := make(map[int64]bool, len(seedIDs))
	for _, id := range seedIDs {
		exclude[id] = true
	}

	cands := make([]*model.Company, 0, len(rows))
	for i := range rows {
		if exclude[rows[i].ID] {
			continue
		}
		exclude[rows[i].ID] = true
		cands = append(cands, &rows[i])
	}
	return cands, nil
}

// scoreAll scores candidates against seeds under the dedup policy and
// returns the pairs that clear minScore along with the number of pairs
// scored.
func (r *Ranker) scoreAll(seeds, cands []*model.Company, minScore float64) ([]scoredPair, int) {
	scored := 0
	accepted := make(map[int64]int, len(cands)) // candidate id → index in pairs
	var pairs []scoredPair

	for _, seed := range seeds {
		for _, cand := range cands {
			idx, matched := accepted[cand.ID]
			if matched && r.dedup == DedupFirstSeed {
				continue
			}

			res := Compare(seed, cand, r.weights)
			scored++
			if res.CategoriesWithScore == 0 || res.Score < minScore {
				continue
			}

			switch {
			case !matched:
				accepted[cand.ID] = len(pairs)
				pairs = append(pairs, scoredPair{seed: seed, cand: cand, result: res})
			case res.Score > pairs[idx].result.Score:
				pairs[idx] = scoredPair{seed: seed, cand: cand, result: res}
			}
		}
	}
	return pairs, scored
}

func (r *Ranker) explain(ctx context.Context, p scoredPair) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Warn("similarity: explainer panicked", zap.Any("panic", rec))
			text = MinimalExplanation(p.result.Score)
		}
	}()
	text = r.explainer.Explain(ctx, p.seed, p.cand, p.result.Notes, p.result.Score)
	if text == "" {
		text = MinimalExplanation(p.result.Score)
	}
	return text
}

func rankOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch err.(type) {
	case *NotFoundError:
		return metrics.OutcomeNotFound
	case *ValidationError:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
