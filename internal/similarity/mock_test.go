package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/pkg/anthropic"
)

// mockAIClient implements anthropic.Client.
type mockAIClient struct {
	mock.Mock
}

func (m *mockAIClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// memSource is an in-memory CompanySource.
type memSource struct {
	companies []model.Company

	getErr  error
	listErr error
	// ignoreQuery returns every company regardless of exclusions and limit.
	ignoreQuery bool

	mu        sync.Mutex
	lastQuery model.CandidateQuery
	getCalls  int
	listCalls int
}

func (s *memSource) GetCompanies(_ context.Context, ids []int64) ([]model.Company, error) {
	s.mu.Lock()
	s.getCalls++
	s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Company
	// reverse order so the ranker cannot rely on source ordering
	for i := len(s.companies) - 1; i >= 0; i-- {
		if want[s.companies[i].ID] {
			out = append(out, s.companies[i])
		}
	}
	return out, nil
}

func (s *memSource) ListCandidates(_ context.Context, q model.CandidateQuery) ([]model.Company, error) {
	s.mu.Lock()
	s.listCalls++
	s.lastQuery = q
	s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.ignoreQuery {
		return append([]model.Company(nil), s.companies...), nil
	}

	exclude := make(map[int64]bool, len(q.ExcludeIDs))
	for _, id := range q.ExcludeIDs {
		exclude[id] = true
	}
	var out []model.Company
	for _, c := range s.companies {
		if exclude[c.ID] {
			continue
		}
		if q.Country != "" && !strings.EqualFold(q.Country, c.Country) {
			continue
		}
		if q.Sector != "" && !strings.EqualFold(q.Sector, c.IndustrySector) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// memSink is an in-memory FeedbackSink keyed by (input, match, rater).
type memSink struct {
	mu   sync.Mutex
	rows map[string]model.Feedback
	err  error
}

func newMemSink() *memSink {
	return &memSink{rows: make(map[string]model.Feedback)}
}

func (s *memSink) UpsertFeedback(_ context.Context, fb *model.Feedback) (*model.Feedback, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := feedbackKey(fb.InputCompanyID, fb.MatchCompanyID, fb.Rater)
	if existing, ok := s.rows[key]; ok {
		existing.Verdict = fb.Verdict
		existing.Notes = fb.Notes
		existing.UpdatedAt = fb.UpdatedAt
		s.rows[key] = existing
		return &existing, nil
	}
	s.rows[key] = *fb
	out := *fb
	return &out, nil
}

func (s *memSink) ListFeedback(_ context.Context, inputCompanyID int64) ([]model.Feedback, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Feedback
	for _, fb := range s.rows {
		if fb.InputCompanyID == inputCompanyID {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchCompanyID < out[j].MatchCompanyID })
	return out, nil
}

func feedbackKey(input, match int64, rater string) string {
	return fmt.Sprintf("%d|%d|%s", input, match, rater)
}

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
