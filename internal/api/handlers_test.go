package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

type mockRanker struct {
	mock.Mock
}

func (m *mockRanker) Rank(ctx context.Context, req similarity.Request) (*similarity.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*similarity.Response), args.Error(1)
}

type mockFeedback struct {
	mock.Mock
}

func (m *mockFeedback) Submit(ctx context.Context, in similarity.FeedbackInput) (*model.Feedback, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Feedback), args.Error(1)
}

func (m *mockFeedback) List(ctx context.Context, id int64) ([]model.Feedback, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Feedback), args.Error(1)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv := NewServer(&mockRanker{}, &mockFeedback{}, stubPinger{}, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestHealth_StoreDown(t *testing.T) {
	srv := NewServer(&mockRanker{}, &mockFeedback{}, stubPinger{err: errors.New("connection refused")}, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unavailable", decodeBody(t, rr)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(&mockRanker{}, &mockFeedback{}, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestSimilar_OK(t *testing.T) {
	ranker := &mockRanker{}
	rev := 25.0
	ranker.On("Rank", mock.Anything, similarity.Request{
		SeedIDs: []int64{1, 2},
		Limit:   5,
		Filters: similarity.Filters{Country: "US"},
	}).Return(&similarity.Response{
		InputCompanies: []model.CompanySummary{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Beta"}},
		Matches: []similarity.Match{{
			Company:             model.CompanySummary{ID: 9, Name: "Zed", RevenueMillions: &rev},
			SimilarityScore:     82.5,
			Confidence:          0.9,
			CategoriesWithScore: 4,
			MatchedSeedID:       1,
			Reasoning:           "Zed is highly similar to Acme.",
			MatchingAttributes:  []string{"Same sector: Technology"},
		}},
		TotalResults: 1,
	}, nil)

	srv := NewServer(ranker, &mockFeedback{}, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies",
		`{"input_company_ids":[1,2],"limit":5,"filters":{"country":"US"}}`)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp similarity.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalResults)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, int64(9), resp.Matches[0].Company.ID)
	assert.InDelta(t, 82.5, resp.Matches[0].SimilarityScore, 0.001)
	assert.Equal(t, int64(1), resp.Matches[0].MatchedSeedID)
	ranker.AssertExpectations(t)
}

func TestSimilar_AppliesConfiguredDefaults(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", mock.Anything, mock.MatchedBy(func(req similarity.Request) bool {
		return req.MinScore != nil && *req.MinScore == 70 && req.Limit == 10
	})).Return(&similarity.Response{}, nil)

	minScore := 70.0
	srv := NewServer(ranker, &mockFeedback{}, nil, Options{DefaultMinScore: &minScore, DefaultLimit: 10})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", `{"input_company_ids":[3]}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	ranker.AssertExpectations(t)
}

func TestSimilar_ExplicitZeroMinScoreKept(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", mock.Anything, mock.MatchedBy(func(req similarity.Request) bool {
		return req.MinScore != nil && *req.MinScore == 0
	})).Return(&similarity.Response{}, nil)

	minScore := 70.0
	srv := NewServer(ranker, &mockFeedback{}, nil, Options{DefaultMinScore: &minScore})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", `{"input_company_ids":[3],"min_score":0}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	ranker.AssertExpectations(t)
}

func TestSimilar_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"input_company_ids":`, "invalid request body"},
		{"unknown field", `{"input_company_ids":[1],"seeds":[2]}`, "invalid request body"},
		{"empty ids", `{"input_company_ids":[]}`, "input_company_ids"},
		{"missing ids", `{}`, "input_company_ids"},
		{"non-positive id", `{"input_company_ids":[1,0]}`, "input_company_ids[1]"},
		{"score above range", `{"input_company_ids":[1],"min_score":101}`, "min_score"},
		{"limit above max", `{"input_company_ids":[1],"limit":101}`, "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &mockRanker{}
			srv := NewServer(ranker, &mockFeedback{}, nil, Options{})
			rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeBody(t, rr)["error"], tt.want)
			ranker.AssertNotCalled(t, "Rank", mock.Anything, mock.Anything)
		})
	}
}

func TestSimilar_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &similarity.ValidationError{Field: "limit", Reason: "bad"}, http.StatusBadRequest},
		{"not found", &similarity.NotFoundError{IDs: []int64{7, 8}}, http.StatusNotFound},
		{"wrapped not found", errors.Join(errors.New("ctx"), &similarity.NotFoundError{IDs: []int64{7}}), http.StatusNotFound},
		{"internal", errors.New("store: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := &mockRanker{}
			ranker.On("Rank", mock.Anything, mock.Anything).Return(nil, tt.err)

			srv := NewServer(ranker, &mockFeedback{}, nil, Options{})
			rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", `{"input_company_ids":[7,8]}`)

			assert.Equal(t, tt.status, rr.Code)
			body := decodeBody(t, rr)
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"])
			}
		})
	}
}

func TestSimilar_NotFoundListsMissingIDs(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", mock.Anything, mock.Anything).Return(nil, &similarity.NotFoundError{IDs: []int64{7, 8}})

	srv := NewServer(ranker, &mockFeedback{}, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", `{"input_company_ids":[7,8]}`)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []int64{7, 8}, body.MissingIDs)
	assert.Contains(t, body.Error, "7, 8")
}

func TestSubmitFeedback_OK(t *testing.T) {
	fb := &mockFeedback{}
	fb.On("Submit", mock.Anything, similarity.FeedbackInput{
		InputCompanyID: 1,
		MatchCompanyID: 2,
		Rater:          "analyst@example.com",
		Verdict:        model.VerdictGoodMatch,
		Notes:          "same niche",
	}).Return(&model.Feedback{ID: "fb-1"}, nil)

	srv := NewServer(&mockRanker{}, fb, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies/feedback",
		`{"input_company_id":1,"match_company_id":2,"feedback_type":"good_match","notes":"same niche","rater":"analyst@example.com"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"status": "success"}, decodeBody(t, rr))
	fb.AssertExpectations(t)
}

func TestSubmitFeedback_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad verdict", `{"input_company_id":1,"match_company_id":2,"feedback_type":"maybe","rater":"a"}`, "feedback_type"},
		{"same company", `{"input_company_id":1,"match_company_id":1,"feedback_type":"good_match","rater":"a"}`, "match_company_id"},
		{"missing rater", `{"input_company_id":1,"match_company_id":2,"feedback_type":"not_a_match"}`, "rater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &mockFeedback{}
			srv := NewServer(&mockRanker{}, fb, nil, Options{})
			rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies/feedback", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeBody(t, rr)["error"], tt.want)
			fb.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitFeedback_SinkError(t *testing.T) {
	fb := &mockFeedback{}
	fb.On("Submit", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	srv := NewServer(&mockRanker{}, fb, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies/feedback",
		`{"input_company_id":1,"match_company_id":2,"feedback_type":"good_match","rater":"a"}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestListFeedback(t *testing.T) {
	fb := &mockFeedback{}
	fb.On("List", mock.Anything, int64(42)).Return([]model.Feedback{
		{ID: "fb-1", InputCompanyID: 42, MatchCompanyID: 7, Rater: "a", Verdict: model.VerdictNotAMatch},
	}, nil)

	srv := NewServer(&mockRanker{}, fb, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/api/similar-companies/feedback/42", "")

	require.Equal(t, http.StatusOK, rr.Code)
	var body feedbackListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.InputCompanyID)
	require.Len(t, body.Feedback, 1)
	assert.Equal(t, model.VerdictNotAMatch, body.Feedback[0].Verdict)
}

func TestListFeedback_EmptyIsArray(t *testing.T) {
	fb := &mockFeedback{}
	fb.On("List", mock.Anything, int64(5)).Return(nil, nil)

	srv := NewServer(&mockRanker{}, fb, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/api/similar-companies/feedback/5", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"feedback":[]`)
}

func TestListFeedback_BadID(t *testing.T) {
	srv := NewServer(&mockRanker{}, &mockFeedback{}, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodGet, "/api/similar-companies/feedback/abc", "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := NewServer(&mockRanker{}, &mockFeedback{}, nil, Options{CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/similar-companies", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(nil, nil)

	srv := NewServer(ranker, &mockFeedback{}, nil, Options{})
	rr := do(t, srv.Routes(), http.MethodPost, "/api/similar-companies", `{"input_company_ids":[1]}`)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
