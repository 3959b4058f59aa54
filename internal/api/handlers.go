package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/model"
	"github.com/sells-group/comps/internal/similarity"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type similarRequest struct {
	InputCompanyIDs []int64       `json:"input_company_ids" validate:"required,min=1,dive,gt=0"`
	MinScore        *float64      `json:"min_score" validate:"omitempty,gte=0,lte=100"`
	Limit           int           `json:"limit" validate:"omitempty,gte=1,lte=100"`
	Filters         *filtersInput `json:"filters"`
}

type filtersInput struct {
	Country string `json:"country" validate:"omitempty,max=64"`
	Sector  string `json:"sector" validate:"omitempty,max=128"`
}

type feedbackRequest struct {
	InputCompanyID int64  `json:"input_company_id" validate:"required,gt=0"`
	MatchCompanyID int64  `json:"match_company_id" validate:"required,gt=0,nefield=InputCompanyID"`
	FeedbackType   string `json:"feedback_type" validate:"required,oneof=good_match not_a_match"`
	Notes          string `json:"notes" validate:"max=2000"`
	Rater          string `json:"rater" validate:"required,max=256"`
}

type feedbackListResponse struct {
	InputCompanyID int64            `json:"input_company_id"`
	Feedback       []model.Feedback `json:"feedback"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var body similarRequest
	if !s.decode(w, r, &body) {
		return
	}

	req := similarity.Request{
		SeedIDs:  body.InputCompanyIDs,
		MinScore: body.MinScore,
		Limit:    body.Limit,
	}
	if req.MinScore == nil && s.opts.DefaultMinScore != nil {
		v := *s.opts.DefaultMinScore
		req.MinScore = &v
	}
	if req.Limit == 0 {
		req.Limit = s.opts.DefaultLimit
	}
	if body.Filters != nil {
		req.Filters = similarity.Filters{Country: body.Filters.Country, Sector: body.Filters.Sector}
	}

	resp, err := s.ranker.Rank(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequest
	if !s.decode(w, r, &body) {
		return
	}

	_, err := s.feedback.Submit(r.Context(), similarity.FeedbackInput{
		InputCompanyID: body.InputCompanyID,
		MatchCompanyID: body.MatchCompanyID,
		Rater:          body.Rater,
		Verdict:        model.Verdict(body.FeedbackType),
		Notes:          body.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "input_company_id"), 10, 64)
	if err != nil {
		writeError(w, r, &similarity.ValidationError{Field: "input_company_id", Reason: "must be an integer"})
		return
	}

	items, err := s.feedback.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Feedback{}
	}
	writeJSON(w, http.StatusOK, feedbackListResponse{InputCompanyID: id, Feedback: items})
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}
