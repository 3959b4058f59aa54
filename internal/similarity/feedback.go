package similarity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps/internal/metrics"
	"github.com/sells-group/comps/internal/model"
)

// MaxFeedbackNotes bounds the free-text notes stored with a verdict.
const MaxFeedbackNotes = 2000

// FeedbackSink persists match feedback. UpsertFeedback overwrites the
// verdict of an existing (input, match, rater) record and returns the
// stored row.
type FeedbackSink interface {
	UpsertFeedback(ctx context.Context, fb *model.Feedback) (*model.Feedback, error)
	ListFeedback(ctx context.Context, inputCompanyID int64) ([]model.Feedback, error)
}

// FeedbackInput is a feedback submission.
type FeedbackInput struct {
	InputCompanyID int64         `json:"input_company_id"`
	MatchCompanyID int64         `json:"match_company_id"`
	Rater          string        `json:"rater"`
	Verdict        model.Verdict `json:"feedback_type"`
	Notes          string        `json:"notes,omitempty"`
}

// FeedbackService validates submissions and forwards them to a sink.
// Feedback does not influence scoring.
type FeedbackService struct {
	sink FeedbackSink
	now  func() time.Time
}

// NewFeedbackService creates a FeedbackService.
func NewFeedbackService(sink FeedbackSink) *FeedbackService {
	return &FeedbackService{sink: sink, now: time.Now}
}

// Submit validates in and upserts it.
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (*model.Feedback, error) {
	if err := validateFeedback(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	stored, err := s.sink.UpsertFeedback(ctx, &model.Feedback{
		ID:             uuid.New().String(),
		InputCompanyID: in.InputCompanyID,
		MatchCompanyID: in.MatchCompanyID,
		Rater:          in.Rater,
		Verdict:        in.Verdict,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, eris.Wrap(err, "similarity: submit feedback")
	}

	metrics.FeedbackSubmitted.WithLabelValues(string(in.Verdict)).Inc()
	zap.L().Info("similarity: feedback recorded",
		zap.Int64("input_company_id", in.InputCompanyID),
		zap.Int64("match_company_id", in.MatchCompanyID),
		zap.String("rater", in.Rater),
		zap.String("feedback_type", string(in.Verdict)),
	)
	return stored, nil
}

// List returns feedback recorded against an input company.
func (s *FeedbackService) List(ctx context.Context, inputCompanyID int64) ([]model.Feedback, error) {
	if inputCompanyID <= 0 {
		return nil, &ValidationError{Field: "input_company_id", Reason: "must be positive"}
	}
	out, err := s.sink.ListFeedback(ctx, inputCompanyID)
	if err != nil {
		return nil, eris.Wrap(err, "similarity: list feedback")
	}
	return out, nil
}

func validateFeedback(in *FeedbackInput) error {
	in.Rater = strings.TrimSpace(in.Rater)
	in.Notes = strings.TrimSpace(in.Notes)

	switch {
	case in.InputCompanyID <= 0:
		return &ValidationError{Field: "input_company_id", Reason: "must be positive"}
	case in.MatchCompanyID <= 0:
		return &ValidationError{Field: "match_company_id", Reason: "must be positive"}
	case in.InputCompanyID == in.MatchCompanyID:
		return &ValidationError{Field: "match_company_id", Reason: "must differ from input_company_id"}
	case in.Rater == "":
		return &ValidationError{Field: "rater", Reason: "is required"}
	case !in.Verdict.Valid():
		return &ValidationError{Field: "feedback_type", Reason: "must be good_match or not_a_match"}
	case len(in.Notes) > MaxFeedbackNotes:
		return &ValidationError{Field: "notes", Reason: "exceeds 2000 characters"}
	}
	return nil
}
