package model

import (
	"time"
)

// Verdict is a human judgment on a suggested match.
type Verdict string

const (
	VerdictGoodMatch Verdict = "good_match"
	VerdictNotAMatch Verdict = "not_a_match"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v == VerdictGoodMatch || v == VerdictNotAMatch
}

// Feedback is a stored judgment, unique per (input company, match company, rater).
type Feedback struct {
	ID             string    `json:"id"`
	InputCompanyID int64     `json:"input_company_id"`
	MatchCompanyID int64     `json:"match_company_id"`
	Rater          string    `json:"rater"`
	Verdict        Verdict   `json:"feedback_type"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
