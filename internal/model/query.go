package model

// CandidateQuery bounds the candidate pool loaded for one ranking call.
// Candidates are pre-ranked by revenue then valuation, so Limit keeps the
// largest comparable companies.
type CandidateQuery struct {
	ExcludeIDs []int64 `json:"exclude_ids,omitempty"`
	Country    string  `json:"country,omitempty"`
	Sector     string  `json:"sector,omitempty"`
	Limit      int     `json:"limit"`
}
