package domain

import "time"

// QueryStatus enumerates pipeline milestones of a query.
type QueryStatus string

const (
	StatusPending    QueryStatus = "PENDING"
	StatusProcessing QueryStatus = "PROCESSING"
	StatusCompleted  QueryStatus = "COMPLETED"
	StatusFailed     QueryStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s QueryStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the query lifecycle.
func CanTransition(from, to QueryStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Query is the persisted request a pipeline run works against.
type Query struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Status    QueryStatus   `json:"status"`
	Intent    *IntentResult `json:"intent,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// PipelineResult is what a run reports to its caller.
type PipelineResult struct {
	QueryID        string `json:"queryId"`
	Success        bool   `json:"success"`
	CandidateCount int    `json:"candidateCount"`
	Top10Count     int    `json:"top10Count"`
	DurationMs     int64  `json:"durationMs"`
	Error          string `json:"error,omitempty"`
}

// RunReport is sent to notifiers once a run is over.
type RunReport struct {
	Query    Query           `json:"query"`
	Result   PipelineResult  `json:"result"`
	Products []RankedProduct `json:"products,omitempty"`
}
