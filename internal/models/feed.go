package models

import "time"

// ResultItem is a single search result as returned by the feed.
type ResultItem struct {
	IDStr     string `json:"id_str,omitempty"`
	CreatedAt string `json:"created_at"`
	FromUser  string `json:"from_user,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Page is one batch of results from a paginated source.
type Page struct {
	Items   []ResultItem
	HasMore bool
}

// RunStatus is the outcome of a run.
type RunStatus string

const (
	// RunStatusOK marks a run whose state was persisted.
	RunStatusOK RunStatus = "ok"
	// RunStatusFailed marks a run aborted before persisting.
	RunStatusFailed RunStatus = "failed"
)

// RunRecord describes a single run for the run history.
type RunRecord struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ID         string    `json:"id"`
	TargetHour string    `json:"target_hour"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	Pages      int       `json:"pages"`
	Matches    int64     `json:"matches"`
}
