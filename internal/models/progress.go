package models

import "time"

// ProgressStage identifies which phase of a discovery run an event
// belongs to.
type ProgressStage string

const (
	StageSearching ProgressStage = "searching"
	StageDeduping  ProgressStage = "deduping"
	StageVerifying ProgressStage = "verifying"
	StageWarning   ProgressStage = "warning"
	StageCompleted ProgressStage = "completed"
	StageError     ProgressStage = "error"
)

// ProgressEvent is emitted on a per-request channel as the discovery
// pipeline advances. Consumers decide how to surface it.
type ProgressEvent struct {
	Stage     ProgressStage `json:"stage"`
	Candidate string        `json:"candidate,omitempty"`
	Message   string        `json:"message"`
	Detail    string        `json:"detail,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ShownRecord is a history-ledger entry recording that an opportunity
// was already surfaced to a given scope.
type ShownRecord struct {
	Key        string    `badgerhold:"key"`
	Scope      string    `badgerholdIndex:"Scope"`
	Title      string    `json:"title"`
	LowerTitle string    `json:"lower_title"`
	URL        string    `json:"url"`
	ShownAt    time.Time `json:"shown_at"`
}
