package scanerrors

import "time"

// Phase names the workflow step whose failure was absorbed.
type Phase string

const (
	PhaseAnalysis Phase = "analysis"
	PhasePersist  Phase = "persist"
	PhaseArchive  Phase = "archive"
	PhaseSettle   Phase = "settle"
	PhaseRelease  Phase = "release"
)

// ScanError represents a persisted scan error entry
type ScanError struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	ScanID      string    `json:"scan_id"`
	URL         string    `json:"url,omitempty"`
	Phase       Phase     `json:"phase"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
