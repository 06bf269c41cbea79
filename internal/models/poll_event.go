package models

import "time"

// Poll event types recorded in the event log.
const (
	EventInitialized       = "INITIALIZED"
	EventSetupFailed       = "SETUP_FAILED"
	EventDetectionDegraded = "DETECTION_DEGRADED"
	EventPollOK            = "POLL_OK"
	EventPollPartial       = "POLL_PARTIAL"
	EventPollFailed        = "POLL_FAILED"
)

// PollEvent is a single log entry.
type PollEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // INITIALIZED | SETUP_FAILED | POLL_OK | POLL_PARTIAL | POLL_FAILED ...
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
