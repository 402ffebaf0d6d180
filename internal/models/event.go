package models

import "time"

// Model log event types.
const (
	EventRunStart   = "RUN_START"
	EventRunFinish  = "RUN_FINISH"
	EventRunCancel  = "RUN_CANCEL"
	EventPoint      = "POINT"
	EventModel      = "MODEL"
	EventConnection = "CONNECTION"
	EventError      = "ERROR"
)

// ModelEvent is a single model log entry.
type ModelEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // RUN_START | RUN_FINISH | RUN_CANCEL | POINT | MODEL | CONNECTION | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
