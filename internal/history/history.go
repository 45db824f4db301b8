package history

import (
	"context"
	"time"
)

// EventType defines the kind of operation event.
type EventType string

const (
	EventComplete EventType = "complete"
)

// Record is the outcome of one tool invocation.
type Record struct {
	OperationID string    `json:"operation_id"`
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	WorkDir     string    `json:"work_dir"`
	PID         int       `json:"pid"`
	State       string    `json:"state"`
	Success     bool      `json:"success"`
	ExitCode    int       `json:"exit_code"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Lines       int       `json:"lines"`
}

// Event represents an operation event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
