package client

import "time"

// Event topics, as named on the SSE stream.
const (
	TopicOutput   = "operation:output"
	TopicComplete = "operation:complete"
)

// StartRequest asks the daemon to run its tool with Args.
// An empty OperationID lets the daemon assign one.
type StartRequest struct {
	OperationID string   `json:"operation_id,omitempty"`
	Args        []string `json:"args"`
	WorkDir     string   `json:"work_dir,omitempty"`
}

// StartResponse identifies the admitted operation.
type StartResponse struct {
	OperationID string `json:"operation_id"`
	PID         int    `json:"pid"`
}

// Status describes the operation currently holding the daemon, if any.
type Status struct {
	Busy        bool      `json:"busy"`
	OperationID string    `json:"operation_id,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Since       time.Time `json:"since,omitempty"`
}

// CommandInfo is the last command line the daemon launched.
type CommandInfo struct {
	OperationID string    `json:"operation_id,omitempty"`
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	WorkingDir  string    `json:"working_dir"`
	StartedAt   time.Time `json:"started_at"`
}

// LineEvent is one line of tool output.
type LineEvent struct {
	OperationID string    `json:"operation_id"`
	Line        string    `json:"line"`
	Timestamp   time.Time `json:"timestamp"`
	Origin      string    `json:"origin"`
	IsStderr    bool      `json:"is_stderr"`
}

// CompletionEvent is the last event of an operation.
type CompletionEvent struct {
	OperationID string  `json:"operation_id"`
	Success     bool    `json:"success"`
	Error       *string `json:"error,omitempty"`
}

// ErrorText returns the failure detail or "".
func (c CompletionEvent) ErrorText() string {
	if c.Error == nil {
		return ""
	}
	return *c.Error
}

// Event is one message of the event stream. Exactly one of Line and
// Complete is set.
type Event struct {
	Topic    string           `json:"topic"`
	Line     *LineEvent       `json:"line,omitempty"`
	Complete *CompletionEvent `json:"complete,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
