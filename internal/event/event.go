package event

import "time"

// Topic names published to UIs.
const (
	TopicOutput   = "operation:output"
	TopicComplete = "operation:complete"
)

// Origin identifies the stream a line was read from.
type Origin string

const (
	Stdout Origin = "stdout"
	Stderr Origin = "stderr"
)

// LineEvent is one framed, deduplicated line of subprocess output.
type LineEvent struct {
	OperationID string    `json:"operation_id"`
	Line        string    `json:"line"`
	Timestamp   time.Time `json:"timestamp"`
	Origin      Origin    `json:"origin"`
	IsStderr    bool      `json:"is_stderr"`
}

// NewLine builds a LineEvent stamped with the current time.
func NewLine(operationID, line string, origin Origin) LineEvent {
	return LineEvent{
		OperationID: operationID,
		Line:        line,
		Timestamp:   time.Now().UTC(),
		Origin:      origin,
		IsStderr:    origin == Stderr,
	}
}

// CompletionEvent terminates the event sequence of one invocation.
type CompletionEvent struct {
	OperationID string  `json:"operation_id"`
	Success     bool    `json:"success"`
	Error       *string `json:"error,omitempty"`
}

// NewCompletion builds a CompletionEvent; a non-empty errText marks failure detail.
func NewCompletion(operationID string, success bool, errText string) CompletionEvent {
	c := CompletionEvent{OperationID: operationID, Success: success}
	if !success {
		c.Error = &errText
	}
	return c
}

// ErrorText returns the error detail or "".
func (c CompletionEvent) ErrorText() string {
	if c.Error == nil {
		return ""
	}
	return *c.Error
}

// Sink receives events of running invocations.
// Implementations must be safe for concurrent use: both pumps of an invocation publish at once.
type Sink interface {
	PublishLine(LineEvent)
	PublishComplete(CompletionEvent)
}

type discard struct{}

func (discard) PublishLine(LineEvent)           {}
func (discard) PublishComplete(CompletionEvent) {}

// Discard drops every event.
var Discard Sink = discard{}

// Multi forwards to each sink in order.
type Multi []Sink

func (m Multi) PublishLine(e LineEvent) {
	for _, s := range m {
		if s != nil {
			s.PublishLine(e)
		}
	}
}

func (m Multi) PublishComplete(e CompletionEvent) {
	for _, s := range m {
		if s != nil {
			s.PublishComplete(e)
		}
	}
}
