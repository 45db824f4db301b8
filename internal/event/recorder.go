package event

import "sync"

// Recorder keeps every event it receives, in arrival order.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) PublishLine(e LineEvent) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Topic: TopicOutput, Line: &e})
	r.mu.Unlock()
}

func (r *Recorder) PublishComplete(e CompletionEvent) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Topic: TopicComplete, Complete: &e})
	r.mu.Unlock()
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Lines returns the recorded line events, optionally restricted to one operation.
func (r *Recorder) Lines(operationID string) []LineEvent {
	var out []LineEvent
	for _, m := range r.Messages() {
		if m.Line != nil && (operationID == "" || m.Line.OperationID == operationID) {
			out = append(out, *m.Line)
		}
	}
	return out
}

// Completions returns the recorded completion events, optionally restricted to one operation.
func (r *Recorder) Completions(operationID string) []CompletionEvent {
	var out []CompletionEvent
	for _, m := range r.Messages() {
		if m.Complete != nil && (operationID == "" || m.Complete.OperationID == operationID) {
			out = append(out, *m.Complete)
		}
	}
	return out
}

// Texts returns the line texts of one operation (all when operationID is empty).
func (r *Recorder) Texts(operationID string) []string {
	lines := r.Lines(operationID)
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Line)
	}
	return out
}
