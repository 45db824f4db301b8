// Package transcript persists tool output to rotating per-stream log files.
package transcript

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/logger"
)

// Sink is an event.Sink appending every line to <name>.stdout.log or
// <name>.stderr.log, and a completion marker to the stdout file.
type Sink struct {
	mu     sync.Mutex
	stdout io.WriteCloser
	stderr io.WriteCloser
}

// New opens rotating writers for name under cfg. It fails when cfg names no
// destination at all.
func New(cfg logger.FileConfig, name string) (*Sink, error) {
	out, errW, err := cfg.Writers(name)
	if err != nil {
		return nil, err
	}
	if out == nil && errW == nil {
		return nil, errors.New("transcript: no directory or file path configured")
	}
	return &Sink{stdout: out, stderr: errW}, nil
}

func (s *Sink) PublishLine(e event.LineEvent) {
	w := s.stdout
	if e.IsStderr {
		w = s.stderr
	}
	s.write(w, fmt.Sprintf("%s [%s] %s\n", e.Timestamp.Format(time.RFC3339Nano), e.OperationID, e.Line))
}

func (s *Sink) PublishComplete(e event.CompletionEvent) {
	status := "success"
	if !e.Success {
		status = "failure: " + e.ErrorText()
	}
	s.write(s.stdout, fmt.Sprintf("%s [%s] -- completed (%s)\n", time.Now().UTC().Format(time.RFC3339Nano), e.OperationID, status))
}

func (s *Sink) write(w io.Writer, line string) {
	if w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(w, line); err != nil {
		slog.Warn("Transcript write failed", "error", err)
	}
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, w := range []io.WriteCloser{s.stdout, s.stderr} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	return errors.Join(errs...)
}
