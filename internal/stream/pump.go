package stream

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/metrics"
)

// Pump drains one output stream of an invocation. The stdout and stderr pumps
// of the same invocation share Seen and Activity but own their Capture.
type Pump struct {
	OperationID string
	Origin      event.Origin
	Sink        event.Sink
	Seen        *SeenLines
	Capture     *Capture
	Activity    *Activity
}

// Run reads r until EOF or a read error and returns the number of lines it
// forwarded. Read errors end the pump after flushing the partial line; they
// are never returned.
func (p Pump) Run(r io.Reader) int {
	var (
		sp Splitter
		n  int
	)
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.Debug("Stream read ended with error", "operation_id", p.OperationID, "origin", p.Origin, "error", err)
			}
			break
		}
		if p.Activity != nil {
			p.Activity.Touch()
		}
		if line, ok := sp.Feed(b); ok && p.forward(line) {
			n++
		}
	}
	if line, ok := sp.Flush(); ok && p.forward(line) {
		n++
	}
	return n
}

func (p Pump) forward(line string) bool {
	if p.Seen != nil && !p.Seen.Admit(line) {
		return false
	}
	if p.Capture != nil {
		p.Capture.Append(line)
	}
	if p.Sink != nil {
		p.Sink.PublishLine(event.NewLine(p.OperationID, line, p.Origin))
	}
	metrics.IncLine(string(p.Origin))
	return true
}
