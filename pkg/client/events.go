package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxEventBytes bounds one SSE line. The daemon caps tool lines at 64 KiB;
// JSON escaping can grow that up to six times.
const maxEventBytes = 1 << 20

// EventStream reads server-sent events from the daemon.
type EventStream struct {
	body io.ReadCloser
	sc   *bufio.Scanner
}

func newEventStream(body io.ReadCloser) *EventStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &EventStream{body: body, sc: sc}
}

// Next blocks for the next event. It returns io.EOF when the daemon ends the
// stream. Comment lines (keep-alives) and unknown fields are skipped.
func (s *EventStream) Next() (Event, error) {
	var (
		name string
		data strings.Builder
	)
	for s.sc.Scan() {
		line := s.sc.Text()
		if line == "" {
			if data.Len() == 0 {
				name = ""
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return Event{}, fmt.Errorf("decode event %q: %w", name, err)
			}
			if ev.Topic == "" {
				ev.Topic = name
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	if err := s.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func (s *EventStream) Close() error { return s.body.Close() }
