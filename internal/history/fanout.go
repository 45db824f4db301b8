package history

import (
	"context"
	"errors"
	"log/slog"
)

// Fanout sends every event to all of its sinks. A failing sink does not stop
// delivery to the others; the errors are joined.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, e); err != nil {
			slog.Warn("History sink failed", "operation_id", e.Record.OperationID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds a connection.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
