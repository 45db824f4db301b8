package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error { m.closed = true; return nil }

func TestFanoutDeliversDespiteFailure(t *testing.T) {
	good := &memSink{}
	bad := &memSink{err: errors.New("down")}
	f := Fanout{bad, nil, good}

	e := Event{Type: EventComplete, OccurredAt: time.Now(), Record: Record{OperationID: "op-1", Success: true}}
	err := f.Send(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	require.Len(t, good.events, 1)
	assert.Equal(t, "op-1", good.events[0].Record.OperationID)

	require.NoError(t, f.Close())
	assert.True(t, good.closed)
	assert.True(t, bad.closed)
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, Fanout{}.Send(context.Background(), Event{}))
}
