package event

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestBus_DeliversInOrderWithFilter(t *testing.T) {
	b := NewBus(16)
	all := b.Subscribe("")
	defer all.Close()
	only := b.Subscribe("op-2")
	defer only.Close()

	b.PublishLine(NewLine("op-1", "a", Stdout))
	b.PublishLine(NewLine("op-2", "b", Stderr))
	b.PublishComplete(NewCompletion("op-2", true, ""))

	assert.Equal(t, "a", recv(t, all).Line.Line)
	assert.Equal(t, "b", recv(t, all).Line.Line)
	m := recv(t, all)
	assert.Equal(t, TopicComplete, m.Topic)
	assert.Equal(t, "op-2", m.OperationID())

	m = recv(t, only)
	assert.Equal(t, TopicOutput, m.Topic)
	assert.True(t, m.Line.IsStderr)
	m = recv(t, only)
	require.NotNil(t, m.Complete)
	assert.True(t, m.Complete.Success)
	assert.Nil(t, m.Complete.Error)
}

func TestBus_SlowSubscriberReceivesEveryLine(t *testing.T) {
	b := NewBus(1)
	s := b.Subscribe("op")
	defer s.Close()

	const n = 5000
	for i := 0; i < n; i++ {
		b.PublishLine(NewLine("op", strconv.Itoa(i), Stdout))
	}
	b.PublishComplete(NewCompletion("op", true, ""))

	for i := 0; i < n; i++ {
		m := recv(t, s)
		require.NotNil(t, m.Line)
		require.Equal(t, strconv.Itoa(i), m.Line.Line)
		if i%500 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	m := recv(t, s)
	require.NotNil(t, m.Complete)
	assert.Equal(t, 0, s.Pending())
}

func TestBus_PublishDoesNotWaitForReader(t *testing.T) {
	b := NewBus(1)
	s := b.Subscribe("")
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.PublishLine(NewLine("op", strconv.Itoa(i), Stdout))
		}
		b.PublishComplete(NewCompletion("op", true, ""))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on an idle subscriber")
	}
	assert.Equal(t, "0", recv(t, s).Line.Line)
}

func TestBus_CloseEndsDelivery(t *testing.T) {
	b := NewBus(1)
	s := b.Subscribe("")
	for i := 0; i < 10; i++ {
		b.PublishLine(NewLine("op", "fill", Stdout))
	}
	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers())

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-s.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("C not closed after Close")
		}
	}
}

func TestCompletionErrorText(t *testing.T) {
	ok := NewCompletion("op", true, "ignored")
	assert.Nil(t, ok.Error)
	assert.Equal(t, "", ok.ErrorText())

	failed := NewCompletion("op", false, "stderr detail")
	require.NotNil(t, failed.Error)
	assert.Equal(t, "stderr detail", failed.ErrorText())
}

func TestMultiAndRecorder(t *testing.T) {
	r1, r2 := NewRecorder(), NewRecorder()
	m := Multi{r1, nil, r2, Discard}
	m.PublishLine(NewLine("op", "x", Stdout))
	m.PublishComplete(NewCompletion("op", true, ""))

	for _, r := range []*Recorder{r1, r2} {
		assert.Equal(t, []string{"x"}, r.Texts("op"))
		assert.Len(t, r.Completions("op"), 1)
		assert.Empty(t, r.Completions("other"))
		msgs := r.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, TopicComplete, msgs[1].Topic)
	}
}
