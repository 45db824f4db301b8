package event

import (
	"sync"

	"github.com/loykin/procstream/internal/metrics"
)

const defaultSubscriberBuffer = 256

// Message is one event as delivered to a Bus subscriber.
// Exactly one of Line or Complete is set.
type Message struct {
	Topic    string           `json:"topic"`
	Line     *LineEvent       `json:"line,omitempty"`
	Complete *CompletionEvent `json:"complete,omitempty"`
}

// OperationID returns the operation the message belongs to.
func (m Message) OperationID() string {
	if m.Line != nil {
		return m.Line.OperationID
	}
	if m.Complete != nil {
		return m.Complete.OperationID
	}
	return ""
}

// Bus fans events out to subscribers (SSE clients, CLI followers).
// Publishing never blocks and never loses a message: each subscriber owns an
// unbounded FIFO queue that a goroutine drains into C in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewBus creates a bus. buffer sizes each subscriber's channel; <= 0 selects
// the default.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription receives messages on C until Close is called.
type Subscription struct {
	C <-chan Message

	bus    *Bus
	ch     chan Message
	filter string
	done   chan struct{}
	once   sync.Once

	qmu    sync.Mutex
	queue  []Message
	notify chan struct{}
}

// Subscribe registers a subscriber. A non-empty operationID restricts delivery
// to that operation's events.
func (b *Bus) Subscribe(operationID string) *Subscription {
	ch := make(chan Message, b.buffer)
	s := &Subscription{
		C:      ch,
		bus:    b,
		ch:     ch,
		filter: operationID,
		done:   make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.deliver()
	return s
}

// Close unsubscribes and, once the delivery goroutine stops, closes C.
// Undelivered messages are discarded. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.done)
	})
}

// Pending reports messages queued but not yet handed to C.
func (s *Subscription) Pending() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return len(s.queue)
}

func (s *Subscription) wants(operationID string) bool {
	return s.filter == "" || s.filter == operationID
}

func (s *Subscription) enqueue(m Message) {
	s.qmu.Lock()
	s.queue = append(s.queue, m)
	s.qmu.Unlock()
	metrics.AddBusBacklog(1)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) deliver() {
	defer close(s.ch)
	for {
		select {
		case <-s.notify:
		case <-s.done:
			s.discard()
			return
		}
		for {
			s.qmu.Lock()
			batch := s.queue
			s.queue = nil
			s.qmu.Unlock()
			if len(batch) == 0 {
				break
			}
			for i, m := range batch {
				select {
				case s.ch <- m:
					metrics.AddBusBacklog(-1)
				case <-s.done:
					metrics.AddBusBacklog(-(len(batch) - i))
					s.discard()
					return
				}
			}
		}
	}
}

func (s *Subscription) discard() {
	s.qmu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.qmu.Unlock()
	metrics.AddBusBacklog(-n)
}

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) PublishLine(e LineEvent) {
	b.publish(e.OperationID, Message{Topic: TopicOutput, Line: &e})
}

func (b *Bus) PublishComplete(e CompletionEvent) {
	b.publish(e.OperationID, Message{Topic: TopicComplete, Complete: &e})
}

func (b *Bus) publish(operationID string, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if s.wants(operationID) {
			s.enqueue(msg)
		}
	}
}
