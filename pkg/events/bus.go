package events

import (
	"sync"
	"time"
)

// Bus carries run and task lifecycle events from the runner to observers
// such as the inspector.
type Bus interface {
	Publish(event Event)
	Subscribe(filter ...EventType) <-chan Event
	Unsubscribe(ch <-chan Event)
	History(since time.Time) []Event
}

// DefaultHistoryLimit bounds the events kept for late subscribers.
const DefaultHistoryLimit = 4096

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

type subscription struct {
	ch    chan Event
	types map[EventType]bool // nil means every type
}

func (s *subscription) wants(t EventType) bool {
	return s.types == nil || s.types[t]
}

// MemoryBus keeps a bounded event log in memory and fans each event out to
// subscribers without blocking the publisher. A subscriber whose buffer is
// full misses the event; History still has it.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[<-chan Event]*subscription
	log    []Event
	limit  int
	closed bool
}

// NewMemoryBus creates a bus retaining DefaultHistoryLimit events.
func NewMemoryBus() *MemoryBus {
	return NewMemoryBusWithLimit(DefaultHistoryLimit)
}

// NewMemoryBusWithLimit creates a bus keeping at most limit events of
// history. limit <= 0 keeps everything.
func NewMemoryBusWithLimit(limit int) *MemoryBus {
	return &MemoryBus{
		subs:  make(map[<-chan Event]*subscription),
		limit: limit,
	}
}

// Publish appends event to the history and delivers it to matching
// subscribers. Delivery and Unsubscribe share one lock, so a channel is
// never sent on after it was closed.
func (b *MemoryBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.log = append(b.log, event)
	if b.limit > 0 && len(b.log) > b.limit {
		b.log = append(b.log[:0], b.log[len(b.log)-b.limit:]...)
	}
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(event.Type) {
			continue
		}
		select {
		case s.ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given. On a closed bus the channel is already
// closed.
func (b *MemoryBus) Subscribe(filter ...EventType) <-chan Event {
	s := &subscription{ch: make(chan Event, subscriberBuffer)}
	if len(filter) > 0 {
		s.types = make(map[EventType]bool, len(filter))
		for _, t := range filter {
			s.types[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s.ch
	}
	b.subs[s.ch] = s
	return s.ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (b *MemoryBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(s.ch)
	}
}

// Close closes every subscriber channel. Later events are still recorded in
// the history but no longer delivered.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for ch, s := range b.subs {
		delete(b.subs, ch)
		close(s.ch)
	}
}

// History returns retained events at or after since, oldest first.
func (b *MemoryBus) History(since time.Time) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Event
	for _, e := range b.log {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}
