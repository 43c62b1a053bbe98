// Package bus implements the event fabric decoupling producers (detectors,
// backend client, timers) from the session state machine.
//
// Delivery model: multi-producer, single consumer per subscription. Each
// subscription has its own bounded FIFO; Publish appends to every matching
// subscription without ever blocking the producer. Publish snapshots the
// subscriber list under the bus lock and then pushes to each queue under
// that queue's own lock; a producer calling Publish sequentially therefore
// keeps its events in order per subscription, while no ordering is
// guaranteed across producers. When a subscriber's queue is full the oldest
// queued event is dropped and counted — a stalled consumer must not stall
// the audio path.
package bus

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/vigil/internal/event"
)

// defaultCapacity is the per-subscription queue bound used when Subscribe
// is called with a non-positive capacity.
const defaultCapacity = 64

// Bus fans events out to subscriptions. All methods are safe for concurrent
// use.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscription is one consumer's bounded FIFO view of the bus.
type Subscription struct {
	name   string
	filter func(event.Event) bool

	mu     sync.Mutex
	queue  []event.Event
	drops  uint64
	cap    int
	notify chan struct{}
	closed bool
}

// Subscribe registers a consumer. name labels the subscription in logs;
// capacity bounds its queue. The optional filter restricts delivery to
// events it accepts; nil means all events.
func (b *Bus) Subscribe(name string, capacity int, filter func(event.Event) bool) *Subscription {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	s := &Subscription{
		name:   name,
		filter: filter,
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
	return s
}

// Publish delivers ev to every subscription whose filter accepts it.
// Never blocks.
func (b *Bus) Publish(ev event.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.push(ev)
	}
}

// Close stops delivery and wakes all subscribers so blocked receives can
// observe termination. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (s *Subscription) push(ev event.Event) {
	if s.filter != nil && !s.filter(ev) {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var dropped uint64
	if len(s.queue) == s.cap {
		// Bounded queue: drop the oldest rather than block the producer.
		s.queue = s.queue[1:]
		s.drops++
		dropped = s.drops
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	if dropped > 0 {
		slog.Warn("bus: subscriber queue full, dropping oldest event",
			"subscriber", s.name,
			"total_dropped", dropped,
		)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// TryNext pops the oldest queued event without blocking. The second return
// is false when the queue is empty.
func (s *Subscription) TryNext() (event.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Wait returns a channel that receives after events arrive (coalesced) or
// the bus is closed. Consumers loop: drain with TryNext, then block on Wait.
func (s *Subscription) Wait() <-chan struct{} {
	return s.notify
}

// Closed reports whether the bus has been closed.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Drops returns the number of events discarded due to a full queue.
func (s *Subscription) Drops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// Len returns the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
