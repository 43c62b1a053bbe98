package session

import (
	"sync"
	"time"

	"github.com/MrWong99/vigil/internal/event"
)

// scheduler owns the machine's timers. Each expiry re-enters the bus as an
// [event.TimerFired] so the loop stays free of sleeps. Every schedule or
// cancel bumps the kind's generation; the machine discards firings whose
// generation is stale, which makes cancelled or superseded timers harmless
// even when their event is already queued.
type scheduler struct {
	publish func(event.Event)

	mu     sync.Mutex
	gens   map[event.TimerKind]uint64
	timers map[event.TimerKind]*time.Timer
}

func newScheduler(publish func(event.Event)) *scheduler {
	return &scheduler{
		publish: publish,
		gens:    make(map[event.TimerKind]uint64),
		timers:  make(map[event.TimerKind]*time.Timer),
	}
}

// schedule arms kind to fire after d, superseding any earlier schedule of
// the same kind.
func (s *scheduler) schedule(kind event.TimerKind, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.timers[kind]; t != nil {
		t.Stop()
	}
	s.gens[kind]++
	gen := s.gens[kind]
	s.timers[kind] = time.AfterFunc(d, func() {
		s.publish(event.TimerFired{Timer: kind, Generation: gen})
	})
}

// cancel disarms kind. A firing already in flight is invalidated by the
// generation bump.
func (s *scheduler) cancel(kind event.TimerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t := s.timers[kind]; t != nil {
		t.Stop()
		delete(s.timers, kind)
	}
	s.gens[kind]++
}

// cancelAll disarms every timer.
func (s *scheduler) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, t := range s.timers {
		t.Stop()
		delete(s.timers, kind)
		s.gens[kind]++
	}
}

// valid reports whether a firing belongs to the current generation of its
// kind.
func (s *scheduler) valid(kind event.TimerKind, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[kind] == gen
}
