package audio

import "sync"

// Ring is a fixed-capacity frame buffer sitting between the capture callback
// (single writer, the driver's audio thread) and the pump goroutine that
// forwards frames downstream. When the ring is full the oldest frame is
// overwritten — capture must never block on a slow consumer. Overwrites are
// counted so the pump can log them as soft overflows.
//
// Safe for concurrent use by one writer and any number of readers.
type Ring struct {
	mu        sync.Mutex
	frames    []AudioFrame
	head      int // index of oldest frame
	count     int
	overflows uint64

	// notify wakes the pump when a frame arrives. Capacity 1: coalescing
	// wakeups is fine, the pump drains the ring each cycle.
	notify chan struct{}
}

// NewRing creates a Ring holding at most capacity frames. Capacity must be
// at least 1; smaller values are raised to 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		frames: make([]AudioFrame, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Push appends a frame, overwriting the oldest frame when full. Never blocks.
// Returns true if an old frame was overwritten.
func (r *Ring) Push(f AudioFrame) bool {
	r.mu.Lock()
	overwrote := false
	if r.count == len(r.frames) {
		// Full: drop the oldest.
		r.head = (r.head + 1) % len(r.frames)
		r.count--
		r.overflows++
		overwrote = true
	}
	tail := (r.head + r.count) % len(r.frames)
	r.frames[tail] = f
	r.count++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return overwrote
}

// Pop removes and returns the oldest frame. The second return is false when
// the ring is empty.
func (r *Ring) Pop() (AudioFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return AudioFrame{}, false
	}
	f := r.frames[r.head]
	r.frames[r.head] = AudioFrame{}
	r.head = (r.head + 1) % len(r.frames)
	r.count--
	return f, true
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Overflows returns the total number of frames overwritten since creation.
func (r *Ring) Overflows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overflows
}

// Wait returns a channel that receives after at least one Push since the
// last drain. Used by the pump to block without polling.
func (r *Ring) Wait() <-chan struct{} {
	return r.notify
}
