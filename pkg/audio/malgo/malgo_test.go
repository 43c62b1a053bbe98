package malgo

import (
	"testing"
	"time"
)

// TestDeliverWhileLifecycleLockHeld reproduces the shutdown interleaving:
// Stop/Close hold d.mu while the driver waits for the in-flight data
// callback to return. Delivery must complete without touching the lock, or
// that wait never ends.
func TestDeliverWhileLifecycleLockHeld(t *testing.T) {
	t.Parallel()

	d := New(Config{SampleRate: 16000})
	var got []byte
	cb := func(pcm []byte) { got = append(got, pcm...) }
	d.onPCM.Store(&cb)

	d.mu.Lock()
	defer d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.deliver([]byte{1, 2, 3, 4})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on the lifecycle mutex")
	}
	if len(got) != 4 {
		t.Fatalf("callback received %d bytes, want 4", len(got))
	}
}

// TestDeliverWithoutCallback covers the window between Stop clearing the
// callback and the driver draining its last buffer.
func TestDeliverWithoutCallback(t *testing.T) {
	t.Parallel()

	d := New(Config{SampleRate: 16000})
	d.deliver([]byte{1, 2, 3, 4}) // must not panic

	called := false
	cb := func([]byte) { called = true }
	d.onPCM.Store(&cb)
	d.onPCM.Store(nil)
	d.deliver([]byte{5, 6})
	if called {
		t.Fatal("callback invoked after it was cleared")
	}
}
