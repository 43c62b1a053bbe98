package session

import (
	"bytes"
	"testing"
	"time"
)

func TestCaptureBuffer_AppendAndBound(t *testing.T) {
	b := NewCaptureBuffer(8)

	if n := b.Append([]byte{1, 2, 3, 4}); n != 4 {
		t.Fatalf("Append = %d, want 4", n)
	}
	if b.Len() != 4 || b.Truncated() {
		t.Fatalf("Len = %d, Truncated = %v", b.Len(), b.Truncated())
	}

	// Overflows the bound by two bytes.
	if n := b.Append([]byte{5, 6, 7, 8, 9, 10}); n != 4 {
		t.Fatalf("Append = %d, want 4", n)
	}
	if !b.Truncated() {
		t.Error("Truncated = false after short write")
	}
	if want := []byte{1, 2, 3, 4, 5, 6, 7, 8}; !bytes.Equal(b.Bytes(), want) {
		t.Errorf("Bytes = %v, want %v", b.Bytes(), want)
	}

	// Full buffer accepts nothing.
	if n := b.Append([]byte{11}); n != 0 {
		t.Errorf("Append on full buffer = %d, want 0", n)
	}
}

func TestCaptureBuffer_Duration(t *testing.T) {
	b := NewCaptureBuffer(1 << 20)
	// One second of 16kHz mono 16-bit audio.
	b.Append(make([]byte, 32000))
	if got := b.Duration(16000, 1); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	if got := b.Duration(16000, 2); got != 500*time.Millisecond {
		t.Errorf("stereo Duration = %v, want 500ms", got)
	}
}

func TestCaptureBuffer_Clear(t *testing.T) {
	b := NewCaptureBuffer(2)
	b.Append([]byte{1, 2, 3})
	b.Clear()
	if b.Len() != 0 || b.Truncated() {
		t.Errorf("after Clear: Len = %d, Truncated = %v", b.Len(), b.Truncated())
	}
}

func TestCaptureBuffer_BytesIsACopy(t *testing.T) {
	b := NewCaptureBuffer(8)
	b.Append([]byte{1, 2})
	got := b.Bytes()
	got[0] = 99
	if b.Bytes()[0] != 1 {
		t.Error("Bytes returned a view into the buffer")
	}
}
