package session

import "time"

// CaptureBuffer accumulates an utterance's PCM bytes up to a fixed bound.
// The bound corresponds to the maximum recording duration; audio past it is
// discarded rather than grown into, keeping memory use flat on constrained
// hardware. Owned by the machine goroutine, not safe for concurrent use.
type CaptureBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

// NewCaptureBuffer creates a buffer bounded at max bytes.
func NewCaptureBuffer(max int) *CaptureBuffer {
	if max < 1 {
		max = 1
	}
	return &CaptureBuffer{buf: make([]byte, 0, max), max: max}
}

// Append stores as much of pcm as fits and returns the number of bytes
// accepted. A short write marks the buffer truncated.
func (b *CaptureBuffer) Append(pcm []byte) int {
	room := b.max - len(b.buf)
	if room <= 0 {
		if len(pcm) > 0 {
			b.truncated = true
		}
		return 0
	}
	n := len(pcm)
	if n > room {
		n = room
		b.truncated = true
	}
	b.buf = append(b.buf, pcm[:n]...)
	return n
}

// Bytes returns a copy of the accumulated audio.
func (b *CaptureBuffer) Bytes() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Len returns the number of accumulated bytes.
func (b *CaptureBuffer) Len() int { return len(b.buf) }

// Truncated reports whether any audio was discarded for lack of room.
func (b *CaptureBuffer) Truncated() bool { return b.truncated }

// Duration converts the accumulated byte count to audio time for 16-bit PCM
// at the given rate and channel count.
func (b *CaptureBuffer) Duration(sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(b.buf) / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Clear discards all accumulated audio and the truncation flag.
func (b *CaptureBuffer) Clear() {
	b.buf = b.buf[:0]
	b.truncated = false
}
