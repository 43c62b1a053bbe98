// Package audio defines the frame types and capture abstractions for the
// vigil audio pipeline.
//
// The two primary abstractions are:
//
//   - [Device] — the hardware half of capture: it delivers raw PCM buffers
//     via a callback on the driver's audio thread.
//   - [Source] — a running stream of [AudioFrame] values. The standard
//     implementation is [CaptureSource], which adapts a Device into a Source
//     by framing the callback bytes, stamping sequence numbers and capture
//     times, and buffering through a fixed-capacity [Ring].
//
// Frames are immutable once produced. Both detectors (wake-word scoring and
// voice-activity tracking) read the same frame values; the fan-out copies
// only the frame header, never the PCM slice, so consumers must treat
// [AudioFrame.PCM] as read-only.
//
// This package lives under pkg/ because capture backends (miniaudio, ALSA,
// test mocks) are expected to implement [Device] and [Source].
package audio

import (
	"context"
	"time"
)

// AudioFrame is a single fixed-size frame of microphone audio.
type AudioFrame struct {
	// PCM holds signed 16-bit samples. Read-only after production.
	PCM []int16

	// Seq is the monotonic frame sequence number, starting at 0 for the
	// first frame a Source produces. Gaps indicate ring overflow.
	Seq uint64

	// SampleRate in Hz (16000 for the wake/VAD pipeline).
	SampleRate int

	// Channels is the channel count after capture conversion; always 1 in
	// the detection pipeline.
	Channels int

	// CapturedAt is the wall-clock time the frame was read from hardware.
	CapturedAt time.Time
}

// Duration returns the play time covered by the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Device is the hardware half of audio capture. Implementations wrap a
// platform driver (miniaudio, ALSA, …) and invoke the callback passed to
// Start for every captured buffer, on the driver's own thread. The callback
// must not block.
//
// Implementations must be safe for concurrent use of Stop/Close against a
// running callback.
type Device interface {
	// Start begins capture, delivering little-endian int16 PCM buffers to
	// onPCM. Returns an error if the device cannot be opened or started;
	// such errors unwrap to [*MicrophoneError].
	Start(onPCM func(pcm []byte)) error

	// Stop halts capture without releasing the device. Safe to call when
	// not started.
	Stop() error

	// Close releases the device. After Close the Device cannot be restarted.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Source is a running stream of audio frames.
//
// Frames delivers an infinite, non-restartable sequence; the channel is
// closed only when Run returns. Run blocks until ctx is cancelled or the
// source fails fatally (for capture sources, after re-initialisation
// attempts are exhausted).
type Source interface {
	Frames() <-chan AudioFrame
	Run(ctx context.Context) error
}
