// Package wake defines the Engine interface for wake-word scoring backends.
//
// A wake engine wraps a frame-level keyword detector (e.g. an ESP-SR WakeNet
// export, a Porcupine model, or a custom DSP pipeline) and surfaces it as a
// stateful, per-stream session producing one [Score] per audio frame. The
// two-utterance confirmation protocol that turns noisy scores into a single
// reliable wake signal lives in internal/wake — engines in this package only
// score frames.
//
// Scoring is synchronous by design: ProcessFrame returns immediately with a
// score so it can run inline in the audio fan-out loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package wake

// Config holds the parameters for a wake-scoring session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to ProcessFrame. The bundled models expect 16000.
	SampleRate int

	// FrameSize is the number of mono samples per frame. ProcessFrame
	// returns an error if the supplied frame does not match.
	FrameSize int
}

// SessionHandle represents an active scoring session for a single audio
// stream. It is an interface so that test code can supply scripted
// implementations without a live model. Each session maintains its own
// internal state (feature windows, smoothing history); Reset clears this
// state without closing the session.
type SessionHandle interface {
	// ProcessFrame scores a single frame of mono int16 PCM and returns the
	// detection score. Must not block; it runs inline in the frame fan-out.
	ProcessFrame(frame []int16) (Score, error)

	// Reset clears accumulated detection state without closing the session.
	// Use when the audio stream is interrupted or restarted.
	Reset()

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for scoring sessions, implemented by each wake-word
// backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a scoring session with the given configuration.
	// Returns an error if the configuration is invalid or the model cannot
	// be loaded.
	NewSession(cfg Config) (SessionHandle, error)
}
