// Package wake implements the two-utterance wake-word confirmation protocol.
//
// Raw per-frame detection scores from a [wake.SessionHandle] are too noisy to
// trigger on directly: a single threshold crossing on embedded audio produces
// an unacceptable false-positive rate. The confirmer therefore requires the
// wake phrase twice in close succession — a first qualifying score arms a
// confirmation window, and a second qualifying score inside the window
// confirms. The window lapsing reverts to idle silently: absence of a wake-up
// is the normal not-listening condition, never an error.
package wake

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/pkg/audio"
	wakeprovider "github.com/MrWong99/vigil/pkg/provider/wake"
)

// State is the confirmer's protocol position.
type State int

const (
	// StateIdle means no qualifying score has been heard.
	StateIdle State = iota

	// StateFirstUtteranceHeard means the confirmation window is open.
	StateFirstUtteranceHeard
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFirstUtteranceHeard:
		return "first-utterance-heard"
	default:
		return "unknown"
	}
}

// Config holds the confirmation protocol parameters.
type Config struct {
	// Threshold is the minimum score for a frame to count as an utterance.
	Threshold float64

	// Window is how long after the first utterance a second qualifying
	// score still confirms.
	Window time.Duration
}

// Confirmer consumes frames, scores them, and publishes a single
// [event.WakeConfirmed] when the protocol completes.
//
// Timing is derived from frame capture timestamps, not the wall clock, so
// the protocol is deterministic under test and immune to scheduling jitter.
// Not safe for concurrent use; exactly one goroutine (the detector worker)
// feeds frames.
type Confirmer struct {
	scorer  wakeprovider.SessionHandle
	cfg     Config
	publish func(event.Event)

	state   State
	firstAt time.Time

	// armed is set once a sub-threshold frame follows the first utterance,
	// separating the two utterances — a single sustained burst of
	// qualifying frames must not confirm against itself.
	armed bool
}

// New creates a Confirmer scoring frames with scorer and publishing
// confirmation events via publish.
func New(scorer wakeprovider.SessionHandle, cfg Config, publish func(event.Event)) *Confirmer {
	return &Confirmer{
		scorer:  scorer,
		cfg:     cfg,
		publish: publish,
	}
}

// State returns the current protocol position.
func (c *Confirmer) State() State { return c.state }

// SetConfig replaces the thresholds and abandons any confirmation round in
// progress. Must be called from the frame-feeding goroutine.
func (c *Confirmer) SetConfig(cfg Config) {
	c.cfg = cfg
	c.reset()
}

// ProcessFrame scores one frame and advances the protocol. Returns an error
// only if the scoring engine fails; protocol outcomes are communicated via
// the published event.
func (c *Confirmer) ProcessFrame(f audio.AudioFrame) error {
	score, err := c.scorer.ProcessFrame(f.PCM)
	if err != nil {
		return fmt.Errorf("wake: score frame %d: %w", f.Seq, err)
	}

	// Window lapse check first: a late qualifying score starts a fresh
	// protocol round instead of confirming a stale one.
	if c.state == StateFirstUtteranceHeard && f.CapturedAt.Sub(c.firstAt) > c.cfg.Window {
		slog.Debug("wake: confirmation window lapsed", "window", c.cfg.Window)
		c.reset()
	}

	qualifying := score.Value >= c.cfg.Threshold

	switch c.state {
	case StateIdle:
		if qualifying {
			c.state = StateFirstUtteranceHeard
			c.firstAt = f.CapturedAt
			c.armed = false
			slog.Debug("wake: first utterance heard",
				"score", score.Value,
				"seq", f.Seq,
			)
		}

	case StateFirstUtteranceHeard:
		if !qualifying {
			c.armed = true
			return nil
		}
		if !c.armed {
			// Still inside the first utterance's burst.
			return nil
		}
		slog.Info("wake: confirmed",
			"score", score.Value,
			"seq", f.Seq,
			"since_first", f.CapturedAt.Sub(c.firstAt),
		)
		c.publish(event.WakeConfirmed{At: f.CapturedAt})
		c.reset()
	}
	return nil
}

// reset returns the protocol to idle and clears scorer state.
func (c *Confirmer) reset() {
	c.state = StateIdle
	c.firstAt = time.Time{}
	c.armed = false
	c.scorer.Reset()
}
