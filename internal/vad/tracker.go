// Package vad tracks voice activity on the capture stream and decides when
// an utterance has ended.
//
// Detection is energy based: a frame whose normalized RMS energy reaches the
// configured threshold counts as speech, anything below as silence. Endpoint
// decisions never fire on a single silent frame — silence has to accumulate
// for the configured timeout before the run is reported, so natural pauses
// inside an utterance do not cut the recording short.
package vad

import (
	"log/slog"
	"time"

	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/pkg/audio"
)

// Config holds the endpointing parameters.
type Config struct {
	// Threshold is the normalized RMS energy (0..1) at or above which a
	// frame counts as speech.
	Threshold float64

	// SilenceAfter is how much continuous sub-threshold audio must
	// accumulate before the silence run is reported.
	SilenceAfter time.Duration
}

// Tracker consumes frames and publishes [event.VoiceActivity] on the
// silent→speaking edge and at most one [event.SilenceDetected] per silence
// run. A run needs no preceding speech: it opens at [Tracker.Reset] (a new
// recording) or when speech ends, so waking the device and saying nothing
// still endpoints at the timeout. Silence time is accumulated from frame
// durations, not the wall clock. Not safe for concurrent use; one goroutine
// feeds frames.
type Tracker struct {
	cfg     Config
	publish func(event.Event)

	speaking  bool
	silentFor time.Duration
	reported  bool
}

// New creates a Tracker publishing events via publish.
func New(cfg Config, publish func(event.Event)) *Tracker {
	return &Tracker{cfg: cfg, publish: publish}
}

// Speaking reports whether the last frame was classified as speech.
func (t *Tracker) Speaking() bool { return t.speaking }

// SetConfig replaces the thresholds. The current silence run carries over
// and is re-judged against the new timeout on the next frame. Must be
// called from the frame-feeding goroutine.
func (t *Tracker) SetConfig(cfg Config) { t.cfg = cfg }

// ProcessFrame classifies one frame and advances the silence run.
func (t *Tracker) ProcessFrame(f audio.AudioFrame) {
	energy := audio.EnergyRMS(f.PCM)

	if energy >= t.cfg.Threshold {
		if !t.speaking {
			slog.Debug("vad: speech onset", "energy", energy, "seq", f.Seq)
			t.publish(event.VoiceActivity{})
		}
		t.speaking = true
		t.silentFor = 0
		t.reported = false
		return
	}

	t.silentFor += f.Duration()
	if !t.reported && t.silentFor >= t.cfg.SilenceAfter {
		slog.Debug("vad: silence run complete", "run", t.silentFor)
		t.publish(event.SilenceDetected{RunLength: t.silentFor})
		t.reported = true
		t.speaking = false
	}
}

// Reset clears all run state, as when a new recording begins. The next
// frame opens a fresh silence run, so a recording with no speech at all is
// endpointed SilenceAfter after it starts.
func (t *Tracker) Reset() {
	t.speaking = false
	t.silentFor = 0
	t.reported = false
}
