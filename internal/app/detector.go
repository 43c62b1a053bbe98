package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/vigil/internal/bus"
	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/vad"
	"github.com/MrWong99/vigil/internal/wake"
	"github.com/MrWong99/vigil/pkg/audio"
	wakeprovider "github.com/MrWong99/vigil/pkg/provider/wake"
)

// detectorConfig bundles the per-detector parameters.
type detectorConfig struct {
	wake wake.Config
	vad  vad.Config
}

// detector is the single frame-consuming worker. Every captured frame runs
// through the wake-word confirmer and the endpointing tracker, then is
// republished as an [event.AudioChunk] for the session machine's capture
// buffer. One goroutine owns both detectors, so neither needs locking.
type detector struct {
	confirmer *wake.Confirmer
	tracker   *vad.Tracker
	bus       *bus.Bus
	metrics   *observe.Metrics

	// pending holds a live config update from the watcher, applied by the
	// worker goroutine before the next frame.
	pending atomic.Pointer[detectorConfig]
}

func newDetector(cfg detectorConfig, scorer wakeprovider.SessionHandle, b *bus.Bus, m *observe.Metrics) *detector {
	d := &detector{bus: b, metrics: m}
	d.confirmer = wake.New(scorer, cfg.wake, d.publish)
	d.tracker = vad.New(cfg.vad, d.publish)
	return d
}

// publish forwards detector events to the bus, counting them and resetting
// the endpointing tracker on wake: the reset discards any run carried over
// from the trigger phrase and opens a fresh one, so even a recording where
// the user says nothing endpoints at the silence timeout.
func (d *detector) publish(ev event.Event) {
	switch ev.(type) {
	case event.WakeConfirmed:
		d.metrics.WakeConfirmations.Add(context.Background(), 1)
		d.tracker.Reset()
	case event.SilenceDetected:
		d.metrics.SilenceDetections.Add(context.Background(), 1)
	}
	d.bus.Publish(ev)
}

// run consumes frames until the channel closes or ctx is cancelled.
func (d *detector) run(ctx context.Context, frames <-chan audio.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			d.process(ctx, f)
		}
	}
}

// updateConfig hands new thresholds to the worker goroutine. Safe to call
// from any goroutine; the worker applies them before its next frame.
func (d *detector) updateConfig(cfg detectorConfig) {
	d.pending.Store(&cfg)
}

// process runs one frame through both detectors and republishes its PCM.
func (d *detector) process(ctx context.Context, f audio.AudioFrame) {
	if cfg := d.pending.Swap(nil); cfg != nil {
		d.confirmer.SetConfig(cfg.wake)
		d.tracker.SetConfig(cfg.vad)
		slog.Info("detector: thresholds updated",
			"wake_threshold", cfg.wake.Threshold,
			"vad_threshold", cfg.vad.Threshold,
		)
	}

	d.metrics.FramesCaptured.Add(ctx, 1)

	if err := d.confirmer.ProcessFrame(f); err != nil {
		slog.Warn("detector: wake scoring failed", "seq", f.Seq, "err", err)
	}
	d.tracker.ProcessFrame(f)

	d.bus.Publish(event.AudioChunk{PCM: audio.BytesFromSamples(f.PCM)})
}
