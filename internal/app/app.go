// Package app wires all vigil subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// capture pipeline, detectors, session machine, backend client and the
// telemetry server; Run executes everything under one errgroup; Shutdown
// tears the subsystems down in order.
//
// For testing, inject doubles via functional options (WithSource,
// WithChatClient, etc.). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vigil/internal/backend"
	"github.com/MrWong99/vigil/internal/bus"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/render"
	"github.com/MrWong99/vigil/internal/session"
	"github.com/MrWong99/vigil/internal/vad"
	"github.com/MrWong99/vigil/internal/wake"
	"github.com/MrWong99/vigil/pkg/audio"
	malgodev "github.com/MrWong99/vigil/pkg/audio/malgo"
	wakeprovider "github.com/MrWong99/vigil/pkg/provider/wake"
)

// telemetrySampleInterval is how often gauges derived from cumulative
// counters (ring overflows, bus drops) are flushed to metrics.
const telemetrySampleInterval = 10 * time.Second

// App owns all subsystem lifetimes and orchestrates the vigil pipeline.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	bus      *bus.Bus
	source   audio.Source
	detector *detector
	sess     *session.Session
	machine  *session.Machine
	client   session.ChatClient
	renderer render.Renderer
	server   *http.Server

	// captureAlive flips to false when the capture pump exits. Readiness
	// probes report it.
	captureAlive atomic.Bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an audio source instead of opening the capture device.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithChatClient injects a chat client instead of creating one from config.
func WithChatClient(c session.ChatClient) Option {
	return func(a *App) { a.client = c }
}

// WithRenderer injects a renderer instead of building one from config.
func WithRenderer(r render.Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// WithMetrics injects a metrics set instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. The config must
// already be validated; cfg.Backend.SessionID must be resolved (main
// bootstraps it via backend.CreateSession when the file leaves it empty).
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, bus: bus.New()}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.captureAlive.Store(true)

	if err := a.initSource(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	if err := a.initDetector(); err != nil {
		return nil, fmt.Errorf("app: init detectors: %w", err)
	}
	if err := a.initRenderer(); err != nil {
		return nil, fmt.Errorf("app: init renderer: %w", err)
	}
	if err := a.initClient(); err != nil {
		return nil, fmt.Errorf("app: init backend client: %w", err)
	}
	a.initMachine()
	a.initTelemetry()

	return a, nil
}

// initSource opens the capture device unless a source was injected.
func (a *App) initSource() error {
	if a.source != nil {
		return nil
	}
	dev := malgodev.New(malgodev.Config{
		SampleRate: a.cfg.Audio.SampleRateHz,
		Channels:   a.cfg.Audio.Channels,
	})
	a.closers = append(a.closers, dev.Close)
	a.source = audio.NewCaptureSource(dev, audio.CaptureConfig{
		SampleRate: a.cfg.Audio.SampleRateHz,
		Channels:   a.cfg.Audio.Channels,
		FrameSize:  a.cfg.Audio.FrameSize,
		RingFrames: a.cfg.Audio.BufferSize,
	})
	return nil
}

// initDetector builds the wake-word confirmer and the endpointing tracker
// and bundles them into the frame worker.
func (a *App) initDetector() error {
	engine, err := config.CreateWakeEngine(a.cfg.Audio.WakeEngine)
	if err != nil {
		return err
	}
	scorer, err := engine.NewSession(wakeprovider.Config{
		SampleRate: a.cfg.Audio.SampleRateHz,
		FrameSize:  a.cfg.Audio.FrameSize,
	})
	if err != nil {
		return fmt.Errorf("open wake session %q: %w", a.cfg.Audio.WakeEngine, err)
	}
	a.closers = append(a.closers, scorer.Close)

	a.detector = newDetector(detectorConfig{
		wake: wake.Config{
			Threshold: a.cfg.Detection.WakeWordThreshold,
			Window:    a.cfg.Detection.WakeWordTimeout(),
		},
		vad: vad.Config{
			Threshold:    a.cfg.Detection.VADThreshold,
			SilenceAfter: a.cfg.Detection.SilenceTimeout(),
		},
	}, scorer, a.bus, a.metrics)
	return nil
}

// initRenderer assembles the render fan-out: always the log renderer, plus
// MQTT when a broker is configured.
func (a *App) initRenderer() error {
	if a.renderer != nil {
		return nil
	}
	targets := render.Multi{render.LogRenderer{}}
	if mq := a.cfg.Render.MQTT; mq != nil {
		r, err := render.NewMQTTRenderer(render.MQTTConfig{
			Broker:      mq.Broker,
			ClientID:    mq.ClientID,
			Username:    mq.Username,
			Password:    mq.Password,
			DeviceID:    a.cfg.Device.Name,
			TopicPrefix: mq.TopicPrefix,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		targets = append(targets, r)
	}
	a.renderer = targets
	return nil
}

// initClient creates the backend client unless one was injected.
func (a *App) initClient() error {
	if a.client != nil {
		return nil
	}
	client, err := backend.NewClient(backend.Config{
		BaseURL:        a.cfg.Backend.BaseURL,
		Fingerprint:    a.cfg.Backend.Fingerprint,
		Transport:      string(a.cfg.Backend.Transport),
		MaxAttempts:    a.cfg.Backend.MaxAttempts,
		RequestTimeout: a.cfg.Backend.RequestTimeout(),
	}, a.metrics, a.bus.Publish)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

// initMachine builds the session and its state machine.
func (a *App) initMachine() {
	maxCapture := int(a.cfg.Audio.MaxRecordingDuration().Seconds()) *
		a.cfg.Audio.SampleRateHz * 2 * a.cfg.Audio.Channels
	a.sess = session.NewSession(a.cfg.Backend.SessionID, maxCapture)
	a.machine = session.NewMachine(session.Config{
		MaxRecording:   a.cfg.Audio.MaxRecordingDuration(),
		ErrorRecovery:  a.cfg.Session.ErrorRecovery(),
		DisplayTimeout: a.cfg.Session.DisplayTimeout(),
		SampleRate:     a.cfg.Audio.SampleRateHz,
		Channels:       a.cfg.Audio.Channels,
	}, a.sess, a.bus, a.client, a.renderer, a.metrics)
}

// initTelemetry mounts /healthz, /readyz and /metrics on one server.
func (a *App) initTelemetry() {
	checkers := []health.Checker{
		health.CaptureAlive(a.captureAlive.Load),
	}
	if bc, ok := a.client.(*backend.Client); ok {
		checkers = append(checkers, health.BackendReachable(bc.Breaker().State))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	health.RegisterMetrics(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Telemetry.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Session returns the active conversation session.
func (a *App) Session() *session.Session { return a.sess }

// ApplyDetection applies updated wake and endpointing thresholds without a
// restart. Called by the config watcher.
func (a *App) ApplyDetection(d config.DetectionConfig) {
	a.detector.updateConfig(detectorConfig{
		wake: wake.Config{
			Threshold: d.WakeWordThreshold,
			Window:    d.WakeWordTimeout(),
		},
		vad: vad.Config{
			Threshold:    d.VADThreshold,
			SilenceAfter: d.SilenceTimeout(),
		},
	})
}

// Run starts all pipeline goroutines and blocks until ctx is cancelled or a
// subsystem fails. The bus is closed on return, which stops the machine.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.runCapture(ctx) })
	g.Go(func() error { return a.detector.run(ctx, a.source.Frames()) })
	g.Go(func() error { return a.machine.Run(ctx) })
	g.Go(func() error { return a.runTelemetry(ctx) })
	g.Go(func() error { return a.sampleCounters(ctx) })

	slog.Info("app running",
		"device", a.cfg.Device.Name,
		"session_id", a.sess.ID,
		"telemetry_addr", a.cfg.Telemetry.ListenAddr,
	)
	return g.Wait()
}

// runCapture drives the audio source. A fatal microphone failure is
// surfaced as an error screen rather than tearing the app down: the device
// keeps serving telemetry so the failure is observable remotely.
func (a *App) runCapture(ctx context.Context) error {
	err := a.source.Run(ctx)
	a.captureAlive.Store(false)

	var micErr *audio.MicrophoneError
	if errors.As(err, &micErr) {
		slog.Error("app: microphone failed", "err", micErr)
		a.bus.Publish(event.MicFailed{Message: micErr.Error()})
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: capture: %w", err)
	}
	return err
}

// runTelemetry serves health and metrics until ctx is done.
func (a *App) runTelemetry(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("app: telemetry server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.server.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

// sampleCounters periodically flushes cumulative loss counters (capture
// ring overflows, machine bus drops) into metrics as deltas.
func (a *App) sampleCounters(ctx context.Context) error {
	ticker := time.NewTicker(telemetrySampleInterval)
	defer ticker.Stop()

	var lastOverflows, lastDrops uint64
	capture, _ := a.source.(*audio.CaptureSource)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if capture != nil {
				if n := capture.Overflows(); n > lastOverflows {
					a.metrics.RingOverflows.Add(ctx, int64(n-lastOverflows))
					lastOverflows = n
				}
			}
			if n := a.machine.Drops(); n > lastDrops {
				for range n - lastDrops {
					a.metrics.RecordBusDrop(ctx, "session")
				}
				lastDrops = n
			}
		}
	}
}

// Shutdown stops the bus and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		a.client.Cancel()
		a.bus.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}
