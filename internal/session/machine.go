package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/vigil/internal/backend"
	"github.com/MrWong99/vigil/internal/bus"
	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/render"
	"github.com/MrWong99/vigil/pkg/audio"
)

// ChatClient is the slice of the backend client the machine drives.
type ChatClient interface {
	// Send dispatches an utterance in the background; outcomes come back
	// as bus events.
	Send(ctx context.Context, req backend.Request)

	// Cancel aborts the in-flight call. The aborted call publishes no
	// further events.
	Cancel()
}

// Config holds the machine's timing and audio parameters.
type Config struct {
	// MaxRecording forces a recording into processing when reached, even
	// without a silence decision. Default: 30s.
	MaxRecording time.Duration

	// ErrorRecovery is how long an error screen shows before the machine
	// returns to idle. Default: 10s.
	ErrorRecovery time.Duration

	// DisplayTimeout is how long a response shows before the machine
	// returns to idle. Default: 20s.
	DisplayTimeout time.Duration

	// SampleRate and Channels describe the capture format forwarded to
	// the backend.
	SampleRate int
	Channels   int
}

func (c *Config) applyDefaults() {
	if c.MaxRecording <= 0 {
		c.MaxRecording = 30 * time.Second
	}
	if c.ErrorRecovery <= 0 {
		c.ErrorRecovery = 10 * time.Second
	}
	if c.DisplayTimeout <= 0 {
		c.DisplayTimeout = 20 * time.Second
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
}

// Machine is the session state machine. It consumes bus events
// run-to-completion and is the only mutator of the [ChatState].
//
// Wake confirmations have absolute interruption priority: the machine holds
// a dedicated subscription filtered to [event.WakeConfirmed] and drains it
// before the general subscription on every scheduling step, so a pending
// wake-up always preempts whatever else is queued.
type Machine struct {
	cfg      Config
	sess     *Session
	client   ChatClient
	renderer render.Renderer
	metrics  *observe.Metrics
	publish  func(event.Event)

	wake   *bus.Subscription
	events *bus.Subscription
	sched  *scheduler

	state ChatState
}

// NewMachine creates a Machine subscribed to b. The zero fields of cfg get
// defaults.
func NewMachine(cfg Config, sess *Session, b *bus.Bus, client ChatClient, r render.Renderer, m *observe.Metrics) *Machine {
	cfg.applyDefaults()
	if m == nil {
		m = observe.DefaultMetrics()
	}
	mach := &Machine{
		cfg:      cfg,
		sess:     sess,
		client:   client,
		renderer: r,
		metrics:  m,
		publish:  b.Publish,
		state:    Idle{},
	}
	mach.wake = b.Subscribe("session-wake", 8, func(ev event.Event) bool {
		_, ok := ev.(event.WakeConfirmed)
		return ok
	})
	mach.events = b.Subscribe("session", 256, func(ev event.Event) bool {
		_, ok := ev.(event.WakeConfirmed)
		return !ok
	})
	mach.sched = newScheduler(b.Publish)
	return mach
}

// State returns the current state. Only meaningful from the loop goroutine
// or while the loop is not running.
func (m *Machine) State() ChatState { return m.state }

// Drops reports the cumulative number of events shed from the machine's bus
// subscriptions. Sampled by the telemetry loop.
func (m *Machine) Drops() uint64 { return m.wake.Drops() + m.events.Drops() }

// Run drives the event loop until ctx is cancelled, the bus closes, or a
// Shutdown event arrives.
func (m *Machine) Run(ctx context.Context) error {
	m.renderer.ShowIdle()
	slog.Info("session: machine started", "session_id", m.sess.ID)
	defer m.sched.cancelAll()

	for {
		processed, stop := m.step(ctx)
		if stop {
			slog.Info("session: machine stopped")
			return nil
		}
		if processed {
			continue
		}
		if m.events.Closed() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake.Wait():
		case <-m.events.Wait():
		}
	}
}

// step processes at most one pending event, wake subscription first.
func (m *Machine) step(ctx context.Context) (processed, stop bool) {
	if ev, ok := m.wake.TryNext(); ok {
		return true, m.handle(ctx, ev)
	}
	if ev, ok := m.events.TryNext(); ok {
		return true, m.handle(ctx, ev)
	}
	return false, false
}

// handle applies one event to the current state. Returns true to stop the
// loop.
func (m *Machine) handle(ctx context.Context, ev event.Event) bool {
	switch ev := ev.(type) {
	case event.WakeConfirmed:
		m.onWake(ctx)

	case event.AudioChunk:
		m.onAudio(ev)

	case event.SilenceDetected:
		if _, ok := m.state.(Recording); ok {
			m.finishRecording(ctx)
		}

	case event.UserCancelled:
		switch m.state.(type) {
		case Recording:
			// Manual stop ends the utterance like silence does.
			m.finishRecording(ctx)
		case Speaking:
			m.toIdle(ctx)
		default:
			// No-op everywhere else, including Idle.
		}

	case event.TimerFired:
		m.onTimer(ctx, ev)

	case event.APIResponseReceived:
		if _, ok := m.state.(Processing); ok {
			now := time.Now()
			m.sess.Record(Exchange{MessageID: ev.MessageID, Text: ev.Text, At: now})
			m.setState(ctx, Speaking{Text: ev.Text, StartedAt: now})
			m.sched.schedule(event.TimerDisplay, m.cfg.DisplayTimeout)
		}

	case event.APIRequestFailed:
		if _, ok := m.state.(Processing); ok {
			m.toError(ctx, ev.Message)
		}

	case event.MicFailed:
		m.toError(ctx, ev.Message)

	case event.Shutdown:
		return true
	}
	return false
}

// onWake implements the absolute-priority row of the transition table:
// whatever is happening stops, and a fresh recording begins.
func (m *Machine) onWake(ctx context.Context) {
	m.client.Cancel()
	m.sched.cancelAll()
	m.sess.Capture().Clear()

	m.setState(ctx, WakeAck{})
	m.publish(event.RecordingStarted{})
	m.setState(ctx, Recording{StartedAt: time.Now()})
	m.sched.schedule(event.TimerMaxRecording, m.cfg.MaxRecording)
}

// onAudio appends captured audio while recording and refreshes the meter.
func (m *Machine) onAudio(ev event.AudioChunk) {
	if _, ok := m.state.(Recording); !ok {
		return
	}
	m.sess.Capture().Append(ev.PCM)
	elapsed := m.sess.Capture().Duration(m.cfg.SampleRate, m.cfg.Channels)
	level := audio.EnergyRMS(audio.SamplesFromBytes(ev.PCM))
	m.renderer.ShowRecording(elapsed, level)
}

// finishRecording closes the capture and dispatches it to the backend.
func (m *Machine) finishRecording(ctx context.Context) {
	m.sched.cancel(event.TimerMaxRecording)

	payload := m.sess.Capture().Bytes()
	dur := m.sess.Capture().Duration(m.cfg.SampleRate, m.cfg.Channels)
	m.metrics.RecordingDuration.Record(ctx, dur.Seconds())
	if m.sess.Capture().Truncated() {
		slog.Warn("session: capture buffer truncated", "duration", dur)
	}

	m.publish(event.RecordingFinished{PCM: payload})
	m.setState(ctx, Processing{Payload: payload})
	m.client.Send(ctx, backend.Request{
		SessionID:  m.sess.ID,
		PCM:        payload,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	})
}

// onTimer applies a scheduled firing, discarding stale generations.
func (m *Machine) onTimer(ctx context.Context, ev event.TimerFired) {
	if !m.sched.valid(ev.Timer, ev.Generation) {
		slog.Debug("session: stale timer discarded", "timer", ev.Timer)
		return
	}
	switch ev.Timer {
	case event.TimerMaxRecording:
		if _, ok := m.state.(Recording); ok {
			slog.Info("session: max recording duration reached")
			m.finishRecording(ctx)
		}
	case event.TimerDisplay:
		if _, ok := m.state.(Speaking); ok {
			m.toIdle(ctx)
		}
	case event.TimerErrorRecovery:
		if _, ok := m.state.(Error); ok {
			m.toIdle(ctx)
		}
	}
}

func (m *Machine) toIdle(ctx context.Context) {
	m.sched.cancelAll()
	m.sess.Capture().Clear()
	m.setState(ctx, Idle{})
}

func (m *Machine) toError(ctx context.Context, message string) {
	m.setState(ctx, Error{
		Message:       message,
		AutoRecoverAt: time.Now().Add(m.cfg.ErrorRecovery),
	})
	m.sched.schedule(event.TimerErrorRecovery, m.cfg.ErrorRecovery)
}

// setState performs the transition bookkeeping: metric, log, gauge, and
// exactly one render command per transition.
func (m *Machine) setState(ctx context.Context, next ChatState) {
	prev := m.state
	m.state = next

	m.metrics.RecordStateTransition(ctx, prev.Name(), next.Name())
	slog.Info("session: state changed", "from", prev.Name(), "to", next.Name())

	_, wasRecording := prev.(Recording)
	_, isRecording := next.(Recording)
	if isRecording && !wasRecording {
		m.metrics.RecordingActive.Add(ctx, 1)
	}
	if wasRecording && !isRecording {
		m.metrics.RecordingActive.Add(ctx, -1)
	}

	switch s := next.(type) {
	case Idle:
		m.renderer.ShowIdle()
	case WakeAck:
		m.renderer.ShowListening()
	case Recording:
		m.renderer.ShowRecording(0, 0)
	case Processing:
		m.renderer.ShowThinking()
	case Speaking:
		m.renderer.ShowResponse(s.Text)
	case Error:
		m.renderer.ShowError(s.Message)
	}
}
