package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vigil/internal/app"
	"github.com/MrWong99/vigil/internal/backend"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/pkg/audio"
	audiomock "github.com/MrWong99/vigil/pkg/audio/mock"
	wakeprovider "github.com/MrWong99/vigil/pkg/provider/wake"
	wakemock "github.com/MrWong99/vigil/pkg/provider/wake/mock"
)

// testConfig returns a validated config pointing at a scripted wake engine.
// Each test registers its engine under a unique name so the global registry
// never collides across tests.
func testConfig(t *testing.T, scores []float64) *config.Config {
	t.Helper()

	engineName := "scripted-" + t.Name()
	config.RegisterWakeEngine(engineName, func() (wakeprovider.Engine, error) {
		return &wakemock.Engine{SessionResult: &wakemock.Session{Scores: scores}}, nil
	})

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Device.Name = "test-device"
	cfg.Audio.WakeEngine = engineName
	cfg.Detection.SilenceTimeoutMs = 64 // two 32ms frames
	cfg.Backend.BaseURL = "http://127.0.0.1:1" // never dialled; client is injected
	cfg.Backend.Fingerprint = "test-fp"
	cfg.Backend.SessionID = "sess-fixed"
	cfg.Telemetry.ListenAddr = "127.0.0.1:0"
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

// frame builds a constant-amplitude mono frame. CapturedAt advances 32ms
// per sequence number.
func frame(seq uint64, amplitude int16) audio.AudioFrame {
	pcm := make([]int16, 512)
	for i := range pcm {
		pcm[i] = amplitude
	}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return audio.AudioFrame{
		PCM:        pcm,
		Seq:        seq,
		SampleRate: 16000,
		Channels:   1,
		CapturedAt: base.Add(time.Duration(seq) * 32 * time.Millisecond),
	}
}

// fakeClient records Send calls and signals each on a channel.
type fakeClient struct {
	mu    sync.Mutex
	sends []backend.Request
	sent  chan backend.Request
}

func newFakeClient() *fakeClient {
	return &fakeClient{sent: make(chan backend.Request, 4)}
}

func (f *fakeClient) Send(_ context.Context, req backend.Request) {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	f.mu.Unlock()
	f.sent <- req
}

func (f *fakeClient) Cancel() {}

// fakeRenderer records state names in order.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRenderer) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeRenderer) has(s string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == s {
			return true
		}
	}
	return false
}

func (f *fakeRenderer) ShowIdle()      { f.record("idle") }
func (f *fakeRenderer) ShowListening() { f.record("listening") }
func (f *fakeRenderer) ShowRecording(time.Duration, float64) {
	f.record("recording")
}
func (f *fakeRenderer) ShowThinking()       { f.record("thinking") }
func (f *fakeRenderer) ShowResponse(string) { f.record("response") }
func (f *fakeRenderer) ShowError(string)    { f.record("error") }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	a, err := app.New(cfg,
		app.WithSource(&audiomock.Source{}),
		app.WithChatClient(newFakeClient()),
		app.WithRenderer(&fakeRenderer{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := a.Session().ID; got != "sess-fixed" {
		t.Errorf("Session().ID = %q, want %q", got, "sess-fixed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

func TestNew_UnknownWakeEngine(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, nil)
	cfg.Audio.WakeEngine = "no-such-engine"
	_, err := app.New(cfg,
		app.WithSource(&audiomock.Source{}),
		app.WithChatClient(newFakeClient()),
		app.WithRenderer(&fakeRenderer{}),
	)
	if !errors.Is(err, config.ErrEngineNotRegistered) {
		t.Fatalf("New() error = %v, want ErrEngineNotRegistered", err)
	}
}

// TestRun_WakeToDispatch drives the whole pipeline from scripted frames:
// wake confirmation, recording, endpointing, and the backend dispatch.
func TestRun_WakeToDispatch(t *testing.T) {
	t.Parallel()

	const loud, quiet = 16384, 100

	// Frames 0-2 complete the confirmation (utterance, gap, utterance).
	// Frames 3-5 are recorded speech; 6-8 are the silence run that ends it.
	script := []audio.AudioFrame{
		frame(0, loud), frame(1, quiet), frame(2, loud),
		frame(3, loud), frame(4, loud), frame(5, loud),
		frame(6, quiet), frame(7, quiet), frame(8, quiet),
	}
	// Wake scores align with the first three frames, then go quiet.
	scores := []float64{0.9, 0.0, 0.9}

	cfg := testConfig(t, scores)
	client := newFakeClient()
	renderer := &fakeRenderer{}
	a, err := app.New(cfg,
		app.WithSource(&audiomock.Source{Script: script}),
		app.WithChatClient(client),
		app.WithRenderer(renderer),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var req backend.Request
	select {
	case req = <-client.sent:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for backend dispatch")
	}

	if req.SessionID != "sess-fixed" {
		t.Errorf("dispatched SessionID = %q, want %q", req.SessionID, "sess-fixed")
	}
	if req.SampleRate != 16000 || req.Channels != 1 {
		t.Errorf("dispatched format = %dHz/%dch, want 16000Hz/1ch", req.SampleRate, req.Channels)
	}
	if len(req.PCM) == 0 {
		t.Error("dispatched PCM is empty")
	}

	waitFor(t, "render sequence", func() bool {
		return renderer.has("listening") && renderer.has("recording") && renderer.has("thinking")
	})

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error: %v", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}

// TestRun_SilentWakeEndpoints covers the user who wakes the device and then
// says nothing: the recording must end at the silence timeout and dispatch,
// not run to the max-duration cap. The scripted scores confirm the wake word
// while every frame stays below the VAD threshold, so the recording contains
// no speech at all.
func TestRun_SilentWakeEndpoints(t *testing.T) {
	t.Parallel()

	const quiet = 100
	script := []audio.AudioFrame{
		frame(0, quiet), frame(1, quiet), frame(2, quiet),
		frame(3, quiet), frame(4, quiet), frame(5, quiet),
	}
	scores := []float64{0.9, 0.0, 0.9}

	cfg := testConfig(t, scores)
	client := newFakeClient()
	a, err := app.New(cfg,
		app.WithSource(&audiomock.Source{Script: script}),
		app.WithChatClient(client),
		app.WithRenderer(&fakeRenderer{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case req := <-client.sent:
		if req.SessionID != "sess-fixed" {
			t.Errorf("dispatched SessionID = %q, want %q", req.SessionID, "sess-fixed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("silent recording never endpointed")
	}

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error: %v", err)
	}
}

// TestRun_MicFailureShowsError verifies a dead microphone surfaces as an
// error screen instead of tearing the whole app down.
func TestRun_MicFailureShowsError(t *testing.T) {
	t.Parallel()

	startErr := fmt.Errorf("alsa: no such device")
	dev := &audiomock.Device{StartErrs: []error{startErr, startErr, startErr}}
	source := audio.NewCaptureSource(dev, audio.CaptureConfig{
		SampleRate:   16000,
		FrameSize:    512,
		InitAttempts: 3,
		InitBackoff:  time.Millisecond,
	})

	cfg := testConfig(t, nil)
	renderer := &fakeRenderer{}
	a, err := app.New(cfg,
		app.WithSource(source),
		app.WithChatClient(newFakeClient()),
		app.WithRenderer(renderer),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "error screen", func() bool { return renderer.has("error") })

	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error: %v", err)
	}
}
