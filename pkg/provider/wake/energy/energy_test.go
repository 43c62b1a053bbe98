package energy_test

import (
	"testing"

	"github.com/MrWong99/vigil/pkg/provider/wake"
	"github.com/MrWong99/vigil/pkg/provider/wake/energy"
)

const frameSize = 512

func newSession(t *testing.T) wake.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(wake.Config{SampleRate: 16000, FrameSize: frameSize})
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	return s
}

func frame(amplitude int16) []int16 {
	pcm := make([]int16, frameSize)
	for i := range pcm {
		pcm[i] = amplitude
	}
	return pcm
}

func TestSession_ScoresBurstAboveFloor(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	// A quiet lead-in settles the noise floor near zero.
	for range 10 {
		score, err := s.ProcessFrame(frame(100))
		if err != nil {
			t.Fatalf("ProcessFrame(quiet) error: %v", err)
		}
		if score.Value > 0.1 {
			t.Fatalf("quiet frame scored %v, want near zero", score.Value)
		}
	}

	score, err := s.ProcessFrame(frame(16384))
	if err != nil {
		t.Fatalf("ProcessFrame(loud) error: %v", err)
	}
	if score.Value < 0.5 {
		t.Errorf("loud burst scored %v, want >= 0.5", score.Value)
	}
	if score.Value > 1 {
		t.Errorf("score %v exceeds cap of 1", score.Value)
	}
}

func TestSession_FirstFrameNeverScores(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	// The floor is seeded from the first frame, so even a loud start
	// cannot rise above it.
	score, err := s.ProcessFrame(frame(16384))
	if err != nil {
		t.Fatalf("ProcessFrame() error: %v", err)
	}
	if score.Value != 0 {
		t.Errorf("first frame scored %v, want 0", score.Value)
	}
}

func TestSession_FrameSizeMismatch(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	if _, err := s.ProcessFrame(make([]int16, frameSize/2)); err == nil {
		t.Fatal("ProcessFrame() with short frame = nil error, want mismatch error")
	}
}

func TestSession_ResetClearsFloor(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	// Build up a high floor with loud frames.
	for range 10 {
		if _, err := s.ProcessFrame(frame(16384)); err != nil {
			t.Fatalf("ProcessFrame() error: %v", err)
		}
	}
	s.Reset()

	// After reset the same loud level seeds a fresh floor and scores zero
	// again, exactly like a first frame.
	score, err := s.ProcessFrame(frame(16384))
	if err != nil {
		t.Fatalf("ProcessFrame() after Reset error: %v", err)
	}
	if score.Value != 0 {
		t.Errorf("post-reset frame scored %v, want 0", score.Value)
	}
}

func TestSession_ClosedRejectsFrames(t *testing.T) {
	t.Parallel()
	s := newSession(t)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := s.ProcessFrame(frame(0)); err == nil {
		t.Fatal("ProcessFrame() on closed session = nil error, want error")
	}
}

func TestNewSession_RequiresFrameSize(t *testing.T) {
	t.Parallel()
	if _, err := energy.New().NewSession(wake.Config{SampleRate: 16000}); err == nil {
		t.Fatal("NewSession() without frame size = nil error, want error")
	}
}
