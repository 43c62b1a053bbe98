// Package energy provides a pure-Go reference wake-scoring engine based on
// short-term RMS energy peaks.
//
// It is not a real keyword detector — any sufficiently loud utterance scores
// high — but it exercises the full confirmation pipeline on hardware that has
// no DSP model available, and it is deterministic enough for development and
// soak testing. Production builds plug in a model-backed Engine instead.
package energy

import (
	"fmt"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/wake"
)

// smoothingFrames is the window of the trailing-average noise floor.
const smoothingFrames = 32

// Compile-time checks against the wake provider interfaces.
var (
	_ wake.Engine        = (*Engine)(nil)
	_ wake.SessionHandle = (*session)(nil)
)

// Engine implements wake.Engine with an energy-peak heuristic.
type Engine struct{}

// New creates the reference energy engine.
func New() *Engine { return &Engine{} }

// NewSession creates a scoring session. FrameSize must be positive.
func (e *Engine) NewSession(cfg wake.Config) (wake.SessionHandle, error) {
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d", cfg.FrameSize)
	}
	return &session{cfg: cfg}, nil
}

// session scores frames by how far the current frame's energy rises above
// the trailing noise floor.
type session struct {
	cfg    wake.Config
	floor  float64
	frames int
	closed bool
	seq    uint64
}

func (s *session) ProcessFrame(frame []int16) (wake.Score, error) {
	if s.closed {
		return wake.Score{}, fmt.Errorf("energy: session is closed")
	}
	if len(frame) != s.cfg.FrameSize {
		return wake.Score{}, fmt.Errorf("energy: frame size mismatch: want %d samples, got %d", s.cfg.FrameSize, len(frame))
	}

	e := audio.EnergyRMS(frame)
	seq := s.seq
	s.seq++

	// Update the trailing noise floor before scoring so a long quiet lead-in
	// settles near zero.
	if s.frames < smoothingFrames {
		s.frames++
	}
	n := float64(s.frames)
	s.floor = s.floor*(n-1)/n + e/n

	// Score: how far the frame rises above the floor, scaled into [0,1].
	rise := e - s.floor
	if rise <= 0 {
		return wake.Score{Value: 0, Seq: seq}, nil
	}
	score := rise * 4
	if score > 1 {
		score = 1
	}
	return wake.Score{Value: score, Seq: seq}, nil
}

func (s *session) Reset() {
	s.floor = 0
	s.frames = 0
}

func (s *session) Close() error {
	s.closed = true
	return nil
}
