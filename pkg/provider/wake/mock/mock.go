// Package mock provides a scripted wake.Engine for tests.
package mock

import (
	"fmt"
	"sync"

	"github.com/MrWong99/vigil/pkg/provider/wake"
)

// Compile-time checks against the wake provider interfaces.
var (
	_ wake.Engine        = (*Engine)(nil)
	_ wake.SessionHandle = (*Session)(nil)
)

// Engine hands out its pre-built Session (or an error) on NewSession.
type Engine struct {
	// SessionResult is returned by NewSession when Err is nil.
	SessionResult *Session

	// Err, when non-nil, is returned by NewSession.
	Err error
}

// NewSession returns the scripted session or error.
func (e *Engine) NewSession(_ wake.Config) (wake.SessionHandle, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	if e.SessionResult == nil {
		e.SessionResult = &Session{}
	}
	return e.SessionResult, nil
}

// Session returns scripted scores in order; once the script is exhausted it
// returns zero scores. All methods are safe for concurrent use.
type Session struct {
	// Scores is the scripted score sequence, consumed one per ProcessFrame.
	Scores []float64

	mu         sync.Mutex
	processed  int
	resetCalls int
	closed     bool
}

// ProcessFrame pops the next scripted score.
func (s *Session) ProcessFrame(_ []int16) (wake.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wake.Score{}, fmt.Errorf("mock: session is closed")
	}
	seq := uint64(s.processed)
	var v float64
	if s.processed < len(s.Scores) {
		v = s.Scores[s.processed]
	}
	s.processed++
	return wake.Score{Value: v, Seq: seq}, nil
}

// Reset records the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Processed reports how many frames were scored.
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}

// ResetCalls reports how many times Reset was called.
func (s *Session) ResetCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetCalls
}
