// Package session owns the assistant's conversational state: the capture
// buffer an utterance is recorded into, the exchange history, and the state
// machine that decides what the device is doing at any moment.
//
// Exactly one [Machine] exists per device. It is the sole owner and mutator
// of the [ChatState]; every other component observes state only through the
// render commands the machine emits. All input arrives as bus events and is
// handled run-to-completion — the loop never blocks inside a transition, and
// every timer is a scheduled bus event rather than a sleep.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Exchange is one completed request/response round-trip.
type Exchange struct {
	// MessageID is the backend's identifier for the response message.
	MessageID string

	// Text is the assistant's reply.
	Text string

	// At is when the response arrived.
	At time.Time
}

// Session is the device's conversation with the backend. The ID survives
// idle periods; the capture buffer is cleared on every return to idle.
type Session struct {
	// ID identifies the conversation to the backend. Either issued by the
	// server's session bootstrap or generated locally.
	ID string

	// History holds completed exchanges, oldest first.
	History []Exchange

	capture *CaptureBuffer
}

// NewSession creates a session recording into a capture buffer bounded at
// maxCapture bytes. An empty id gets a locally generated UUID.
func NewSession(id string, maxCapture int) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:      id,
		capture: NewCaptureBuffer(maxCapture),
	}
}

// Capture returns the session's capture buffer.
func (s *Session) Capture() *CaptureBuffer { return s.capture }

// Record appends one completed exchange to the history.
func (s *Session) Record(ex Exchange) {
	s.History = append(s.History, ex)
}
