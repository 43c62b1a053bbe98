package session

import "time"

// ChatState is the machine's current activity, a sealed tagged union. One
// value is active at a time, owned and mutated only by the machine
// goroutine.
type ChatState interface {
	// Name returns the stable state name used in logs and metric
	// attributes.
	Name() string

	isState()
}

// Idle is the default state: listening for the wake word only.
type Idle struct{}

// WakeAck is the transient acknowledgment entered on wake confirmation; the
// machine leaves it for Recording within the same scheduling step.
type WakeAck struct{}

// Recording accumulates the utterance into the session capture buffer.
type Recording struct {
	// StartedAt is when this recording began. Re-entering Recording
	// always restarts it.
	StartedAt time.Time
}

// Processing means the utterance was dispatched and the reply is pending.
type Processing struct {
	// Payload is the PCM that was sent, kept for diagnostics.
	Payload []byte
}

// Speaking displays the assistant's reply until dismissed.
type Speaking struct {
	Text      string
	StartedAt time.Time
}

// Error shows a failure message until the auto-recovery deadline.
type Error struct {
	Message       string
	AutoRecoverAt time.Time
}

func (Idle) Name() string       { return "idle" }
func (WakeAck) Name() string    { return "wake_ack" }
func (Recording) Name() string  { return "recording" }
func (Processing) Name() string { return "processing" }
func (Speaking) Name() string   { return "speaking" }
func (Error) Name() string      { return "error" }

func (Idle) isState()       {}
func (WakeAck) isState()    {}
func (Recording) isState()  {}
func (Processing) isState() {}
func (Speaking) isState()   {}
func (Error) isState()      {}
