// Package event defines the message types flowing over the vigil event bus.
//
// Every cross-component signal — detector output, backend lifecycle, user
// input, scheduled timers — is one of the Event implementations below.
// Events are immutable values: publish-and-forget, never mutated after
// construction. The set is sealed (unexported marker method) so the state
// machine's switch over event types is exhaustive by construction.
package event

import "time"

// Event is the sealed bus message interface.
type Event interface {
	// Kind returns the stable machine-readable event name, used in logs
	// and metric attributes.
	Kind() string

	isEvent()
}

// TimerKind identifies which scheduled timer fired.
type TimerKind string

const (
	// TimerMaxRecording fires when a recording reaches the configured
	// maximum duration.
	TimerMaxRecording TimerKind = "max_recording"

	// TimerErrorRecovery fires when an error state should auto-clear.
	TimerErrorRecovery TimerKind = "error_recovery"

	// TimerDisplay fires when a displayed response should be dismissed.
	TimerDisplay TimerKind = "display"
)

// WakeConfirmed is published by the wake-word confirmer after the
// two-utterance protocol completes. It has absolute interruption priority:
// the state machine processes it before any other pending event.
type WakeConfirmed struct {
	// At is the capture timestamp of the confirming frame.
	At time.Time
}

// RecordingStarted is published by the state machine when capture begins.
type RecordingStarted struct{}

// AudioChunk carries captured PCM bytes into the session capture buffer
// while recording.
type AudioChunk struct {
	// PCM is little-endian int16 audio, read-only.
	PCM []byte
}

// RecordingFinished carries the finalised capture payload.
type RecordingFinished struct {
	// PCM is the complete recorded audio, read-only.
	PCM []byte
}

// VoiceActivity is published on the silent→speaking edge.
type VoiceActivity struct{}

// SilenceDetected is published once per qualifying silence run, after the
// configured timeout of continuous sub-threshold energy.
type SilenceDetected struct {
	// RunLength is the length of the silence run that triggered the event.
	RunLength time.Duration
}

// APIRequestStarted is published by the backend client when a chat request
// is dispatched.
type APIRequestStarted struct{}

// APIResponseReceived carries the assembled response text of a completed
// chat request.
type APIResponseReceived struct {
	// Text is the full response, concatenated from stream chunks.
	Text string

	// MessageID is the backend's identifier for the completed message.
	MessageID string
}

// APIRequestFailed reports a chat request that failed after local
// remediation (retries, breaker) was exhausted.
type APIRequestFailed struct {
	// Message is a human-readable failure description for the error screen.
	Message string
}

// UserCancelled is an explicit user abort: a button press, a motion
// gesture, or any out-of-band stop signal. A no-op when idle.
type UserCancelled struct{}

// TimerFired is a scheduled timer re-entering the bus. Timers are bus
// events, never blocking sleeps inside the state machine loop.
type TimerFired struct {
	Timer TimerKind

	// Generation guards against stale timers: the machine ignores firings
	// scheduled for an earlier state generation.
	Generation uint64
}

// MicFailed reports a fatal microphone failure after re-initialisation
// attempts were exhausted.
type MicFailed struct {
	// Message describes the failure for the error screen.
	Message string
}

// Shutdown requests an orderly stop of the state machine loop.
type Shutdown struct{}

func (WakeConfirmed) Kind() string       { return "wake_confirmed" }
func (RecordingStarted) Kind() string    { return "recording_started" }
func (AudioChunk) Kind() string          { return "audio_chunk" }
func (RecordingFinished) Kind() string   { return "recording_finished" }
func (VoiceActivity) Kind() string       { return "voice_activity" }
func (SilenceDetected) Kind() string     { return "silence_detected" }
func (APIRequestStarted) Kind() string   { return "api_request_started" }
func (APIResponseReceived) Kind() string { return "api_response_received" }
func (APIRequestFailed) Kind() string    { return "api_request_failed" }
func (UserCancelled) Kind() string       { return "user_cancelled" }
func (TimerFired) Kind() string          { return "timer_fired" }
func (MicFailed) Kind() string           { return "mic_failed" }
func (Shutdown) Kind() string            { return "shutdown" }

func (WakeConfirmed) isEvent()       {}
func (RecordingStarted) isEvent()    {}
func (AudioChunk) isEvent()          {}
func (RecordingFinished) isEvent()   {}
func (VoiceActivity) isEvent()       {}
func (SilenceDetected) isEvent()     {}
func (APIRequestStarted) isEvent()   {}
func (APIResponseReceived) isEvent() {}
func (APIRequestFailed) isEvent()    {}
func (UserCancelled) isEvent()       {}
func (TimerFired) isEvent()          {}
func (MicFailed) isEvent()           {}
func (Shutdown) isEvent()            {}
