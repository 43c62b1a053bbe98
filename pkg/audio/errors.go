package audio

import "fmt"

// MicrophoneError wraps a hardware capture failure. Capture sources retry
// device initialisation a bounded number of times; a MicrophoneError escaping
// [Source.Run] means remediation is exhausted and the failure is fatal.
type MicrophoneError struct {
	// Op names the failed operation ("init", "start", "read").
	Op string

	// Attempts is the number of initialisation attempts made before giving up.
	Attempts int

	// Err is the underlying driver error.
	Err error
}

func (e *MicrophoneError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("microphone %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("microphone %s failed: %v", e.Op, e.Err)
}

func (e *MicrophoneError) Unwrap() error { return e.Err }
