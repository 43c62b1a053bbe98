package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// chatRequest is the JSON body of a chat stream request. Audio is the full
// recorded utterance as base64-encoded little-endian signed 16-bit PCM.
type chatRequest struct {
	SessionID  string `json:"session_id"`
	AudioData  string `json:"audio_data"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Format     string `json:"format"`
}

// pcmFormat is the only audio encoding the chat endpoint accepts.
const pcmFormat = "pcm_s16le"

// envelope is the server's uniform response wrapper. Data holds the
// endpoint-specific payload; Message carries human-readable detail on
// non-success statuses.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// sessionData is the payload of a session create response.
type sessionData struct {
	SessionID string `json:"session_id"`
}

// streamChunk is one streamed message on a chat response. Type "message"
// carries incremental reply text in Content; type "complete" terminates the
// stream and carries the server-side message identifier.
type streamChunk struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}

const (
	chunkTypeMessage  = "message"
	chunkTypeComplete = "complete"
)

// Reply is an assembled chat response.
type Reply struct {
	// Text is the full reply, concatenated from all message chunks.
	Text string

	// MessageID is the server-side identifier from the completion chunk.
	MessageID string
}

// StatusError reports a non-success HTTP response from the backend.
type StatusError struct {
	// Code is the HTTP status code.
	Code int

	// Message is the detail from the response envelope, if any.
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("backend: server returned %d", e.Code)
}

// retryable reports whether err is worth another attempt. Client errors that
// will repeat identically (bad request, auth, missing route) fail fast;
// everything else — network faults, timeouts, rate limits, server errors —
// may be transient.
func retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	switch se.Code {
	case 400, 401, 403, 404:
		return false
	}
	return true
}
