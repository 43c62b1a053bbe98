// Package render drives the user-facing status surface of the device. The
// session machine calls a [Renderer] on every state change; implementations
// turn those calls into log lines, MQTT messages for an external display, or
// both via [Multi].
package render

import (
	"log/slog"
	"strings"
	"time"
)

// Renderer receives the assistant's user-visible state. Implementations must
// tolerate being called from the session machine's loop goroutine and return
// quickly; slow sinks should buffer internally.
type Renderer interface {
	// ShowIdle indicates the device is waiting for the wake word.
	ShowIdle()

	// ShowListening indicates the wake word was confirmed and recording is
	// about to begin.
	ShowListening()

	// ShowRecording reports recording progress. Level is the current input
	// energy normalized to 0..1, for a volume meter.
	ShowRecording(elapsed time.Duration, level float64)

	// ShowThinking indicates the utterance was sent and a reply is pending.
	ShowThinking()

	// ShowResponse displays the assistant's reply text.
	ShowResponse(text string)

	// ShowError displays a failure message until recovery.
	ShowError(message string)
}

// LogRenderer writes state changes to the structured log. It is the default
// renderer and always active, even when an external display is configured.
type LogRenderer struct{}

var _ Renderer = LogRenderer{}

func (LogRenderer) ShowIdle() {
	slog.Info("render: idle")
}

func (LogRenderer) ShowListening() {
	slog.Info("render: listening")
}

func (LogRenderer) ShowRecording(elapsed time.Duration, level float64) {
	slog.Debug("render: recording",
		"elapsed", elapsed.Round(100*time.Millisecond),
		"meter", Meter(level, 10),
	)
}

func (LogRenderer) ShowThinking() {
	slog.Info("render: thinking")
}

func (LogRenderer) ShowResponse(text string) {
	slog.Info("render: response", "text", text)
}

func (LogRenderer) ShowError(message string) {
	slog.Warn("render: error", "message", message)
}

// Meter renders level (0..1) as a fixed-width bar, e.g. "#####-----".
func Meter(level float64, width int) string {
	if width <= 0 {
		return ""
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	filled := int(level*float64(width) + 0.5)
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

// Multi fans every call out to all renderers in order.
type Multi []Renderer

var _ Renderer = Multi{}

func (m Multi) ShowIdle() {
	for _, r := range m {
		r.ShowIdle()
	}
}

func (m Multi) ShowListening() {
	for _, r := range m {
		r.ShowListening()
	}
}

func (m Multi) ShowRecording(elapsed time.Duration, level float64) {
	for _, r := range m {
		r.ShowRecording(elapsed, level)
	}
}

func (m Multi) ShowThinking() {
	for _, r := range m {
		r.ShowThinking()
	}
}

func (m Multi) ShowResponse(text string) {
	for _, r := range m {
		r.ShowResponse(text)
	}
}

func (m Multi) ShowError(message string) {
	for _, r := range m {
		r.ShowError(message)
	}
}

// truncate shortens s to max runes for payloads with hard display limits.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
