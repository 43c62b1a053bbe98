// Package config provides the configuration schema, loader, file watcher,
// and wake-engine registry for the vigil voice assistant.
package config

import (
	"fmt"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects the backend streaming mechanism.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebsocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportSSE || t == TransportWebsocket
}

// Config is the root configuration structure for vigil, typically loaded
// from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Audio     AudioConfig     `yaml:"audio"`
	Detection DetectionConfig `yaml:"detection"`
	Backend   BackendConfig   `yaml:"backend"`
	Session   SessionConfig   `yaml:"session"`
	Render    RenderConfig    `yaml:"render"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DeviceConfig identifies the device and sets logging.
type DeviceConfig struct {
	// Name labels this device in logs, telemetry, and render topics.
	Name string `yaml:"name"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the capture format and buffering.
type AudioConfig struct {
	// SampleRateHz is the capture sample rate. Default: 16000.
	SampleRateHz int `yaml:"sample_rate_hz"`

	// Channels is the capture channel count. Default: 1.
	Channels int `yaml:"channels"`

	// BitDepth is the sample width in bits. Only 16 is supported.
	BitDepth int `yaml:"bit_depth"`

	// BufferSize is the number of frames retained in the capture ring.
	// Default: 1024.
	BufferSize int `yaml:"buffer_size"`

	// FrameSize is the number of samples per analysis frame. Default: 512
	// (32ms at 16kHz).
	FrameSize int `yaml:"frame_size"`

	// MaxRecordingDurationS caps one utterance. Default: 30.
	MaxRecordingDurationS int `yaml:"max_recording_duration_s"`

	// WakeEngine selects the registered wake-word scoring engine.
	// Default: "energy".
	WakeEngine string `yaml:"wake_engine"`
}

// MaxRecordingDuration returns the utterance cap as a duration.
func (a AudioConfig) MaxRecordingDuration() time.Duration {
	return time.Duration(a.MaxRecordingDurationS) * time.Second
}

// DetectionConfig holds the wake-word and endpointing thresholds.
type DetectionConfig struct {
	// WakeWordThreshold is the minimum detection score counting as an
	// utterance. Default: 0.5.
	WakeWordThreshold float64 `yaml:"wake_word_threshold"`

	// VADThreshold is the normalized RMS energy at or above which a frame
	// counts as speech. Default: 0.3.
	VADThreshold float64 `yaml:"vad_threshold"`

	// SilenceTimeoutMs is how much continuous silence ends an utterance.
	// Default: 2000.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// WakeWordTimeoutMs is the two-utterance confirmation window.
	// Default: 3000.
	WakeWordTimeoutMs int `yaml:"wake_word_timeout_ms"`
}

// SilenceTimeout returns the endpointing timeout as a duration.
func (d DetectionConfig) SilenceTimeout() time.Duration {
	return time.Duration(d.SilenceTimeoutMs) * time.Millisecond
}

// WakeWordTimeout returns the confirmation window as a duration.
func (d DetectionConfig) WakeWordTimeout() time.Duration {
	return time.Duration(d.WakeWordTimeoutMs) * time.Millisecond
}

// BackendConfig holds the chat server connection parameters.
type BackendConfig struct {
	// BaseURL is the server root, e.g. "https://assistant.example.com/api".
	BaseURL string `yaml:"base_url"`

	// Transport selects sse (default) or websocket streaming.
	Transport Transport `yaml:"transport"`

	// RequestTimeoutS bounds a single attempt. Default: 30.
	RequestTimeoutS int `yaml:"request_timeout_s"`

	// MaxAttempts is the per-call attempt budget. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// Fingerprint identifies the device to the server. Environment
	// references like ${VIGIL_FINGERPRINT} are expanded at load time.
	Fingerprint string `yaml:"fingerprint"`

	// SessionID pins an existing conversation. Empty means the device
	// bootstraps a fresh session at startup.
	SessionID string `yaml:"session_id"`
}

// RequestTimeout returns the per-attempt bound as a duration.
func (b BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutS) * time.Second
}

// SessionConfig holds state machine timing.
type SessionConfig struct {
	// ErrorRecoveryS is how long an error screen shows. Default: 10.
	ErrorRecoveryS int `yaml:"error_recovery_s"`

	// DisplayTimeoutS is how long a response shows. Default: 20.
	DisplayTimeoutS int `yaml:"display_timeout_s"`
}

// ErrorRecovery returns the error screen duration.
func (s SessionConfig) ErrorRecovery() time.Duration {
	return time.Duration(s.ErrorRecoveryS) * time.Second
}

// DisplayTimeout returns the response display duration.
func (s SessionConfig) DisplayTimeout() time.Duration {
	return time.Duration(s.DisplayTimeoutS) * time.Second
}

// RenderConfig configures the user-facing status surfaces. The structured
// log renderer is always on; MQTT is optional.
type RenderConfig struct {
	// MQTT mirrors session state to a broker for an external display.
	// Nil disables it.
	MQTT *MQTTRenderConfig `yaml:"mqtt"`
}

// MQTTRenderConfig holds broker parameters for the MQTT renderer.
type MQTTRenderConfig struct {
	// Broker is the broker URL, e.g. "tcp://broker.local:1883".
	Broker string `yaml:"broker"`

	// ClientID identifies this device to the broker. Defaults to the
	// device name.
	ClientID string `yaml:"client_id"`

	// Username and Password are optional broker credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TopicPrefix forms the state topic <prefix>/<device>/state.
	// Default: "vigil".
	TopicPrefix string `yaml:"topic_prefix"`
}

// TelemetryConfig configures the health and metrics endpoint.
type TelemetryConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Default: ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Device.Name == "" {
		c.Device.Name = "vigil"
	}
	if c.Device.LogLevel == "" {
		c.Device.LogLevel = LogInfo
	}
	if c.Audio.SampleRateHz == 0 {
		c.Audio.SampleRateHz = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.BitDepth == 0 {
		c.Audio.BitDepth = 16
	}
	if c.Audio.BufferSize == 0 {
		c.Audio.BufferSize = 1024
	}
	if c.Audio.FrameSize == 0 {
		c.Audio.FrameSize = 512
	}
	if c.Audio.MaxRecordingDurationS == 0 {
		c.Audio.MaxRecordingDurationS = 30
	}
	if c.Audio.WakeEngine == "" {
		c.Audio.WakeEngine = "energy"
	}
	if c.Detection.WakeWordThreshold == 0 {
		c.Detection.WakeWordThreshold = 0.5
	}
	if c.Detection.VADThreshold == 0 {
		c.Detection.VADThreshold = 0.3
	}
	if c.Detection.SilenceTimeoutMs == 0 {
		c.Detection.SilenceTimeoutMs = 2000
	}
	if c.Detection.WakeWordTimeoutMs == 0 {
		c.Detection.WakeWordTimeoutMs = 3000
	}
	if c.Backend.Transport == "" {
		c.Backend.Transport = TransportSSE
	}
	if c.Backend.RequestTimeoutS == 0 {
		c.Backend.RequestTimeoutS = 30
	}
	if c.Backend.MaxAttempts == 0 {
		c.Backend.MaxAttempts = 3
	}
	if c.Session.ErrorRecoveryS == 0 {
		c.Session.ErrorRecoveryS = 10
	}
	if c.Session.DisplayTimeoutS == 0 {
		c.Session.DisplayTimeoutS = 20
	}
	if c.Render.MQTT != nil {
		if c.Render.MQTT.ClientID == "" {
			c.Render.MQTT.ClientID = c.Device.Name
		}
		if c.Render.MQTT.TopicPrefix == "" {
			c.Render.MQTT.TopicPrefix = "vigil"
		}
	}
	if c.Telemetry.ListenAddr == "" {
		c.Telemetry.ListenAddr = ":9090"
	}
}

// checkPositive joins a range error onto errs when v is not positive.
func checkPositive(errs []error, field string, v int) []error {
	if v <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", field, v))
	}
	return errs
}
