package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. Environment references like
// ${VIGIL_FINGERPRINT} in the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment
// references, applies defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Device.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("device.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Device.LogLevel))
	}

	errs = checkPositive(errs, "audio.sample_rate_hz", cfg.Audio.SampleRateHz)
	errs = checkPositive(errs, "audio.buffer_size", cfg.Audio.BufferSize)
	errs = checkPositive(errs, "audio.frame_size", cfg.Audio.FrameSize)
	errs = checkPositive(errs, "audio.max_recording_duration_s", cfg.Audio.MaxRecordingDurationS)
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth must be 16, got %d", cfg.Audio.BitDepth))
	}

	if t := cfg.Detection.WakeWordThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("detection.wake_word_threshold must be in (0, 1], got %v", t))
	}
	if t := cfg.Detection.VADThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("detection.vad_threshold must be in (0, 1], got %v", t))
	}
	errs = checkPositive(errs, "detection.silence_timeout_ms", cfg.Detection.SilenceTimeoutMs)
	errs = checkPositive(errs, "detection.wake_word_timeout_ms", cfg.Detection.WakeWordTimeoutMs)

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url must be set"))
	}
	if !cfg.Backend.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("backend.transport %q is invalid; valid values: sse, websocket", cfg.Backend.Transport))
	}
	if cfg.Backend.Fingerprint == "" {
		errs = append(errs, errors.New("backend.fingerprint must be set (directly or via environment)"))
	}
	errs = checkPositive(errs, "backend.max_attempts", cfg.Backend.MaxAttempts)

	if mq := cfg.Render.MQTT; mq != nil && mq.Broker == "" {
		errs = append(errs, errors.New("render.mqtt.broker must be set when render.mqtt is present"))
	}

	return errors.Join(errs...)
}
