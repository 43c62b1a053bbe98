package config

// Diff describes what changed between two configs, split into what can be
// applied live and what needs a restart.
type Diff struct {
	// LogLevelChanged means the log verbosity changed; applied live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DetectionChanged means a wake or VAD threshold or timeout changed;
	// applied live by the detector workers.
	DetectionChanged bool

	// RequiresRestart means something structural changed (audio format,
	// backend connection, render sinks, telemetry address) that only
	// takes effect on the next start.
	RequiresRestart bool
}

// Compare computes the [Diff] from old to new.
func Compare(old, new *Config) Diff {
	var d Diff

	if old.Device.LogLevel != new.Device.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Device.LogLevel
	}
	if old.Detection != new.Detection {
		d.DetectionChanged = true
	}
	if old.Audio != new.Audio ||
		old.Backend != new.Backend ||
		old.Session != new.Session ||
		old.Telemetry != new.Telemetry ||
		!mqttEqual(old.Render.MQTT, new.Render.MQTT) ||
		old.Device.Name != new.Device.Name {
		d.RequiresRestart = true
	}
	return d
}

func mqttEqual(a, b *MQTTRenderConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return !d.LogLevelChanged && !d.DetectionChanged && !d.RequiresRestart
}
