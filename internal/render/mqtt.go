package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxResponseChars bounds reply text in MQTT payloads; small displays cannot
// show more anyway and brokers may reject oversized retained messages.
const maxResponseChars = 512

// MQTTConfig holds the broker connection parameters for an external display.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://broker.local:1883".
	Broker string

	// ClientID identifies this device to the broker.
	ClientID string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// DeviceID forms the topic: <topic_prefix>/<device_id>/state.
	DeviceID string

	// TopicPrefix is the leading topic segment. Default: "vigil".
	TopicPrefix string

	// PublishTimeout bounds a single publish. Default: 5s.
	PublishTimeout time.Duration
}

// statePayload is the JSON message published on every state change.
type statePayload struct {
	State     string  `json:"state"`
	ElapsedMs int64   `json:"elapsed_ms,omitempty"`
	Level     float64 `json:"level,omitempty"`
	Text      string  `json:"text,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// publisher is the slice of the paho client the renderer needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTRenderer mirrors the session state to an MQTT topic so an external
// display (wall panel, dashboard) can follow along. Publish failures are
// logged and dropped; the display is best-effort and must never stall the
// session machine.
type MQTTRenderer struct {
	client  publisher
	topic   string
	timeout time.Duration
	close   func()
}

var _ Renderer = (*MQTTRenderer)(nil)

// NewMQTTRenderer connects to the broker and returns a renderer publishing
// to vigil/<device_id>/state.
func NewMQTTRenderer(cfg MQTTConfig) (*MQTTRenderer, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("render: mqtt broker must be set")
	}
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("render: mqtt device_id must be set")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "vigil"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("render: connect to mqtt broker: %w", token.Error())
	}
	slog.Info("render: connected to mqtt broker", "broker", cfg.Broker)

	return &MQTTRenderer{
		client:  client,
		topic:   fmt.Sprintf("%s/%s/state", cfg.TopicPrefix, cfg.DeviceID),
		timeout: cfg.PublishTimeout,
		close:   func() { client.Disconnect(250) },
	}, nil
}

// Close disconnects from the broker.
func (r *MQTTRenderer) Close() {
	if r.close != nil {
		r.close()
	}
}

func (r *MQTTRenderer) ShowIdle() {
	r.publish(statePayload{State: "idle"})
}

func (r *MQTTRenderer) ShowListening() {
	r.publish(statePayload{State: "listening"})
}

func (r *MQTTRenderer) ShowRecording(elapsed time.Duration, level float64) {
	r.publish(statePayload{
		State:     "recording",
		ElapsedMs: elapsed.Milliseconds(),
		Level:     level,
	})
}

func (r *MQTTRenderer) ShowThinking() {
	r.publish(statePayload{State: "thinking"})
}

func (r *MQTTRenderer) ShowResponse(text string) {
	r.publish(statePayload{State: "speaking", Text: truncate(text, maxResponseChars)})
}

func (r *MQTTRenderer) ShowError(message string) {
	r.publish(statePayload{State: "error", Message: message})
}

func (r *MQTTRenderer) publish(p statePayload) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Error("render: encode mqtt payload", "err", err)
		return
	}
	token := r.client.Publish(r.topic, 0, true, data)
	if !token.WaitTimeout(r.timeout) {
		slog.Warn("render: mqtt publish timed out", "topic", r.topic)
		return
	}
	if err := token.Error(); err != nil {
		slog.Warn("render: mqtt publish failed", "topic", r.topic, "err", err)
	}
}
