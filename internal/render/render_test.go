package render

import (
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func TestMeter(t *testing.T) {
	cases := []struct {
		level float64
		width int
		want  string
	}{
		{0, 10, "----------"},
		{1, 10, "##########"},
		{0.5, 10, "#####-----"},
		{0.24, 4, "#---"},
		{-0.5, 4, "----"},
		{1.5, 4, "####"},
		{0.5, 0, ""},
	}
	for _, tc := range cases {
		if got := Meter(tc.level, tc.width); got != tc.want {
			t.Errorf("Meter(%v, %d) = %q, want %q", tc.level, tc.width, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("hello world", 5); got != "hell…" {
		t.Errorf("truncate = %q, want hell…", got)
	}
	// Rune boundaries survive.
	if got := truncate("ääääää", 3); got != "ää…" {
		t.Errorf("truncate = %q, want ää…", got)
	}
}

// callRecorder records which Renderer methods were invoked.
type callRecorder struct {
	calls []string
}

func (c *callRecorder) ShowIdle()                            { c.calls = append(c.calls, "idle") }
func (c *callRecorder) ShowListening()                       { c.calls = append(c.calls, "listening") }
func (c *callRecorder) ShowRecording(time.Duration, float64) { c.calls = append(c.calls, "recording") }
func (c *callRecorder) ShowThinking()                        { c.calls = append(c.calls, "thinking") }
func (c *callRecorder) ShowResponse(string)                  { c.calls = append(c.calls, "response") }
func (c *callRecorder) ShowError(string)                     { c.calls = append(c.calls, "error") }

func TestMultiFansOut(t *testing.T) {
	a := &callRecorder{}
	b := &callRecorder{}
	m := Multi{a, b}

	m.ShowIdle()
	m.ShowRecording(time.Second, 0.5)
	m.ShowError("boom")

	want := []string{"idle", "recording", "error"}
	for _, rec := range []*callRecorder{a, b} {
		if len(rec.calls) != len(want) {
			t.Fatalf("calls = %v, want %v", rec.calls, want)
		}
		for i := range want {
			if rec.calls[i] != want[i] {
				t.Errorf("call %d = %q, want %q", i, rec.calls[i], want[i])
			}
		}
	}
}

// fakeToken is an immediately-done mqtt.Token.
type fakeToken struct {
	err error
}

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (f *fakeToken) Error() error { return f.err }

// fakePublisher captures published payloads.
type fakePublisher struct {
	topics   []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload.([]byte))
	return &fakeToken{}
}

func newFakeMQTTRenderer() (*MQTTRenderer, *fakePublisher) {
	pub := &fakePublisher{}
	return &MQTTRenderer{
		client:  pub,
		topic:   "vigil/livingroom/state",
		timeout: time.Second,
	}, pub
}

func TestMQTTRenderer_Payloads(t *testing.T) {
	r, pub := newFakeMQTTRenderer()

	r.ShowRecording(1500*time.Millisecond, 0.75)
	r.ShowResponse("hello there")
	r.ShowError("mic gone")

	if len(pub.payloads) != 3 {
		t.Fatalf("published %d messages, want 3", len(pub.payloads))
	}
	for _, topic := range pub.topics {
		if topic != "vigil/livingroom/state" {
			t.Errorf("topic = %q", topic)
		}
	}

	var p statePayload
	if err := json.Unmarshal(pub.payloads[0], &p); err != nil {
		t.Fatalf("decode recording payload: %v", err)
	}
	if p.State != "recording" || p.ElapsedMs != 1500 || p.Level != 0.75 {
		t.Errorf("recording payload = %+v", p)
	}

	if err := json.Unmarshal(pub.payloads[1], &p); err != nil {
		t.Fatalf("decode response payload: %v", err)
	}
	if p.State != "speaking" || p.Text != "hello there" {
		t.Errorf("response payload = %+v", p)
	}

	if err := json.Unmarshal(pub.payloads[2], &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.State != "error" || p.Message != "mic gone" {
		t.Errorf("error payload = %+v", p)
	}
}

func TestMQTTRenderer_TruncatesLongResponses(t *testing.T) {
	r, pub := newFakeMQTTRenderer()

	long := make([]byte, 2048)
	for i := range long {
		long[i] = 'a'
	}
	r.ShowResponse(string(long))

	var p statePayload
	if err := json.Unmarshal(pub.payloads[0], &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got := len([]rune(p.Text)); got != maxResponseChars {
		t.Errorf("text length = %d runes, want %d", got, maxResponseChars)
	}
}
