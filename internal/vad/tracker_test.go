package vad_test

import (
	"testing"
	"time"

	"github.com/MrWong99/vigil/internal/event"
	"github.com/MrWong99/vigil/internal/vad"
	"github.com/MrWong99/vigil/pkg/audio"
)

// frame builds a 32ms mono frame of constant amplitude, so its normalized
// RMS energy is amplitude/32768.
func frame(seq uint64, amplitude int16) audio.AudioFrame {
	pcm := make([]int16, 512)
	for i := range pcm {
		pcm[i] = amplitude
	}
	return audio.AudioFrame{
		PCM:        pcm,
		Seq:        seq,
		SampleRate: 16000,
		Channels:   1,
	}
}

func collect() (func(event.Event), *[]event.Event) {
	var events []event.Event
	return func(ev event.Event) { events = append(events, ev) }, &events
}

func TestTracker(t *testing.T) {
	t.Parallel()
	cfg := vad.Config{Threshold: 0.3, SilenceAfter: 2 * time.Second}

	// 0.3 * 32768 ≈ 9831; stay clearly on either side.
	const loud, quiet = 16384, 100

	t.Run("speech onset publishes one voice activity event", func(t *testing.T) {
		t.Parallel()
		publish, events := collect()
		tr := vad.New(cfg, publish)
		for i := range uint64(5) {
			tr.ProcessFrame(frame(i, loud))
		}
		if len(*events) != 1 {
			t.Fatalf("published %d events, want 1", len(*events))
		}
		if _, ok := (*events)[0].(event.VoiceActivity); !ok {
			t.Fatalf("published %T, want event.VoiceActivity", (*events)[0])
		}
		if !tr.Speaking() {
			t.Error("Speaking() = false after loud frames")
		}
	})

	t.Run("silence run reports exactly once after the timeout", func(t *testing.T) {
		t.Parallel()
		publish, events := collect()
		tr := vad.New(cfg, publish)
		tr.ProcessFrame(frame(0, loud))

		// 63 frames of 32ms = 2016ms, just past the 2s timeout; keep
		// going well beyond to check the run reports only once.
		var silences []event.SilenceDetected
		for i := uint64(1); i <= 120; i++ {
			tr.ProcessFrame(frame(i, quiet))
		}
		for _, ev := range *events {
			if sd, ok := ev.(event.SilenceDetected); ok {
				silences = append(silences, sd)
			}
		}
		if len(silences) != 1 {
			t.Fatalf("got %d silence events, want 1", len(silences))
		}
		if silences[0].RunLength < 2*time.Second {
			t.Errorf("RunLength = %v, want >= 2s", silences[0].RunLength)
		}
		if tr.Speaking() {
			t.Error("Speaking() = true after silence run completed")
		}
	})

	t.Run("pauses shorter than the timeout do not endpoint", func(t *testing.T) {
		t.Parallel()
		publish, events := collect()
		tr := vad.New(cfg, publish)
		seq := uint64(0)
		next := func(amplitude int16) {
			tr.ProcessFrame(frame(seq, amplitude))
			seq++
		}
		next(loud)
		for range 30 { // ~960ms pause
			next(quiet)
		}
		next(loud) // speech resumes, run resets
		for range 30 {
			next(quiet)
		}
		for _, ev := range *events {
			if _, ok := ev.(event.SilenceDetected); ok {
				t.Fatalf("silence reported during sub-timeout pauses: %v", ev)
			}
		}
	})

	t.Run("recording with no speech endpoints at the timeout", func(t *testing.T) {
		t.Parallel()
		publish, events := collect()
		tr := vad.New(cfg, publish)
		tr.Reset() // recording begins; the user says nothing

		// At 32ms per frame the timeout lands inside frame 63 (2016ms).
		var reportedAt int
		for i := range uint64(120) {
			tr.ProcessFrame(frame(i, quiet))
			if len(*events) > 0 && reportedAt == 0 {
				reportedAt = int(i)
			}
		}
		if len(*events) != 1 {
			t.Fatalf("published %d events, want 1", len(*events))
		}
		sd, ok := (*events)[0].(event.SilenceDetected)
		if !ok {
			t.Fatalf("published %T, want event.SilenceDetected", (*events)[0])
		}
		if sd.RunLength < 2*time.Second || sd.RunLength > 2*time.Second+100*time.Millisecond {
			t.Errorf("RunLength = %v, want just past 2s", sd.RunLength)
		}
		if reportedAt != 62 {
			t.Errorf("silence reported at frame %d, want 62 (first frame past the 2s mark)", reportedAt)
		}
	})

	t.Run("reset clears the silence run", func(t *testing.T) {
		t.Parallel()
		publish, events := collect()
		tr := vad.New(cfg, publish)
		tr.ProcessFrame(frame(0, loud))
		for i := uint64(1); i <= 40; i++ {
			tr.ProcessFrame(frame(i, quiet))
		}
		tr.Reset()
		for i := uint64(41); i <= 80; i++ {
			tr.ProcessFrame(frame(i, quiet))
		}
		for _, ev := range *events {
			if _, ok := ev.(event.SilenceDetected); ok {
				t.Fatalf("silence reported across a reset: %v", ev)
			}
		}
	})
}
