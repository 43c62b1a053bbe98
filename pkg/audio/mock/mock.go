// Package mock provides scripted audio sources and devices for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
)

// Source replays a pre-built list of frames and then blocks until the
// context is cancelled (a real microphone never ends). Frames are delivered
// as fast as the consumer accepts them unless Interval is set.
type Source struct {
	// Script is the ordered list of frames to deliver.
	Script []audio.AudioFrame

	// Interval, when non-zero, is the delay between frames (simulating the
	// hardware cadence).
	Interval time.Duration

	once sync.Once
	out  chan audio.AudioFrame
}

// Compile-time check that *Source satisfies audio.Source.
var _ audio.Source = (*Source)(nil)

func (s *Source) init() {
	s.once.Do(func() {
		s.out = make(chan audio.AudioFrame, len(s.Script))
	})
}

// Frames returns the frame channel.
func (s *Source) Frames() <-chan audio.AudioFrame {
	s.init()
	return s.out
}

// Run delivers the script, then blocks until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.init()
	defer close(s.out)

	for _, f := range s.Script {
		if s.Interval > 0 {
			select {
			case <-time.After(s.Interval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case s.out <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Device is a scripted audio.Device. StartErrs is consumed one per Start
// call; once exhausted Start succeeds and Feed can push PCM to the callback.
type Device struct {
	// StartErrs are returned by successive Start calls, in order.
	StartErrs []error

	mu     sync.Mutex
	starts int
	onPCM  func([]byte)
}

// Compile-time check that *Device satisfies audio.Device.
var _ audio.Device = (*Device)(nil)

// Start pops the next scripted error, or succeeds and records the callback.
func (d *Device) Start(onPCM func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts++
	if len(d.StartErrs) > 0 {
		err := d.StartErrs[0]
		d.StartErrs = d.StartErrs[1:]
		if err != nil {
			return err
		}
	}
	d.onPCM = onPCM
	return nil
}

// Stop clears the callback.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPCM = nil
	return nil
}

// Close is a no-op.
func (d *Device) Close() error { return nil }

// Starts reports how many times Start was called.
func (d *Device) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Feed pushes raw PCM bytes into the capture callback, as the driver thread
// would. No-op when the device is not started.
func (d *Device) Feed(pcm []byte) {
	d.mu.Lock()
	cb := d.onPCM
	d.mu.Unlock()
	if cb != nil {
		cb(pcm)
	}
}

// Tone builds a frame of constant amplitude, useful for driving the VAD and
// wake detectors in tests. amplitude is in int16 units.
func Tone(seq uint64, n int, amplitude int16, at time.Time) audio.AudioFrame {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = amplitude
	}
	return audio.AudioFrame{PCM: pcm, Seq: seq, SampleRate: 16000, Channels: 1, CapturedAt: at}
}
