package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Capture defaults.
const (
	defaultInitAttempts  = 3
	defaultInitBackoff   = 1 * time.Second
	defaultStallTimeout  = 2 * time.Second
	defaultStallRestarts = 2
)

// errDeviceStalled marks a device that started cleanly but stopped
// delivering frames.
var errDeviceStalled = errors.New("device stopped delivering frames")

// CaptureConfig holds the parameters for a [CaptureSource].
type CaptureConfig struct {
	// SampleRate in Hz. Must match the rate the Device captures at.
	SampleRate int

	// Channels delivered by the device. Frames are downmixed to mono when
	// this is 2.
	Channels int

	// FrameSize is the number of mono samples per emitted frame.
	FrameSize int

	// RingFrames is the capacity of the overflow ring between the driver
	// callback and the pump. Default: 32.
	RingFrames int

	// InitAttempts is the number of device start attempts before capture
	// fails fatally. Default: 3.
	InitAttempts int

	// InitBackoff is the pause between start attempts. Default: 1s.
	InitBackoff time.Duration

	// StallTimeout is how long the pump tolerates a started device that
	// delivers no frames before restarting it. A device can die mid-run
	// without its driver reporting an error. Default: 2s.
	StallTimeout time.Duration

	// StallRestarts is the number of consecutive stall restarts tried
	// before capture fails fatally. A frame delivery resets the count.
	// Default: 2.
	StallRestarts int
}

// CaptureSource adapts a [Device] into a [Source]. The driver callback
// assembles fixed-size frames and pushes them into a [Ring]; a pump
// goroutine drains the ring onto the Frames channel. A slow consumer causes
// ring overwrites (logged, counted), never a blocked driver thread.
type CaptureSource struct {
	dev  Device
	cfg  CaptureConfig
	ring *Ring
	out  chan AudioFrame

	// carry holds samples left over between driver callbacks. Only the
	// driver thread touches it.
	carry []int16
	seq   uint64
}

// NewCaptureSource creates a CaptureSource reading from dev. Zero-value
// config fields are replaced with defaults.
func NewCaptureSource(dev Device, cfg CaptureConfig) *CaptureSource {
	if cfg.RingFrames <= 0 {
		cfg.RingFrames = 32
	}
	if cfg.InitAttempts <= 0 {
		cfg.InitAttempts = defaultInitAttempts
	}
	if cfg.InitBackoff <= 0 {
		cfg.InitBackoff = defaultInitBackoff
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = defaultStallTimeout
	}
	if cfg.StallRestarts <= 0 {
		cfg.StallRestarts = defaultStallRestarts
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &CaptureSource{
		dev:  dev,
		cfg:  cfg,
		ring: NewRing(cfg.RingFrames),
		out:  make(chan AudioFrame, cfg.RingFrames),
	}
}

// Frames returns the frame channel. Closed when [CaptureSource.Run] returns.
func (c *CaptureSource) Frames() <-chan AudioFrame { return c.out }

// Overflows reports the number of frames lost to ring overwrites.
func (c *CaptureSource) Overflows() uint64 { return c.ring.Overflows() }

// Run starts the device and pumps frames until ctx is cancelled or the
// device fails for good: it cannot be started within the configured attempt
// budget, or it stalls and the restart budget runs out. The Frames channel
// is closed on return.
func (c *CaptureSource) Run(ctx context.Context) error {
	defer close(c.out)

	if err := c.start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.dev.Stop(); err != nil {
			slog.Warn("capture: device stop error", "err", err)
		}
	}()

	// The watchdog catches a device that started cleanly but goes silent
	// mid-run; drivers do not always surface that as an error.
	watchdog := time.NewTimer(c.cfg.StallTimeout)
	defer watchdog.Stop()
	stalls := 0

	var loggedOverflows uint64
	for {
		// Drain everything buffered before blocking again.
		drained := false
		for {
			f, ok := c.ring.Pop()
			if !ok {
				break
			}
			drained = true
			select {
			case c.out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if drained {
			stalls = 0
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(c.cfg.StallTimeout)
		}

		if n := c.ring.Overflows(); n > loggedOverflows {
			slog.Warn("capture: ring overflow, oldest frames overwritten",
				"dropped", n-loggedOverflows,
				"total_dropped", n,
			)
			loggedOverflows = n
		}

		select {
		case <-c.ring.Wait():
		case <-watchdog.C:
			stalls++
			if stalls > c.cfg.StallRestarts {
				return &MicrophoneError{Op: "capture", Attempts: stalls, Err: errDeviceStalled}
			}
			slog.Warn("capture: no frames from device, restarting",
				"stall_timeout", c.cfg.StallTimeout,
				"restart", stalls,
				"max_restarts", c.cfg.StallRestarts,
			)
			if err := c.dev.Stop(); err != nil {
				slog.Warn("capture: device stop error", "err", err)
			}
			if err := c.start(ctx); err != nil {
				return err
			}
			watchdog.Reset(c.cfg.StallTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// start attempts to open the device, retrying with a fixed pause. Exhausting
// the budget returns a [*MicrophoneError].
func (c *CaptureSource) start(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.InitAttempts; attempt++ {
		lastErr = c.dev.Start(c.onPCM)
		if lastErr == nil {
			if attempt > 1 {
				slog.Info("capture: device recovered", "attempt", attempt)
			}
			return nil
		}
		slog.Warn("capture: device start failed",
			"attempt", attempt,
			"max_attempts", c.cfg.InitAttempts,
			"err", lastErr,
		)
		select {
		case <-time.After(c.cfg.InitBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &MicrophoneError{Op: "start", Attempts: c.cfg.InitAttempts, Err: lastErr}
}

// onPCM runs on the driver's audio thread. It appends the buffer to the
// carry, slices off complete frames, and pushes them into the ring. Never
// blocks and never logs.
func (c *CaptureSource) onPCM(pcm []byte) {
	samples := SamplesFromBytes(pcm)
	if c.cfg.Channels == 2 {
		samples = StereoToMono(samples)
	}
	c.carry = append(c.carry, samples...)

	for len(c.carry) >= c.cfg.FrameSize {
		frame := make([]int16, c.cfg.FrameSize)
		copy(frame, c.carry[:c.cfg.FrameSize])
		c.carry = c.carry[c.cfg.FrameSize:]

		c.ring.Push(AudioFrame{
			PCM:        frame,
			Seq:        c.seq,
			SampleRate: c.cfg.SampleRate,
			Channels:   1,
			CapturedAt: time.Now(),
		})
		c.seq++
	}
}

// FrameDuration returns the duration of one frame at the configured rate.
func (c *CaptureSource) FrameDuration() time.Duration {
	if c.cfg.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.cfg.FrameSize) * time.Second / time.Duration(c.cfg.SampleRate)
}

// Compile-time check that *CaptureSource satisfies [Source].
var _ Source = (*CaptureSource)(nil)

// String implements fmt.Stringer for log output.
func (c *CaptureSource) String() string {
	return fmt.Sprintf("capture(%dHz, %d-sample frames)", c.cfg.SampleRate, c.cfg.FrameSize)
}
