// Package malgo implements the audio.Device interface on top of miniaudio
// via the gen2brain/malgo bindings. It is the default capture backend on
// Linux/ALSA targets.
package malgo

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/vigil/pkg/audio"
)

// Compile-time check that *Device satisfies audio.Device.
var _ audio.Device = (*Device)(nil)

// Config holds the capture device parameters.
type Config struct {
	// SampleRate in Hz (e.g. 16000).
	SampleRate int

	// Channels to capture. The pipeline downmixes to mono, so 1 is typical.
	Channels int

	// PeriodSizeInFrames controls the driver buffer granularity. Default:
	// 480 (30ms at 16kHz).
	PeriodSizeInFrames int
}

// Device is a miniaudio capture device.
type Device struct {
	cfg Config

	// onPCM is read lock-free on miniaudio's audio thread. Stop and Close
	// hold mu across driver calls that wait for the in-flight callback to
	// finish, so the data path must never take the lock.
	onPCM atomic.Pointer[func([]byte)]

	mu     sync.Mutex
	actx   *malgo.AllocatedContext
	device *malgo.Device
	closed bool
}

// New creates a Device with the given config. The underlying miniaudio
// context is initialised lazily on the first Start call so that construction
// never touches hardware.
func New(cfg Config) *Device {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.PeriodSizeInFrames <= 0 {
		cfg.PeriodSizeInFrames = 480
	}
	return &Device{cfg: cfg}
}

// Start opens the capture device and begins delivering PCM buffers to onPCM
// on miniaudio's audio thread. Errors unwrap to *audio.MicrophoneError.
func (d *Device) Start(onPCM func(pcm []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &audio.MicrophoneError{Op: "start", Err: fmt.Errorf("device is closed")}
	}
	if d.device != nil && d.device.IsStarted() {
		return nil
	}

	if d.actx == nil {
		actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return &audio.MicrophoneError{Op: "init", Err: err}
		}
		d.actx = actx
	}

	if d.device == nil {
		format := malgo.FormatS16
		devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
		devCfg.SampleRate = uint32(d.cfg.SampleRate)
		devCfg.Capture.Format = format
		devCfg.Capture.Channels = uint32(d.cfg.Channels)
		devCfg.Alsa.NoMMap = 1
		devCfg.PerformanceProfile = malgo.LowLatency
		devCfg.PeriodSizeInFrames = uint32(d.cfg.PeriodSizeInFrames)

		bytesPerFrame := malgo.SampleSizeInBytes(format) * d.cfg.Channels
		device, err := malgo.InitDevice(d.actx.Context, devCfg, malgo.DeviceCallbacks{
			Data: func(_, pInput []byte, frameCount uint32) {
				n := int(frameCount) * bytesPerFrame
				if n == 0 || len(pInput) < n {
					return
				}
				d.deliver(pInput[:n])
			},
		})
		if err != nil {
			return &audio.MicrophoneError{Op: "init", Err: err}
		}
		d.device = device
	}

	d.onPCM.Store(&onPCM)
	if err := d.device.Start(); err != nil {
		d.onPCM.Store(nil)
		return &audio.MicrophoneError{Op: "start", Err: err}
	}
	return nil
}

// deliver hands one driver buffer to the registered callback. Runs on the
// audio thread; must stay lock-free.
func (d *Device) deliver(pcm []byte) {
	if cb := d.onPCM.Load(); cb != nil {
		(*cb)(pcm)
	}
}

// Stop halts capture but keeps the device open for a later Start.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil || !d.device.IsStarted() {
		return nil
	}
	d.onPCM.Store(nil)
	if err := d.device.Stop(); err != nil {
		return &audio.MicrophoneError{Op: "stop", Err: err}
	}
	return nil
}

// Close releases the device and miniaudio context. Safe to call repeatedly.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.onPCM.Store(nil)

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.actx != nil {
		_ = d.actx.Uninit()
		d.actx.Free()
		d.actx = nil
	}
	return nil
}
