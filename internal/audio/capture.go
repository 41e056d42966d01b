package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// Capture state errors.
var (
	// ErrAlreadyStarted is returned by Start on a running Capturer.
	ErrAlreadyStarted = errors.New("audio: capture already started")
	// ErrNotStarted is returned by Stop on a Capturer that is not running.
	ErrNotStarted = errors.New("audio: capture not started")
	// ErrOverflow is returned by Session.Run when the capture callback had
	// to drop samples (see Capturer.Overflowed).
	ErrOverflow = errors.New("audio: ring buffer overflow")
	// ErrNoInputDevices is returned by Devices when nothing can record.
	ErrNoInputDevices = errors.New("audio: no input devices found")
)

const (
	// ringSeconds is how much audio the ring can hold. Generous, so a slow
	// analysis tick never comes close to overflowing.
	ringSeconds = 30

	// framesPerBuffer is the number of frames requested per callback.
	framesPerBuffer = 4096

	// sampleBytes is the encoded size of one mono sample.
	sampleBytes = 4
)

// preferredRates lists the sample rates to try on the device, in preference
// order. Standard rates are plenty for pitch detection; higher ones would
// only grow the analysis windows.
var preferredRates = []int{44100, 48000, 96000, 24000}

// CaptureConfig selects the input device for a Capturer.
type CaptureConfig struct {
	// Device is an index into the PortAudio device list, or -1 for the
	// default input device.
	Device int
	// Rate is the sample rate to try first, in Hz; 0 defers to the
	// preferred-rate list. When the device rejects it, the preferred rates
	// are tried as usual.
	Rate int
	// Channels to open on the device; 0 means mono. Multi-channel input is
	// downmixed to mono in the callback.
	Channels int
}

// Capturer owns a PortAudio input stream and the ring buffer its callback
// fills with little-endian float32 mono samples. The callback runs on the
// audio thread and never locks or allocates.
type Capturer struct {
	stream     *portaudio.Stream
	ring       *Ring
	rate       int
	channels   int
	scratch    []byte
	overflowed atomic.Bool
	capturing  bool
}

// NewCapturer initializes PortAudio, opens an input stream on the selected
// device at the requested sample rate or the first preferred one the device
// accepts, and sizes the ring for it. The stream does not run until Start.
func NewCapturer(cfg CaptureConfig) (*Capturer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	device, err := inputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	channels := cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	if channels > device.MaxInputChannels {
		channels = device.MaxInputChannels
	}

	c := &Capturer{channels: channels}

	// The requested rate, when given, goes first; then the preferred list;
	// the device default is the last resort.
	rates := make([]int, 0, len(preferredRates)+2)
	if cfg.Rate > 0 {
		rates = append(rates, cfg.Rate)
	}
	rates = append(rates, preferredRates...)
	rates = append(rates, int(device.DefaultSampleRate))

	for _, rate := range rates {
		params := portaudio.HighLatencyParameters(device, nil)
		params.Input.Channels = channels
		params.SampleRate = float64(rate)
		params.FramesPerBuffer = framesPerBuffer
		stream, err := portaudio.OpenStream(params, c.record)
		if err == nil {
			c.stream = stream
			c.rate = rate
			break
		}
	}
	if c.stream == nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: device %q accepts none of the supported sample rates", device.Name)
	}

	c.ring = NewRing(ringSeconds * c.rate * sampleBytes)
	c.scratch = make([]byte, framesPerBuffer*sampleBytes)

	return c, nil
}

// Ring returns the buffer the capture callback writes into.
func (c *Capturer) Ring() *Ring {
	return c.ring
}

// SampleRate returns the rate the stream was opened at, in Hz.
func (c *Capturer) SampleRate() int {
	return c.rate
}

// Overflowed reports whether the callback ever had to drop samples, either
// because the ring was full or because one callback delivered more frames
// than the scratch buffer holds.
func (c *Capturer) Overflowed() bool {
	return c.overflowed.Load()
}

// Start begins filling the ring.
func (c *Capturer) Start() error {
	if c.capturing {
		return ErrAlreadyStarted
	}
	if err := c.stream.Start(); err != nil {
		return err
	}
	c.capturing = true
	return nil
}

// Stop halts the stream, closes it and shuts PortAudio down. After Stop the
// ring still holds whatever the callback wrote; drain it before discarding
// the Capturer.
func (c *Capturer) Stop() error {
	if !c.capturing {
		return ErrNotStarted
	}

	if err := c.stream.Stop(); err != nil {
		return err
	}
	if err := c.stream.Close(); err != nil {
		return err
	}
	c.capturing = false

	return portaudio.Terminate()
}

// record is the PortAudio callback: downmix each frame to mono, encode it
// and push it into the ring. Runs on the audio thread, so no syscalls, no
// locks, no allocations.
func (c *Capturer) record(in []float32) {
	frames := len(in) / c.channels
	if frames*sampleBytes > len(c.scratch) {
		frames = len(c.scratch) / sampleBytes
		c.overflowed.Store(true)
	}

	for f := 0; f < frames; f++ {
		v := in[f*c.channels]
		if c.channels > 1 {
			sum := float32(0)
			for ch := 0; ch < c.channels; ch++ {
				sum += in[f*c.channels+ch]
			}
			v = sum / float32(c.channels)
		}
		binary.LittleEndian.PutUint32(c.scratch[f*sampleBytes:], math.Float32bits(v))
	}

	if c.ring.Write(c.scratch[:frames*sampleBytes]) < frames*sampleBytes {
		c.overflowed.Store(true)
	}
}

// inputDevice resolves a CaptureConfig device index.
func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("audio: no device with index %d", index)
	}
	device := devices[index]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("audio: device %q has no inputs", device.Name)
	}
	return device, nil
}

// Devices returns a printable line for every input device, suitable for a
// device-selection listing. The reported indexes are valid for
// CaptureConfig.Device.
func Devices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		defaultInput = nil
	}

	var lines []string
	for i, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		suffix := ""
		// Device names are not unique; identity is the pointer into the
		// list PortAudio itself returned.
		if device == defaultInput {
			suffix = " (default)"
		}
		lines = append(lines, fmt.Sprintf("%d) %s%s", i, device.Name, suffix))
	}
	if len(lines) == 0 {
		return nil, ErrNoInputDevices
	}
	return lines, nil
}
