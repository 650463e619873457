// Package painput captures the default input device with PortAudio, for
// recording takes.
package painput

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/engine"
)

type (
	// Device is the default PortAudio input device. It implements
	// engine.InputDevice.
	Device struct {
		// FramesPerBuffer is the size of the captured blocks; 0 lets
		// PortAudio choose.
		FramesPerBuffer int
	}

	stream struct {
		pa     *portaudio.Stream
		frames kaiku.AudioBuffer
	}
)

// Open initializes PortAudio and opens a stereo (or mono, if that is all the
// device has) input stream. Mono input is copied to both channels.
func (d Device) Open(sampleRate float64, onFrames func(kaiku.AudioBuffer)) (engine.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("cannot initialize portaudio: %w", err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("no default input device: %w", err)
	}
	channels := min(dev.MaxInputChannels, 2)
	if channels < 1 {
		portaudio.Terminate()
		return nil, fmt.Errorf("input device %v has no input channels", dev.Name)
	}
	s := &stream{}
	callback := func(in []float32) {
		s.frames = Deinterleave(in, channels, s.frames)
		onFrames(s.frames)
	}
	s.pa, err = portaudio.OpenDefaultStream(channels, 0, sampleRate, d.FramesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("cannot open input stream: %w", err)
	}
	return s, nil
}

func (s *stream) Start() error {
	if err := s.pa.Start(); err != nil {
		return fmt.Errorf("cannot start input stream: %w", err)
	}
	return nil
}

// Close stops the stream and releases PortAudio. No callback runs after it
// returns.
func (s *stream) Close() error {
	stopErr := s.pa.Stop()
	closeErr := s.pa.Close()
	termErr := portaudio.Terminate()
	switch {
	case stopErr != nil:
		return fmt.Errorf("cannot stop input stream: %w", stopErr)
	case closeErr != nil:
		return fmt.Errorf("cannot close input stream: %w", closeErr)
	case termErr != nil:
		return fmt.Errorf("cannot terminate portaudio: %w", termErr)
	}
	return nil
}

// Deinterleave converts interleaved samples with the given number of
// channels into stereo frames, reusing dst. Mono is duplicated; channels
// past the second are dropped.
func Deinterleave(in []float32, channels int, dst kaiku.AudioBuffer) kaiku.AudioBuffer {
	n := len(in) / channels
	dst = dst.Resize(n)
	for i := range dst {
		l := in[i*channels]
		r := l
		if channels > 1 {
			r = in[i*channels+1]
		}
		dst[i] = [2]float32{l, r}
	}
	return dst
}
