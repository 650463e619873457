// Package oto plays an audio source through the default output device.
package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/vsariola/kaiku"
)

// Output pulls frames from a source whenever the device needs them. It
// implements kaiku.AudioOutput.
type Output struct {
	context *oto.Context
	player  *oto.Player
	source  kaiku.AudioSource
	mu      sync.Mutex
	buffer  kaiku.AudioBuffer
	bytes   []byte
}

var _ kaiku.AudioOutput = (*Output)(nil)

const bytesPerFrame = 4

// outputLatency is the size of the device buffer.
const outputLatency = 40 * time.Millisecond

var (
	contextOnce sync.Once
	context     *oto.Context
	contextRate int
	contextErr  error
)

// sharedContext returns the process-wide oto context. oto allows only one
// context per process, so later calls must use the same sample rate.
func sharedContext(sampleRate int) (*oto.Context, error) {
	contextOnce.Do(func() {
		var ready chan struct{}
		context, ready, contextErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   outputLatency,
		})
		if contextErr != nil {
			contextErr = fmt.Errorf("cannot create oto context: %w", contextErr)
			return
		}
		contextRate = sampleRate
		<-ready
	})
	if contextErr != nil {
		return nil, contextErr
	}
	if contextRate != sampleRate {
		return nil, fmt.Errorf("oto context already running at %v Hz, cannot open at %v Hz", contextRate, sampleRate)
	}
	return context, nil
}

// Open starts playing source at the given sample rate.
func Open(source kaiku.AudioSource, sampleRate int) (*Output, error) {
	c, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	o := &Output{context: c, source: source}
	o.player = c.NewPlayer(o)
	o.player.Play()
	return o, nil
}

// Read renders len(p)/4 frames as 16-bit stereo. It is called by the
// player on its own goroutine.
func (o *Output) Read(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	o.buffer = o.buffer.Resize(frames)
	clear(o.buffer)
	o.source.Process(o.buffer)
	o.bytes = AudioBufferTo16BitLE(o.buffer, o.bytes[:0])
	return copy(p, o.bytes), nil
}

// Close stops playback and disposes of the player.
func (o *Output) Close() error {
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
