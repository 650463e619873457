// Package graph is a small sample-accurate audio graph. A Context owns a
// frame counter, the audio clock, which only advances when the context
// renders. Nodes are pulled from the destination once per block; parameters
// carry timelines of automation events that are evaluated per sample, so
// everything scheduled against the audio clock lands on an exact frame.
//
// The same Context type is used for live playback, where an output device
// calls Process from its own goroutine, and for offline rendering, where
// Render is called directly.
package graph

import (
	"sync"
	"sync/atomic"

	"github.com/vsariola/kaiku"
)

// BlockSize is the number of frames rendered between two updates of the
// graph structure.
const BlockSize = 128

type Context struct {
	mu         sync.Mutex
	sampleRate float64
	frame      atomic.Int64
	dest       *Gain
	ended      []func()
}

// NewContext creates a context running at the given sample rate.
func NewContext(sampleRate int) *Context {
	c := &Context{sampleRate: float64(sampleRate)}
	c.dest = NewGain(c, 1)
	return c
}

func (c *Context) SampleRate() float64 {
	return c.sampleRate
}

// Now returns the audio clock in seconds: the time of the first frame of
// the next block to be rendered. Safe to call from any goroutine.
func (c *Context) Now() float64 {
	return float64(c.frame.Load()) / c.sampleRate
}

// Frame returns the audio clock in frames.
func (c *Context) Frame() int64 {
	return c.frame.Load()
}

// Destination is the node whose output ends up in the rendered buffers.
func (c *Context) Destination() *Gain {
	return c.dest
}

// Process renders len(buffer) frames into buffer and advances the clock.
// Callbacks of sources that ended during a block are run after that block,
// without holding the context lock, so they may freely modify the graph.
func (c *Context) Process(buffer kaiku.AudioBuffer) {
	for len(buffer) > 0 {
		n := min(len(buffer), BlockSize)
		c.mu.Lock()
		frame := c.frame.Load()
		out := c.dest.pull(frame, n)
		copy(buffer[:n], out)
		c.frame.Store(frame + int64(n))
		callbacks := c.ended
		c.ended = nil
		c.mu.Unlock()
		for _, f := range callbacks {
			f()
		}
		buffer = buffer[n:]
	}
}

// Render renders the given number of frames into a new buffer. Used for
// offline contexts.
func (c *Context) Render(frames int) kaiku.AudioBuffer {
	ret := make(kaiku.AudioBuffer, frames)
	c.Process(ret)
	return ret
}

// seconds to frames, rounding to the nearest frame
func (c *Context) toFrame(t float64) int64 {
	return int64(t*c.sampleRate + 0.5)
}

func (c *Context) queueEnded(f func()) {
	if f != nil {
		c.ended = append(c.ended, f)
	}
}
