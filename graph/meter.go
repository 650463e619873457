package graph

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"
	"github.com/vsariola/kaiku"
)

// MeterRelease is the time constant, in seconds, with which a meter falls
// back after a peak.
const MeterRelease = 0.3

// Meter passes its input through and tracks its peak level. The level rises
// immediately and falls back exponentially. Level can be polled from any
// goroutine without touching the rendering path.
type Meter struct {
	node
	level atomic.Uint64
	peak  float64
	tmp   []float32
}

func NewMeter(ctx *Context) *Meter {
	m := &Meter{}
	m.setup(ctx, m, false)
	return m
}

// Level returns the current level, 0 for silence and 1 for full scale.
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

func (m *Meter) process(frame int64, buf kaiku.AudioBuffer) {
	if cap(m.tmp) < len(buf) {
		m.tmp = make([]float32, len(buf))
	}
	m.tmp = m.tmp[:len(buf)]
	var p float32
	for chn := range 2 {
		for i := range buf {
			m.tmp[i] = buf[i][chn]
		}
		vek32.Abs_Inplace(m.tmp)
		p = max(p, vek32.Max(m.tmp))
	}
	decay := math.Exp(-float64(len(buf)) / (MeterRelease * m.ctx.sampleRate))
	m.peak = math.Max(float64(p), m.peak*decay)
	if math.IsNaN(m.peak) {
		m.peak = 0
	}
	m.level.Store(math.Float64bits(math.Min(m.peak, 1)))
}

// Input plays frames written by a capture device. Writes and reads happen on
// different goroutines; the node plays silence when the device falls behind
// and drops the oldest frames when it gets too far ahead.
type Input struct {
	node
	mu    sync.Mutex
	queue kaiku.AudioBuffer
	limit int
}

func NewInput(ctx *Context) *Input {
	in := &Input{limit: int(ctx.sampleRate / 4)}
	in.setup(ctx, in, true)
	return in
}

// Write queues captured frames for playback.
func (in *Input) Write(frames kaiku.AudioBuffer) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.queue = append(in.queue, frames...)
	if over := len(in.queue) - in.limit; over > 0 {
		in.queue = append(in.queue[:0], in.queue[over:]...)
	}
}

// Reset drops all queued frames.
func (in *Input) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.queue = in.queue[:0]
}

func (in *Input) process(frame int64, buf kaiku.AudioBuffer) {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := copy(buf, in.queue)
	in.queue = append(in.queue[:0], in.queue[n:]...)
}
