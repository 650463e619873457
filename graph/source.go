package graph

import (
	"math"

	"github.com/vsariola/kaiku"
)

type (
	// Buffer is decoded audio ready for playback.
	Buffer struct {
		SampleRate float64
		Data       kaiku.AudioBuffer
	}

	// lifetime is the start/stop bookkeeping shared by all sources.
	lifetime struct {
		clock      *Context
		started    bool
		ended      bool
		startFrame int64
		stopFrame  int64
		onEnded    func()
	}

	// BufferSource plays a Buffer once, starting at a given offset, and
	// optionally loops over the whole buffer.
	BufferSource struct {
		node
		lifetime
		Buffer       *Buffer
		Loop         bool
		PlaybackRate *Param
		pos          float64 // read position in buffer frames
	}

	// Oscillator is a naive periodic waveform generator.
	Oscillator struct {
		node
		lifetime
		Waveform  kaiku.Waveform
		Frequency *Param
		phase     float64
	}
)

// Duration returns the length of the buffer in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Data)) / b.SampleRate
}

// start schedules the source to begin at audio time when. A source can be
// started only once.
func (l *lifetime) start(when float64) {
	l.clock.mu.Lock()
	defer l.clock.mu.Unlock()
	if l.started {
		return
	}
	l.started = true
	l.startFrame = l.clock.toFrame(when)
	l.stopFrame = math.MaxInt64
}

// Stop schedules the source to end at audio time when. Stopping again moves
// the end earlier, never later.
func (l *lifetime) Stop(when float64) {
	l.clock.mu.Lock()
	defer l.clock.mu.Unlock()
	f := l.clock.toFrame(when)
	if !l.started {
		l.started = true
		l.startFrame, l.stopFrame = f, f
		return
	}
	if f < l.stopFrame {
		l.stopFrame = max(f, l.startFrame)
	}
}

// OnEnded registers f to be called after the source has ended. The callback
// runs on the rendering goroutine, outside the context lock. Passing nil
// removes the callback.
func (l *lifetime) OnEnded(f func()) {
	l.clock.mu.Lock()
	defer l.clock.mu.Unlock()
	l.onEnded = f
}

// Ended reports whether the source has finished playing.
func (l *lifetime) Ended() bool {
	l.clock.mu.Lock()
	defer l.clock.mu.Unlock()
	return l.ended
}

// span returns the part [from, to) of the block starting at frame that the
// source is active in. Ends the source if the block reaches its stop frame.
func (l *lifetime) span(frame int64, n int) (from, to int) {
	if !l.started || l.ended {
		return 0, 0
	}
	end := frame + int64(n)
	if l.stopFrame <= end {
		l.finish()
	}
	lo := max(l.startFrame, frame)
	hi := min(l.stopFrame, end)
	if hi <= lo {
		return 0, 0
	}
	return int(lo - frame), int(hi - frame)
}

func (l *lifetime) finish() {
	if l.ended {
		return
	}
	l.ended = true
	l.clock.queueEnded(l.onEnded)
}

func NewBufferSource(ctx *Context, buffer *Buffer) *BufferSource {
	s := &BufferSource{Buffer: buffer, PlaybackRate: newParam(ctx, 1)}
	s.clock = ctx
	s.setup(ctx, s, true)
	return s
}

// Start begins playback at audio time when, from offset seconds into the
// buffer, for duration seconds of audio time. A duration <= 0 plays until
// the buffer runs out, or forever when looping.
func (s *BufferSource) Start(when, offset, duration float64) {
	s.lifetime.start(when)
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if s.Buffer != nil {
		s.pos = math.Max(offset, 0) * s.Buffer.SampleRate
		if n := float64(len(s.Buffer.Data)); s.Loop && n > 0 && s.pos >= n {
			s.pos = math.Mod(s.pos, n)
		}
	}
	if duration > 0 {
		s.stopFrame = s.startFrame + s.ctx.toFrame(duration)
	}
}

func (s *BufferSource) process(frame int64, buf kaiku.AudioBuffer) {
	from, to := s.span(frame, len(buf))
	if from == to {
		return
	}
	if s.Buffer == nil || len(s.Buffer.Data) == 0 {
		s.finish()
		return
	}
	data := s.Buffer.Data
	n := float64(len(data))
	step := s.Buffer.SampleRate / s.ctx.sampleRate
	rates := s.PlaybackRate.block(frame, len(buf))
	for i := from; i < to; i++ {
		if s.pos >= n {
			if !s.Loop {
				s.finish()
				return
			}
			s.pos = math.Mod(s.pos, n)
		}
		j := int(s.pos)
		f := float32(s.pos - float64(j))
		a := data[j]
		b := a
		if j+1 < len(data) {
			b = data[j+1]
		} else if s.Loop {
			b = data[0]
		}
		buf[i][0] = a[0] + (b[0]-a[0])*f
		buf[i][1] = a[1] + (b[1]-a[1])*f
		s.pos += step * rates[i]
	}
}

func NewOscillator(ctx *Context, waveform kaiku.Waveform, frequency float64) *Oscillator {
	o := &Oscillator{Waveform: waveform, Frequency: newParam(ctx, frequency)}
	o.clock = ctx
	o.setup(ctx, o, true)
	return o
}

// Start begins the oscillator at audio time when. It runs until stopped.
func (o *Oscillator) Start(when float64) {
	o.lifetime.start(when)
}

func (o *Oscillator) process(frame int64, buf kaiku.AudioBuffer) {
	from, to := o.span(frame, len(buf))
	if from == to {
		return
	}
	freqs := o.Frequency.block(frame, len(buf))
	for i := from; i < to; i++ {
		var v float64
		switch o.Waveform {
		case kaiku.Square:
			v = 1
			if o.phase >= 0.5 {
				v = -1
			}
		case kaiku.Sawtooth:
			v = 2*o.phase - 1
		case kaiku.Triangle:
			v = 1 - 4*math.Abs(o.phase-0.5)
		default:
			v = math.Sin(2 * math.Pi * o.phase)
		}
		buf[i][0] = float32(v)
		buf[i][1] = float32(v)
		o.phase += freqs[i] / o.ctx.sampleRate
		o.phase -= math.Floor(o.phase)
	}
}
