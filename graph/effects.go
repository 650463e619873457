package graph

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/buffer"
	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/vsariola/kaiku"
)

// Delay is a stereo feedback delay producing only the delayed signal. The
// feedback path is darkened by a lowpass so repeats soften. Time and
// feedback are read once per block.
type Delay struct {
	node
	Time     *Param // seconds
	Feedback *Param
	line     [2]*buffer.Buffer
	damp     [2]*biquad.Section
	pos      int
}

// MaxDelayTime is the longest delay a Delay node can produce.
const MaxDelayTime = 2.0

const delayDampFreq = 5000

func NewDelay(ctx *Context, time, feedback float64) *Delay {
	d := &Delay{Time: newParam(ctx, time), Feedback: newParam(ctx, feedback)}
	n := int(MaxDelayTime*ctx.sampleRate) + 1
	for c := range d.line {
		d.line[c] = buffer.New(n)
		d.damp[c] = biquad.NewSection(design.Lowpass(min(delayDampFreq, ctx.sampleRate*0.45), 0.707, ctx.sampleRate))
	}
	d.setup(ctx, d, false)
	return d
}

func (d *Delay) process(frame int64, buf kaiku.AudioBuffer) {
	l, r := d.line[0].Samples(), d.line[1].Samples()
	n := len(l)
	delay := int(d.Time.current(frame) * d.ctx.sampleRate)
	delay = max(1, min(delay, n-1))
	fb := min(max(d.Feedback.current(frame), 0), 0.95)
	for i := range buf {
		j := d.pos - delay
		if j < 0 {
			j += n
		}
		outL, outR := l[j], r[j]
		l[d.pos] = float64(buf[i][0]) + d.damp[0].ProcessSample(outL)*fb
		r[d.pos] = float64(buf[i][1]) + d.damp[1].ProcessSample(outR)*fb
		buf[i] = [2]float32{float32(outL), float32(outR)}
		d.pos++
		if d.pos == n {
			d.pos = 0
		}
	}
}

// Chorus wraps one mono chorus per channel.
type Chorus struct {
	node
	fx [2]*effects.Chorus
}

// ChorusSettings are the parameters of a Chorus. They are fixed at creation.
type ChorusSettings struct {
	Mix, Depth, SpeedHz float64
	Stages              int
}

var DefaultChorus = ChorusSettings{Mix: 1, Depth: 0.003, SpeedHz: 0.35, Stages: 3}

func NewChorus(ctx *Context, s ChorusSettings) (*Chorus, error) {
	c := &Chorus{}
	for i := range c.fx {
		fx, err := effects.NewChorus()
		if err != nil {
			return nil, fmt.Errorf("cannot create chorus: %w", err)
		}
		if err := fx.SetSampleRate(ctx.sampleRate); err != nil {
			return nil, fmt.Errorf("chorus sample rate: %w", err)
		}
		if err := fx.SetMix(s.Mix); err != nil {
			return nil, fmt.Errorf("chorus mix: %w", err)
		}
		if err := fx.SetDepth(s.Depth); err != nil {
			return nil, fmt.Errorf("chorus depth: %w", err)
		}
		// detune the right channel slightly to widen the image
		if err := fx.SetSpeedHz(s.SpeedHz * (1 + 0.1*float64(i))); err != nil {
			return nil, fmt.Errorf("chorus speed: %w", err)
		}
		if err := fx.SetStages(s.Stages); err != nil {
			return nil, fmt.Errorf("chorus stages: %w", err)
		}
		c.fx[i] = fx
	}
	c.setup(ctx, c, false)
	return c, nil
}

func (c *Chorus) process(frame int64, buf kaiku.AudioBuffer) {
	for i := range buf {
		buf[i][0] = float32(c.fx[0].ProcessSample(float64(buf[i][0])))
		buf[i][1] = float32(c.fx[1].ProcessSample(float64(buf[i][1])))
	}
}

// Reverb wraps one mono reverb per channel, fully wet.
type Reverb struct {
	node
	fx [2]*effects.Reverb
}

type ReverbSettings struct {
	RoomSize, Damp, Gain float64
}

var DefaultReverb = ReverbSettings{RoomSize: 0.8, Damp: 0.4, Gain: 0.015}

func NewReverb(ctx *Context, s ReverbSettings) *Reverb {
	r := &Reverb{}
	for i := range r.fx {
		fx := effects.NewReverb()
		fx.SetWet(1)
		fx.SetDry(0)
		fx.SetRoomSize(s.RoomSize - 0.02*float64(i))
		fx.SetDamp(s.Damp)
		fx.SetGain(s.Gain)
		r.fx[i] = fx
	}
	r.setup(ctx, r, false)
	return r
}

func (r *Reverb) process(frame int64, buf kaiku.AudioBuffer) {
	for i := range buf {
		buf[i][0] = float32(r.fx[0].ProcessSample(float64(buf[i][0])))
		buf[i][1] = float32(r.fx[1].ProcessSample(float64(buf[i][1])))
	}
}
