package graph

import (
	"math"

	"github.com/vsariola/kaiku"
)

// Gain multiplies its input by an automatable gain.
type Gain struct {
	node
	Gain *Param
}

func NewGain(ctx *Context, gain float64) *Gain {
	g := &Gain{Gain: newParam(ctx, gain)}
	g.setup(ctx, g, false)
	return g
}

func (g *Gain) process(frame int64, buf kaiku.AudioBuffer) {
	vals := g.Gain.block(frame, len(buf))
	for i, v := range vals {
		buf[i][0] *= float32(v)
		buf[i][1] *= float32(v)
	}
}

// StereoPanner places a stereo signal with an equal-power law. At pan 0 the
// signal passes unchanged; at -1 both channels end up on the left.
type StereoPanner struct {
	node
	Pan *Param
}

func NewStereoPanner(ctx *Context, pan float64) *StereoPanner {
	p := &StereoPanner{Pan: newParam(ctx, pan)}
	p.setup(ctx, p, false)
	return p
}

func (p *StereoPanner) process(frame int64, buf kaiku.AudioBuffer) {
	vals := p.Pan.block(frame, len(buf))
	for i, pan := range vals {
		pan = math.Max(-1, math.Min(1, pan))
		l, r := buf[i][0], buf[i][1]
		if pan <= 0 {
			x := (pan + 1) * math.Pi / 2
			buf[i][0] = l + r*float32(math.Cos(x))
			buf[i][1] = r * float32(math.Sin(x))
		} else {
			x := pan * math.Pi / 2
			buf[i][0] = l * float32(math.Cos(x))
			buf[i][1] = r + l*float32(math.Sin(x))
		}
	}
}
