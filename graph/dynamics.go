package graph

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/vsariola/kaiku"
)

// Compressor runs one soft-knee compressor per channel. The parameters are
// read once per block; attack and release are in seconds. It has no makeup
// gain. A bypassed compressor passes its input unchanged.
type Compressor struct {
	node
	Threshold, Knee, Ratio, Attack, Release *Param
	bypass                                   bool
	fx                                       [2]*effects.Compressor
	set                                      kaiku.Compressor
}

func NewCompressor(ctx *Context, c kaiku.Compressor) (*Compressor, error) {
	ret := &Compressor{
		Threshold: newParam(ctx, c.Threshold),
		Knee:      newParam(ctx, c.Knee),
		Ratio:     newParam(ctx, c.Ratio),
		Attack:    newParam(ctx, c.Attack),
		Release:   newParam(ctx, c.Release),
	}
	for i := range ret.fx {
		fx, err := effects.NewCompressor(ctx.sampleRate)
		if err != nil {
			return nil, fmt.Errorf("cannot create compressor: %w", err)
		}
		if err := fx.SetMakeupGain(0); err != nil {
			return nil, fmt.Errorf("compressor makeup gain: %w", err)
		}
		ret.fx[i] = fx
	}
	nan := math.NaN()
	ret.set = kaiku.Compressor{Threshold: nan, Knee: nan, Ratio: nan, Attack: nan, Release: nan}
	ret.configure(clampCompressor(c))
	ret.setup(ctx, ret, false)
	return ret, nil
}

func (c *Compressor) SetBypass(bypass bool) {
	c.ctx.mu.Lock()
	defer c.ctx.mu.Unlock()
	c.bypass = bypass
}

func (c *Compressor) Bypassed() bool {
	c.ctx.mu.Lock()
	defer c.ctx.mu.Unlock()
	return c.bypass
}

// clampCompressor limits settings to what the underlying compressor accepts.
func clampCompressor(c kaiku.Compressor) kaiku.Compressor {
	clamp := func(v, lo, hi float64) float64 {
		if math.IsNaN(v) {
			return lo
		}
		return min(max(v, lo), hi)
	}
	return kaiku.Compressor{
		Threshold: clamp(c.Threshold, -100, 0),
		Knee:      clamp(c.Knee, 0, 24),
		Ratio:     clamp(c.Ratio, 1, 100),
		Attack:    clamp(c.Attack, 1e-4, 1),
		Release:   clamp(c.Release, 1e-3, 5),
	}
}

// configure pushes changed settings to both channels. The settings are
// already clamped, so the setters cannot fail.
func (c *Compressor) configure(s kaiku.Compressor) {
	for _, fx := range c.fx {
		if s.Threshold != c.set.Threshold {
			_ = fx.SetThreshold(s.Threshold)
		}
		if s.Knee != c.set.Knee {
			_ = fx.SetKnee(s.Knee)
		}
		if s.Ratio != c.set.Ratio {
			_ = fx.SetRatio(s.Ratio)
		}
		if s.Attack != c.set.Attack {
			_ = fx.SetAttack(s.Attack * 1000)
		}
		if s.Release != c.set.Release {
			_ = fx.SetRelease(s.Release * 1000)
		}
	}
	c.set = s
}

func (c *Compressor) process(frame int64, buf kaiku.AudioBuffer) {
	if c.bypass {
		c.fx[0].Reset()
		c.fx[1].Reset()
		return
	}
	c.configure(clampCompressor(kaiku.Compressor{
		Threshold: c.Threshold.current(frame),
		Knee:      c.Knee.current(frame),
		Ratio:     c.Ratio.current(frame),
		Attack:    c.Attack.current(frame),
		Release:   c.Release.current(frame),
	}))
	for i := range buf {
		buf[i][0] = float32(c.fx[0].ProcessSample(float64(buf[i][0])))
		buf[i][1] = float32(c.fx[1].ProcessSample(float64(buf[i][1])))
	}
}

// Distortion is a tanh waveshaper. At amount 0 the signal passes unchanged;
// amount 1 drives the shaper hard.
type Distortion struct {
	node
	Amount *Param
}

func NewDistortion(ctx *Context, amount float64) *Distortion {
	d := &Distortion{Amount: newParam(ctx, amount)}
	d.setup(ctx, d, false)
	return d
}

func (d *Distortion) process(frame int64, buf kaiku.AudioBuffer) {
	vals := d.Amount.block(frame, len(buf))
	for i, a := range vals {
		if a <= 1e-6 {
			continue
		}
		drive := 1 + math.Min(a, 1)*20
		norm := math.Tanh(drive)
		buf[i][0] = float32(math.Tanh(drive*float64(buf[i][0])) / norm)
		buf[i][1] = float32(math.Tanh(drive*float64(buf[i][1])) / norm)
	}
}
