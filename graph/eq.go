package graph

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/vsariola/kaiku"
)

const (
	eqLowFreq  = 320
	eqMidFreq  = 1000
	eqHighFreq = 3200
	eqShelfQ   = 0.707
	eqMidQ     = 0.5
	eqEpsilon  = 1e-3 // dB
)

type (
	// EQ3 is a three band equalizer: a low shelf, a peaking band and a high
	// shelf. The band gains are in dB and are read once per block; when they
	// change, the filters are retuned in place and keep their state.
	EQ3 struct {
		node
		Low, Mid, High *Param
		gains          [3]float64
		bank           eqBank
	}

	// eqBank holds one filter chain per channel.
	eqBank [2][3]*biquad.Section
)

func NewEQ3(ctx *Context) *EQ3 {
	e := &EQ3{Low: newParam(ctx, 0), Mid: newParam(ctx, 0), High: newParam(ctx, 0)}
	for c := range e.bank {
		for i := range e.bank[c] {
			e.bank[c][i] = biquad.NewSection(biquad.Coefficients{B0: 1})
		}
	}
	e.setup(ctx, e, false)
	return e
}

func flat(gains [3]float64) bool {
	return math.Abs(gains[0]) < eqEpsilon && math.Abs(gains[1]) < eqEpsilon && math.Abs(gains[2]) < eqEpsilon
}

func (b *eqBank) tune(gains [3]float64, sampleRate float64) {
	coeffs := [3]biquad.Coefficients{
		design.LowShelf(eqLowFreq, gains[0], eqShelfQ, sampleRate),
		design.Peak(eqMidFreq, gains[1], eqMidQ, sampleRate),
		design.HighShelf(eqHighFreq, gains[2], eqShelfQ, sampleRate),
	}
	for i := range coeffs {
		if coeffs[i] == (biquad.Coefficients{}) {
			coeffs[i].B0 = 1 // band above Nyquist
		}
	}
	for c := range b {
		for i, s := range b[c] {
			s.Coefficients = coeffs[i]
		}
	}
}

func (e *EQ3) process(frame int64, buf kaiku.AudioBuffer) {
	gains := [3]float64{e.Low.current(frame), e.Mid.current(frame), e.High.current(frame)}
	changed := false
	for i := range gains {
		if math.Abs(gains[i]-e.gains[i]) >= eqEpsilon {
			changed = true
		}
	}
	if changed {
		if flat(e.gains) {
			// coming out of bypass: start from rest
			for c := range e.bank {
				for _, s := range e.bank[c] {
					s.Reset()
				}
			}
		}
		e.bank.tune(gains, e.ctx.sampleRate)
		e.gains = gains
	}
	if flat(e.gains) {
		return
	}
	for i := range buf {
		for c := 0; c < 2; c++ {
			x := float64(buf[i][c])
			for _, s := range e.bank[c] {
				x = s.ProcessSample(x)
			}
			buf[i][c] = float32(x)
		}
	}
}
