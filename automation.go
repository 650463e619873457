package kaiku

import (
	"math"
	"slices"
)

type (
	// Curve is an automation lane: a list of breakpoints in song time. The
	// breakpoints do not need to be stored in order; every operation on the
	// curve treats them as sorted by time.
	Curve struct {
		Points []Breakpoint `yaml:",flow"`
	}

	// Breakpoint is a value at a song time. Interpolation tells how the curve
	// arrives at this breakpoint from the previous one.
	Breakpoint struct {
		Time          float64
		Value         float64
		Interpolation Interpolation `yaml:",omitempty"`
	}

	Interpolation string
)

const (
	Linear      Interpolation = "" // the zero value, so it can be omitted
	Step        Interpolation = "step"
	Exponential Interpolation = "exponential"
)

// Sorted returns the breakpoints ordered by time. Breakpoints with equal
// times keep their relative order.
func (c Curve) Sorted() []Breakpoint {
	ret := slices.Clone(c.Points)
	slices.SortStableFunc(ret, func(a, b Breakpoint) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return ret
}

func (c Curve) Copy() Curve {
	return Curve{Points: slices.Clone(c.Points)}
}

// ValueAt evaluates the curve at song time t. Before the first breakpoint
// the curve holds the first value, after the last it holds the last value.
// An empty curve evaluates to def.
func (c Curve) ValueAt(t, def float64) float64 {
	points := c.Sorted()
	if len(points) == 0 {
		return def
	}
	if t <= points[0].Time {
		return points[0].Value
	}
	last := points[len(points)-1]
	if t >= last.Time {
		return last.Value
	}
	// first breakpoint strictly after t
	i, _ := slices.BinarySearchFunc(points, t, func(b Breakpoint, t float64) int {
		if b.Time <= t {
			return -1
		}
		return 1
	})
	return Interpolate(points[i-1], points[i], t)
}

// Interpolate returns the value between breakpoints a and b at time t, where
// a.Time <= t < b.Time.
func Interpolate(a, b Breakpoint, t float64) float64 {
	span := b.Time - a.Time
	if span <= 0 {
		return b.Value
	}
	f := (t - a.Time) / span
	switch b.Interpolation {
	case Step:
		return a.Value
	case Exponential:
		if a.Value*b.Value > 0 {
			return a.Value * math.Pow(b.Value/a.Value, f)
		}
	}
	return a.Value + (b.Value-a.Value)*f
}
