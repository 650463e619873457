package kaiku_test

import (
	"math"
	"testing"

	"github.com/vsariola/kaiku"
)

func TestCurveValueAt(t *testing.T) {
	curve := kaiku.Curve{Points: []kaiku.Breakpoint{
		{Time: 4, Value: 0.25, Interpolation: kaiku.Step},
		{Time: 0, Value: 0},
		{Time: 2, Value: 1},
		{Time: 6, Value: 1, Interpolation: kaiku.Exponential},
	}}
	cases := []struct {
		name string
		t    float64
		want float64
	}{
		{"before first", -1, 0},
		{"at first", 0, 0},
		{"linear middle", 1, 0.5},
		{"at breakpoint", 2, 1},
		{"step holds previous", 3.9, 1},
		{"step lands", 4, 0.25},
		{"exponential middle", 5, 0.5},
		{"after last", 10, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := curve.ValueAt(c.t, -1); math.Abs(got-c.want) > 1e-9 {
				t.Fatalf("ValueAt(%v) = %v, want %v", c.t, got, c.want)
			}
		})
	}
}

func TestCurveEmptyUsesDefault(t *testing.T) {
	if got := (kaiku.Curve{}).ValueAt(3, 0.75); got != 0.75 {
		t.Fatalf("empty curve ValueAt = %v, want 0.75", got)
	}
}

func TestExponentialFallsBackToLinear(t *testing.T) {
	a := kaiku.Breakpoint{Time: 0, Value: 0}
	b := kaiku.Breakpoint{Time: 1, Value: 1, Interpolation: kaiku.Exponential}
	if got := kaiku.Interpolate(a, b, 0.5); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("Interpolate from zero = %v, want linear 0.5", got)
	}
}
