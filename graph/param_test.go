package graph

import (
	"math"
	"testing"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLinearRamp(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 1)
	for _, c := range []struct{ t, want float64 }{{0, 0}, {0.25, 0.25}, {0.5, 0.5}, {1, 1}, {2, 1}} {
		if got := p.valueAt(c.t); !near(got, c.want) {
			t.Fatalf("valueAt(%v) = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestExponentialRamp(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetValueAtTime(1, 0)
	p.ExponentialRampToValueAtTime(0.01, 1)
	if got := p.valueAt(0.5); !near(got, 0.1) {
		t.Fatalf("valueAt(0.5) = %v, want 0.1", got)
	}
}

func TestSetTarget(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetTargetAtTime(1, 0, 0.1)
	if got, want := p.valueAt(0.1), 1-math.Exp(-1); !near(got, want) {
		t.Fatalf("valueAt(0.1) = %v, want %v", got, want)
	}
	if got := p.valueAt(5); math.Abs(got-1) > 1e-6 {
		t.Fatalf("target not reached: %v", got)
	}
}

func TestCancelAndHold(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetValueAtTime(0, 0)
	p.LinearRampToValueAtTime(1, 1)
	p.valueAt(0.5)
	p.CancelAndHoldAtTime(0.5)
	if got := p.valueAt(0.75); !near(got, 0.5) {
		t.Fatalf("held value %v, want 0.5", got)
	}
	// a new ramp continues from the held value
	p.LinearRampToValueAtTime(0, 1.5)
	if got := p.valueAt(1); !near(got, 0.25) {
		t.Fatalf("valueAt(1) = %v, want 0.25", got)
	}
}

func TestTargetEndsAtNextSet(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetTargetAtTime(1, 0, 0.1)
	p.valueAt(0.05)
	p.CancelAndHoldAtTime(0.2)
	held := 1 - math.Exp(-2)
	if got, want := p.valueAt(0.1), 1-math.Exp(-1); !near(got, want) {
		t.Fatalf("target interrupted early: %v, want %v", got, want)
	}
	if got := p.valueAt(0.3); !near(got, held) {
		t.Fatalf("valueAt(0.3) = %v, want %v", got, held)
	}
}

func TestWritesAreCounted(t *testing.T) {
	ctx := NewContext(1000)
	p := newParam(ctx, 0)
	p.SetValue(1)
	p.SetTargetAtTime(2, 0, 0.01)
	p.CancelScheduledValues(0)
	if p.Writes() != 3 {
		t.Fatalf("Writes = %v, want 3", p.Writes())
	}
}
