package graph

import (
	"math"
	"slices"
)

type (
	// Param is an automatable parameter. Its value follows a timeline of
	// events on the audio clock: instant value changes, linear and
	// exponential ramps and exponential approaches to a target. All methods
	// are safe to call from the control goroutine while the context renders.
	Param struct {
		ctx        *Context
		value      float64
		anchor     float64 // value at anchorTime, where the head event begins
		anchorTime float64
		events     []paramEvent
		vals       []float64
		writes     int
	}

	paramEvent struct {
		kind  eventKind
		time  float64
		start float64 // ramps interpolate from start to time
		value float64
		tc    float64
	}

	eventKind int
)

const (
	eventSet eventKind = iota
	eventLinear
	eventExponential
	eventTarget
)

func newParam(ctx *Context, value float64) *Param {
	return &Param{ctx: ctx, value: value, anchor: value}
}

// Value returns the value of the parameter at the current audio clock.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.valueAt(p.ctx.Now())
}

// Writes returns how many automation calls have been made on the parameter.
func (p *Param) Writes() int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	return p.writes
}

// SetValue sets the value immediately, dropping all scheduled events.
func (p *Param) SetValue(v float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.writes++
	p.events = p.events[:0]
	p.value, p.anchor, p.anchorTime = v, v, p.ctx.Now()
}

func (p *Param) SetValueAtTime(v, t float64) {
	p.schedule(paramEvent{kind: eventSet, time: t, value: v})
}

// LinearRampToValueAtTime ramps linearly from the previous event to v,
// reaching it at time t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.schedule(paramEvent{kind: eventLinear, time: t, value: v})
}

// ExponentialRampToValueAtTime ramps exponentially from the previous event
// to v. If the start and end values do not have the same sign, or either is
// zero, the ramp degrades to a linear one.
func (p *Param) ExponentialRampToValueAtTime(v, t float64) {
	p.schedule(paramEvent{kind: eventExponential, time: t, value: v})
}

// SetTargetAtTime starts approaching v exponentially at time t with the time
// constant tc, until the next event begins.
func (p *Param) SetTargetAtTime(v, t, tc float64) {
	if tc <= 0 {
		p.SetValueAtTime(v, t)
		return
	}
	p.schedule(paramEvent{kind: eventTarget, time: t, value: v, tc: tc})
}

// CancelScheduledValues removes all events at or after t.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.writes++
	p.cancel(t)
}

// CancelAndHoldAtTime removes all events at or after t and holds the value
// the timeline would have had at t. Use this before writing a new value to a
// parameter that may have a ramp in flight.
func (p *Param) CancelAndHoldAtTime(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.writes++
	sim := Param{value: p.value, anchor: p.anchor, anchorTime: p.anchorTime, events: slices.Clone(p.events)}
	held := sim.valueAt(t)
	p.cancel(t)
	p.insert(paramEvent{kind: eventSet, time: t, value: held})
}

func (p *Param) schedule(e paramEvent) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()
	p.writes++
	p.insert(e)
}

func (p *Param) cancel(t float64) {
	p.events = slices.DeleteFunc(p.events, func(e paramEvent) bool { return e.time >= t })
}

func (p *Param) insert(e paramEvent) {
	if len(p.events) == 0 {
		p.anchor, p.anchorTime = p.value, max(p.anchorTime, p.ctx.Now())
	}
	// after all events with time <= e.time, so equal times keep call order
	i := len(p.events)
	for i > 0 && p.events[i-1].time > e.time {
		i--
	}
	p.events = slices.Insert(p.events, i, e)
	for j := range p.events {
		if j == 0 {
			p.events[j].start = p.anchorTime
		} else {
			p.events[j].start = p.events[j-1].time
		}
	}
}

// valueAt advances the timeline to time t and returns the value. t must not
// decrease between calls.
func (p *Param) valueAt(t float64) float64 {
	for len(p.events) > 0 {
		e := p.events[0]
		switch e.kind {
		case eventSet:
			if t < e.time {
				return p.value
			}
			p.value = e.value
		case eventLinear, eventExponential:
			if t < e.time {
				if t >= e.start {
					p.value = ramp(e, p.anchor, t)
				}
				return p.value
			}
			p.value = e.value
		case eventTarget:
			if t < e.time {
				return p.value
			}
			end := math.Inf(1)
			if len(p.events) > 1 {
				next := p.events[1]
				end = next.time
				if next.kind == eventLinear || next.kind == eventExponential {
					end = next.start
				}
			}
			if t < end {
				p.value = e.value + (p.anchor-e.value)*math.Exp(-(t-e.time)/e.tc)
				return p.value
			}
			p.value = e.value + (p.anchor-e.value)*math.Exp(-(end-e.time)/e.tc)
			p.anchor, p.anchorTime = p.value, end
			p.events = p.events[1:]
			continue
		}
		p.anchor, p.anchorTime = p.value, e.time
		p.events = p.events[1:]
	}
	return p.value
}

func ramp(e paramEvent, from, t float64) float64 {
	span := e.time - e.start
	if span <= 0 {
		return e.value
	}
	f := (t - e.start) / span
	if e.kind == eventExponential && from*e.value > 0 {
		return from * math.Pow(e.value/from, f)
	}
	return from + (e.value-from)*f
}

// block returns the per-sample values for a block. Called with the context
// lock held.
func (p *Param) block(frame int64, n int) []float64 {
	if cap(p.vals) < n {
		p.vals = make([]float64, n)
	}
	p.vals = p.vals[:n]
	if len(p.events) == 0 {
		for i := range p.vals {
			p.vals[i] = p.value
		}
		return p.vals
	}
	sr := p.ctx.sampleRate
	for i := range p.vals {
		p.vals[i] = p.valueAt(float64(frame+int64(i)) / sr)
	}
	return p.vals
}

// current returns the value at the start of a block, for kernels that only
// update once per block. Called with the context lock held.
func (p *Param) current(frame int64) float64 {
	return p.valueAt(float64(frame) / p.ctx.sampleRate)
}
