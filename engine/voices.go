package engine

import (
	"math"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

type (
	// VoicePool plays synth notes. There is at most one active voice per
	// (track, pitch); triggering a pitch that is already sounding retires the
	// old voice when the new one starts. Voices are disposed after their
	// release has finished, or immediately by StopAll.
	VoicePool struct {
		ctx    *graph.Context
		margin float64
		mu     sync.Mutex
		active map[voiceKey]*Voice
		all    map[*Voice]struct{}
	}

	voiceKey struct {
		track string
		pitch int
	}

	Voice struct {
		pool     *VoicePool
		key      voiceKey
		osc      *graph.Oscillator
		env      *graph.Gain
		inst     kaiku.Instrument
		start    float64
		decayEnd float64
		release  float64 // audio time the release begins
		peak     float64
		state    VoiceState
	}

	VoiceState int
)

const (
	Attacking VoiceState = iota
	Sustaining
	Releasing
	Disposed
)

// near-zero target of exponential ramps, which cannot reach 0
const silence = 1e-4

// retireTime is how long a retired voice takes to fade out.
const retireTime = 0.005

func (s VoiceState) String() string {
	switch s {
	case Attacking:
		return "attacking"
	case Sustaining:
		return "sustaining"
	case Releasing:
		return "releasing"
	}
	return "disposed"
}

func NewVoicePool(ctx *graph.Context, releaseMargin float64) *VoicePool {
	return &VoicePool{
		ctx:    ctx,
		margin: releaseMargin,
		active: map[voiceKey]*Voice{},
		all:    map[*Voice]struct{}{},
	}
}

// PeakGain maps a MIDI velocity to the envelope peak.
func PeakGain(velocity int) float64 {
	v := math.Max(0, math.Min(127, float64(velocity)))
	return math.Pow(v/127, 1.5)
}

// NoteFrequency converts a MIDI note number to Hz.
func NoteFrequency(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}

// NoteOn starts a voice at audio time when, routed into dest.
func (p *VoicePool) NoteOn(track string, pitch, velocity int, inst kaiku.Instrument, when float64, dest graph.Node) *Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	when = math.Max(when, p.ctx.Now())
	key := voiceKey{track, pitch}
	if old, ok := p.active[key]; ok {
		p.retire(old, when)
	}
	attack, decay := math.Max(inst.Attack, 0.001), math.Max(inst.Decay, 0.001)
	v := &Voice{
		pool:     p,
		key:      key,
		osc:      graph.NewOscillator(p.ctx, inst.Waveform, NoteFrequency(pitch)),
		env:      graph.NewGain(p.ctx, 0),
		inst:     inst,
		start:    when,
		decayEnd: when + attack + decay,
		peak:     PeakGain(velocity),
		state:    Attacking,
	}
	sustain := math.Max(math.Min(inst.Sustain, 1), 0) * v.peak
	v.env.Gain.SetValueAtTime(0, when)
	v.env.Gain.LinearRampToValueAtTime(v.peak, when+attack)
	v.env.Gain.ExponentialRampToValueAtTime(math.Max(sustain, silence), v.decayEnd)
	graph.Connect(v.osc, v.env)
	graph.Connect(v.env, dest)
	v.osc.OnEnded(func() { p.ended(v) })
	v.osc.Start(when)
	p.active[key] = v
	p.all[v] = struct{}{}
	return v
}

// NoteOff releases the active voice of (track, pitch) at audio time when.
// Releasing a pitch that is not sounding does nothing.
func (p *VoicePool) NoteOff(track string, pitch int, when float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.active[voiceKey{track, pitch}]
	if !ok || v.state == Releasing {
		return
	}
	when = math.Max(math.Max(when, v.start), p.ctx.Now())
	release := math.Max(v.inst.Release, 0.001)
	v.env.Gain.CancelAndHoldAtTime(when)
	v.env.Gain.ExponentialRampToValueAtTime(silence, when+release)
	v.osc.Stop(when + release + p.margin)
	v.state = Releasing
	v.release = when
}

// retire fades out a voice that is being replaced, ending it at when.
func (p *VoicePool) retire(v *Voice, when float64) {
	fade := math.Max(when-retireTime, math.Max(v.start, p.ctx.Now()))
	v.env.Gain.CancelAndHoldAtTime(fade)
	v.env.Gain.LinearRampToValueAtTime(0, when)
	v.osc.Stop(when)
	v.state = Disposed
	delete(p.active, v.key)
}

// ended runs on the rendering goroutine once the oscillator has stopped.
func (p *VoicePool) ended(v *Voice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispose(v)
}

func (p *VoicePool) dispose(v *Voice) {
	if _, ok := p.all[v]; !ok {
		return
	}
	graph.Disconnect(v.osc)
	graph.Disconnect(v.env)
	v.state = Disposed
	if p.active[v.key] == v {
		delete(p.active, v.key)
	}
	delete(p.all, v)
}

// StopAll silences and disposes every voice immediately. No callback of a
// disposed voice fires afterwards.
func (p *VoicePool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for v := range p.all {
		p.kill(v)
	}
}

// StopTrack disposes every voice of one track immediately.
func (p *VoicePool) StopTrack(track string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for v := range p.all {
		if v.key.track == track {
			p.kill(v)
		}
	}
}

func (p *VoicePool) kill(v *Voice) {
	v.osc.OnEnded(nil)
	v.osc.Stop(p.ctx.Now())
	v.env.Gain.CancelScheduledValues(0)
	p.dispose(v)
}

// Active returns the number of voices that have not been disposed, including
// voices that are releasing or being retired.
func (p *VoicePool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Voice returns the active voice for (track, pitch), if any.
func (p *VoicePool) Voice(track string, pitch int) (*Voice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.active[voiceKey{track, pitch}]
	return v, ok
}

// State returns the envelope stage of the voice at audio time now. A
// release scheduled for later does not show before it begins.
func (v *Voice) State(now float64) VoiceState {
	v.pool.mu.Lock()
	defer v.pool.mu.Unlock()
	switch {
	case v.state == Releasing && now >= v.release, v.state == Disposed:
		return v.state
	case now >= v.decayEnd:
		return Sustaining
	}
	return Attacking
}

// Peak is the envelope peak derived from the velocity.
func (v *Voice) Peak() float64 {
	return v.peak
}
