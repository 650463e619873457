package engine

import (
	"math"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

type (
	// Lookahead schedules the discrete events of the song slightly ahead of
	// the audio clock. Every stream keeps a cursor to its next due event;
	// each Tick schedules the events falling in [now, now+window) and moves
	// the cursors past them. As long as ticks come more often than the
	// window, nothing is scheduled late, however irregular the ticks are.
	Lookahead struct {
		ctx       *graph.Context
		mixer     *Mixer
		window    float64
		click     float64
		volume    float64
		transport kaiku.Transport
		backing   []kaiku.Backing
		origin    float64

		beat       int   // index of the next metronome beat
		steps      []int // index of the next step of each backing pattern
		automation []*automationStream

		mu      sync.Mutex
		sources map[*graph.Oscillator]*graph.Gain

		// OnEvent, if set, is called for every scheduled event.
		OnEvent func(ScheduledEvent)
	}

	automationStream struct {
		ch    *Channel
		track string
		name  string
		param *graph.Param
		def   float64
		curve kaiku.Curve
		next  int
	}

	// ScheduledEvent describes an event that has been put on the audio clock.
	ScheduledEvent struct {
		Kind     EventKind
		Time     float64 // audio time
		SongTime float64
		Accent   bool   // metronome: first beat of the bar
		Name     string // hit name or automated parameter
		Track    string
		Value    float64
	}

	EventKind int

	hitSound struct {
		tone  float64
		wave  kaiku.Waveform
		decay float64
		level float64
		bend  float64 // start frequency of the pitch-bent low component, 0 if none
	}
)

const (
	ClickEvent EventKind = iota
	HitEvent
	AutomationEvent
)

const (
	clickFrequency  = 1000
	accentFrequency = 1500
)

var hitSounds = map[string]hitSound{
	"kick":  {tone: 55, wave: kaiku.Sine, decay: 0.3, level: 0.9, bend: 160},
	"snare": {tone: 190, wave: kaiku.Triangle, decay: 0.15, level: 0.5},
	"hat":   {tone: 7000, wave: kaiku.Square, decay: 0.04, level: 0.15},
	"tom":   {tone: 110, wave: kaiku.Sine, decay: 0.25, level: 0.7, bend: 220},
	"clap":  {tone: 1100, wave: kaiku.Sawtooth, decay: 0.08, level: 0.3},
	"rim":   {tone: 1700, wave: kaiku.Square, decay: 0.03, level: 0.25},
}

func (k EventKind) String() string {
	switch k {
	case ClickEvent:
		return "click"
	case HitEvent:
		return "hit"
	}
	return "automation"
}

func NewLookahead(ctx *graph.Context, mixer *Mixer, cfg Config) *Lookahead {
	cfg = cfg.withDefaults()
	return &Lookahead{
		ctx:     ctx,
		mixer:   mixer,
		window:  cfg.Lookahead,
		click:   cfg.ClickLength,
		volume:  cfg.MetronomeVolume,
		sources: map[*graph.Oscillator]*graph.Gain{},
	}
}

// SetTransport changes the tempo, time signature, metronome and loop. The
// cursors are not moved; call Reset when playing.
func (l *Lookahead) SetTransport(t kaiku.Transport) {
	l.transport = t
}

// SetBacking replaces the backing patterns. Call Realign when playing.
func (l *Lookahead) SetBacking(b []kaiku.Backing) {
	l.backing = b
	l.steps = make([]int, len(b))
}

// Realign points the metronome and pattern cursors at their first events at
// or after song time from, e.g. after a tempo change.
func (l *Lookahead) Realign(from float64) {
	l.beat = int(math.Ceil(from/l.transport.SecondsPerBeat() - 1e-9))
	l.steps = make([]int, len(l.backing))
	for i, b := range l.backing {
		l.steps[i] = int(math.Ceil(from/stepLength(l.transport, b) - 1e-9))
	}
}

// Reset points every cursor at the first event at or after song time from,
// with from playing at audio time audioNow. Automated parameters jump to the
// value of their curve at from.
func (l *Lookahead) Reset(from, audioNow float64, tracks []kaiku.Track) {
	l.cancelAutomation(audioNow)
	l.origin = audioNow - from
	l.Realign(from)
	for i := range tracks {
		t := &tracks[i]
		ch, ok := l.mixer.Channel(t.ID)
		if !ok {
			continue
		}
		for name, c := range t.Automation {
			if len(c.Points) == 0 {
				continue
			}
			p, def, ok := ch.automationTarget(name, t)
			if !ok {
				continue
			}
			s := &automationStream{ch: ch, track: t.ID, name: name, param: p, def: def, curve: kaiku.Curve{Points: c.Sorted()}}
			for s.next < len(s.curve.Points) && s.curve.Points[s.next].Time <= from {
				s.next++
			}
			ch.automated[p] = true
			p.CancelAndHoldAtTime(audioNow)
			p.SetValueAtTime(s.curve.ValueAt(from, def), audioNow)
			l.automation = append(l.automation, s)
		}
	}
}

func stepLength(t kaiku.Transport, b kaiku.Backing) float64 {
	return t.SecondsPerBeat() / float64(max(b.StepsPerBeat, 1))
}

// Tick schedules everything due in [audioNow, audioNow+window). Events
// already in the past are skipped. While looping, no cursor moves past the
// loop end.
func (l *Lookahead) Tick(audioNow float64) {
	from := audioNow - l.origin
	end := from + l.window
	if l.transport.Loop.Active() {
		end = math.Min(end, l.transport.Loop.End)
	}
	spb := l.transport.SecondsPerBeat()
	for ; ; l.beat++ {
		t := float64(l.beat) * spb
		if t >= end {
			break
		}
		if t >= from && l.transport.Metronome {
			l.scheduleClick(t, l.beat%l.transport.BeatsPerBar() == 0)
		}
	}
	for i, b := range l.backing {
		step := stepLength(l.transport, b)
		for ; ; l.steps[i]++ {
			t := float64(l.steps[i]) * step
			if t >= end {
				break
			}
			if t < from || b.Mute || len(b.Hits) == 0 {
				continue
			}
			l.scheduleHit(b, b.Hits[l.steps[i]%len(b.Hits)], t)
		}
	}
	for _, s := range l.automation {
		for ; s.next < len(s.curve.Points); s.next++ {
			pt := s.curve.Points[s.next]
			if pt.Time >= end {
				break
			}
			if pt.Time < from {
				continue
			}
			l.scheduleBreakpoint(s, pt)
		}
	}
}

func (l *Lookahead) emit(e ScheduledEvent) {
	if l.OnEvent != nil {
		l.OnEvent(e)
	}
}

func (l *Lookahead) scheduleClick(songTime float64, accent bool) {
	when := l.origin + songTime
	freq := clickFrequency
	if accent {
		freq = accentFrequency
	}
	l.blip(kaiku.Sine, float64(freq), 0, l.volume, when, l.click)
	l.emit(ScheduledEvent{Kind: ClickEvent, Time: when, SongTime: songTime, Accent: accent})
}

func (l *Lookahead) scheduleHit(b kaiku.Backing, hit string, songTime float64) {
	s, ok := hitSounds[hit]
	if !ok {
		return
	}
	when := l.origin + songTime
	vol := b.Volume
	if vol <= 0 {
		vol = 1
	}
	l.blip(s.wave, s.tone, 0, s.level*vol, when, s.decay)
	if s.bend > 0 {
		l.blip(kaiku.Sine, s.tone, s.bend, s.level*vol, when, s.decay)
	}
	l.emit(ScheduledEvent{Kind: HitEvent, Time: when, SongTime: songTime, Name: hit, Track: b.Name})
}

// blip plays a short percussive tone into the master bus. If bend is
// positive, the frequency starts there and falls to freq.
func (l *Lookahead) blip(wave kaiku.Waveform, freq, bend, level, when, length float64) {
	osc := graph.NewOscillator(l.ctx, wave, freq)
	if bend > 0 {
		osc.Frequency.SetValueAtTime(bend, when)
		osc.Frequency.ExponentialRampToValueAtTime(freq, when+length*0.5)
	}
	env := graph.NewGain(l.ctx, 0)
	env.Gain.SetValueAtTime(level, when)
	env.Gain.ExponentialRampToValueAtTime(silence, when+length)
	graph.Connect(osc, env)
	graph.Connect(env, l.mixer.Master().Input())
	l.mu.Lock()
	l.sources[osc] = env
	l.mu.Unlock()
	osc.OnEnded(func() {
		graph.Disconnect(osc)
		graph.Disconnect(env)
		l.mu.Lock()
		delete(l.sources, osc)
		l.mu.Unlock()
	})
	osc.Start(when)
	osc.Stop(when + length)
}

func (l *Lookahead) scheduleBreakpoint(s *automationStream, pt kaiku.Breakpoint) {
	when := l.origin + pt.Time
	switch pt.Interpolation {
	case kaiku.Step:
		s.param.SetValueAtTime(pt.Value, when)
	case kaiku.Exponential:
		if prev := s.curve.ValueAt(pt.Time-1e-9, s.def); prev*pt.Value > 0 {
			s.param.ExponentialRampToValueAtTime(pt.Value, when)
			break
		}
		s.param.LinearRampToValueAtTime(pt.Value, when)
	default:
		s.param.LinearRampToValueAtTime(pt.Value, when)
	}
	l.emit(ScheduledEvent{Kind: AutomationEvent, Time: when, SongTime: pt.Time, Name: s.name, Track: s.track, Value: pt.Value})
}

// cancelAutomation removes pending breakpoints and puts the automated
// parameters back to the settings last applied to their channels, which may
// have changed while the automation ran.
func (l *Lookahead) cancelAutomation(audioNow float64) {
	for _, s := range l.automation {
		delete(s.ch.automated, s.param)
		s.param.CancelAndHoldAtTime(audioNow)
		s.param.SetValueAtTime(s.ch.settingOf(s.name, s.def), audioNow)
	}
	l.automation = l.automation[:0]
}

// Stop silences every scheduled click and hit and releases the automated
// parameters.
func (l *Lookahead) Stop() {
	now := l.ctx.Now()
	l.cancelAutomation(now)
	l.mu.Lock()
	defer l.mu.Unlock()
	for osc, env := range l.sources {
		osc.OnEnded(nil)
		osc.Stop(now)
		graph.Disconnect(osc)
		graph.Disconnect(env)
		delete(l.sources, osc)
	}
}

// Pending returns the number of clicks and hits scheduled or sounding.
func (l *Lookahead) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}
