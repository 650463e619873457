package engine

import (
	"fmt"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

type (
	// Mixer builds and owns the per-track channel strips, the shared effect
	// buses and the master bus. Settings are applied with dirty-checking:
	// only the fields that differ from the last applied snapshot issue
	// parameter writes.
	Mixer struct {
		ctx       *graph.Context
		smoothing float64
		fixed     bool
		channels  map[string]*Channel
		buses     map[kaiku.SendBus]*EffectBus
		master    *MasterBus
	}

	// Channel is the node chain of one track:
	//
	//	input -> eq -> compressor -> distortion -> fader -> automation -> panner -> meter -> master
	//
	// Pre-fader sends tap after the distortion, post-fader sends after the
	// panner.
	Channel struct {
		ID         string
		input      *graph.Gain
		eq         *graph.EQ3
		comp       *graph.Compressor
		dist       *graph.Distortion
		fader      *graph.Gain
		automation *graph.Gain
		pan        *graph.StereoPanner
		meter      *graph.Meter
		sends      map[kaiku.SendBus]*channelSend
		applied    *kaiku.Track
		gain       float64 // last applied effective gain
		// automated params are driven by an automation curve; Apply
		// records their new settings but leaves the params alone
		automated map[*graph.Param]bool
	}

	channelSend struct {
		gain     *graph.Gain
		preFader bool
	}

	// EffectBus is a shared effect fed by the channel sends.
	EffectBus struct {
		input   *graph.Gain
		effect  graph.Node
		ret     *graph.Gain
		applied *float64
	}

	MasterBus struct {
		input   *graph.Gain
		eq      *graph.EQ3
		comp    *graph.Compressor
		volume  *graph.Gain
		meter   *graph.Meter
		applied *kaiku.MasterChain
	}
)

const (
	delayTime     = 0.3
	delayFeedback = 0.35
)

// NewMixer creates the master bus and the effect buses in ctx. A fixed mixer
// writes every setting immediately instead of smoothing it, as used for
// offline rendering.
func NewMixer(ctx *graph.Context, smoothing float64, fixed bool) (*Mixer, error) {
	m := &Mixer{
		ctx:       ctx,
		smoothing: smoothing,
		fixed:     fixed,
		channels:  map[string]*Channel{},
		buses:     map[kaiku.SendBus]*EffectBus{},
	}
	comp, err := graph.NewCompressor(ctx, kaiku.DefaultCompressor)
	if err != nil {
		return nil, fmt.Errorf("cannot create master compressor: %w", err)
	}
	m.master = &MasterBus{
		input:  graph.NewGain(ctx, 1),
		eq:     graph.NewEQ3(ctx),
		comp:   comp,
		volume: graph.NewGain(ctx, 1),
		meter:  graph.NewMeter(ctx),
	}
	m.master.comp.SetBypass(true)
	chain(m.master.input, m.master.eq, m.master.comp, m.master.volume, m.master.meter, ctx.Destination())
	for _, bus := range kaiku.SendBuses {
		var effect graph.Node
		switch bus {
		case kaiku.ReverbBus:
			effect = graph.NewReverb(ctx, graph.DefaultReverb)
		case kaiku.DelayBus:
			effect = graph.NewDelay(ctx, delayTime, delayFeedback)
		case kaiku.ChorusBus:
			c, err := graph.NewChorus(ctx, graph.DefaultChorus)
			if err != nil {
				return nil, fmt.Errorf("cannot create %v bus: %w", bus, err)
			}
			effect = c
		}
		b := &EffectBus{input: graph.NewGain(ctx, 1), effect: effect, ret: graph.NewGain(ctx, 0)}
		chain(b.input, b.effect, b.ret, m.master.input)
		m.buses[bus] = b
	}
	return m, nil
}

func chain(nodes ...graph.Node) {
	for i := 1; i < len(nodes); i++ {
		graph.Connect(nodes[i-1], nodes[i])
	}
}

// write sets a parameter, smoothing the change unless the mixer is fixed or
// immediate is requested. Any ramp still in flight is cancelled first.
func (m *Mixer) write(p *graph.Param, v, when float64, immediate bool) {
	if m.fixed || immediate {
		p.SetValue(v)
		return
	}
	p.CancelAndHoldAtTime(when)
	p.SetTargetAtTime(v, when, m.smoothing)
}

// EffectiveGain is the gain a track is heard at: 0 when muted, or when some
// track is soloed and this one is not; otherwise its volume.
func EffectiveGain(t *kaiku.Track, soloActive bool) float64 {
	if !t.Audible(soloActive) {
		return 0
	}
	return t.Volume
}

// Channel returns the channel of a track, if it exists.
func (m *Mixer) Channel(id string) (*Channel, bool) {
	ch, ok := m.channels[id]
	return ch, ok
}

// Channels returns the number of live channels.
func (m *Mixer) Channels() int {
	return len(m.channels)
}

func (m *Mixer) Master() *MasterBus {
	return m.master
}

// GetOrCreate returns the channel of a track, building and connecting it
// first if needed.
func (m *Mixer) GetOrCreate(id string) *Channel {
	if ch, ok := m.channels[id]; ok {
		return ch
	}
	comp, err := graph.NewCompressor(m.ctx, kaiku.DefaultCompressor)
	if err != nil {
		// the master compressor was built on the same context
		panic(err)
	}
	ch := &Channel{
		ID:         id,
		input:      graph.NewGain(m.ctx, 1),
		eq:         graph.NewEQ3(m.ctx),
		comp:       comp,
		dist:       graph.NewDistortion(m.ctx, 0),
		fader:      graph.NewGain(m.ctx, 1),
		automation: graph.NewGain(m.ctx, 1),
		pan:        graph.NewStereoPanner(m.ctx, 0),
		meter:      graph.NewMeter(m.ctx),
		sends:      map[kaiku.SendBus]*channelSend{},
		gain:       1,
		automated:  map[*graph.Param]bool{},
	}
	ch.comp.SetBypass(true)
	chain(ch.input, ch.eq, ch.comp, ch.dist, ch.fader, ch.automation, ch.pan, ch.meter, m.master.input)
	for bus, b := range m.buses {
		s := &channelSend{gain: graph.NewGain(m.ctx, 0)}
		graph.Connect(ch.pan, s.gain)
		graph.Connect(s.gain, b.input)
		ch.sends[bus] = s
	}
	m.channels[id] = ch
	return ch
}

func (ch *Channel) tap(preFader bool) graph.Node {
	if preFader {
		return ch.dist
	}
	return ch.pan
}

// Input is the node sources of the track connect to.
func (ch *Channel) Input() graph.Node {
	return ch.input
}

// Level is the post-fader meter level of the channel, 0 .. 1.
func (ch *Channel) Level() float64 {
	return ch.meter.Level()
}

// Apply brings the channel in line with the track settings. Only the fields
// that differ from the previously applied settings are written; applying an
// identical snapshot writes nothing. The first apply on a fresh channel
// writes everything without smoothing.
func (m *Mixer) Apply(ch *Channel, t *kaiku.Track, when float64, soloActive bool) {
	prev := ch.applied
	fresh := prev == nil
	if fresh {
		prev = &kaiku.Track{}
	}
	write := func(p *graph.Param, old, v float64) {
		if (fresh || old != v) && !ch.automated[p] {
			m.write(p, v, when, fresh)
		}
	}
	gain := EffectiveGain(t, soloActive)
	write(ch.fader.Gain, ch.gain, gain)
	ch.gain = gain
	write(ch.pan.Pan, prev.Pan, t.Pan)
	write(ch.eq.Low, prev.EQ.Low, t.EQ.Low)
	write(ch.eq.Mid, prev.EQ.Mid, t.EQ.Mid)
	write(ch.eq.High, prev.EQ.High, t.EQ.High)
	m.applyCompressor(ch.comp, prev.Compressor, t.Compressor, when, fresh)
	write(ch.dist.Amount, prev.Distortion, t.Distortion)
	for bus, s := range ch.sends {
		old, cur := prev.Sends[bus], t.Sends[bus]
		write(s.gain.Gain, old.Level, cur.Level)
		if cur.PreFader != s.preFader {
			graph.DisconnectFrom(ch.tap(s.preFader), s.gain)
			graph.Connect(ch.tap(cur.PreFader), s.gain)
			s.preFader = cur.PreFader
		}
	}
	c := t.Copy()
	ch.applied = &c
}

func (m *Mixer) applyCompressor(comp *graph.Compressor, prev, cur *kaiku.Compressor, when float64, fresh bool) {
	if fresh || (prev == nil) != (cur == nil) {
		comp.SetBypass(cur == nil)
	}
	if cur == nil {
		return
	}
	changed := fresh || prev == nil
	var old kaiku.Compressor
	if prev != nil {
		old = *prev
	}
	write := func(p *graph.Param, o, v float64) {
		if changed || o != v {
			m.write(p, v, when, fresh)
		}
	}
	write(comp.Threshold, old.Threshold, cur.Threshold)
	write(comp.Knee, old.Knee, cur.Knee)
	write(comp.Ratio, old.Ratio, cur.Ratio)
	write(comp.Attack, old.Attack, cur.Attack)
	write(comp.Release, old.Release, cur.Release)
}

// Dispose disconnects and forgets the channel of a track.
func (m *Mixer) Dispose(id string) {
	ch, ok := m.channels[id]
	if !ok {
		return
	}
	for _, n := range []graph.Node{ch.input, ch.eq, ch.comp, ch.dist, ch.fader, ch.automation, ch.pan, ch.meter} {
		graph.Disconnect(n)
	}
	for _, s := range ch.sends {
		graph.DisconnectFrom(ch.tap(s.preFader), s.gain)
		graph.Disconnect(s.gain)
	}
	delete(m.channels, id)
}

// Reconcile creates, updates and disposes channels so that there is exactly
// one channel per track, with the track's settings applied. It returns the
// ids of the disposed channels.
func (m *Mixer) Reconcile(tracks []kaiku.Track, when float64) []string {
	solo := kaiku.SoloActive(tracks)
	seen := make(map[string]bool, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		seen[t.ID] = true
		m.Apply(m.GetOrCreate(t.ID), t, when, solo)
	}
	var disposed []string
	for id := range m.channels {
		if !seen[id] {
			disposed = append(disposed, id)
		}
	}
	for _, id := range disposed {
		m.Dispose(id)
	}
	return disposed
}

// SyncMaster applies the master chain settings, dirty-checked like Apply.
func (m *Mixer) SyncMaster(c kaiku.MasterChain, when float64) {
	b := m.master
	prev := b.applied
	fresh := prev == nil
	if fresh {
		prev = &kaiku.MasterChain{}
	}
	write := func(p *graph.Param, old, v float64) {
		if fresh || old != v {
			m.write(p, v, when, fresh)
		}
	}
	write(b.volume.Gain, prev.Volume, c.Volume)
	write(b.eq.Low, prev.EQ.Low, c.EQ.Low)
	write(b.eq.Mid, prev.EQ.Mid, c.EQ.Mid)
	write(b.eq.High, prev.EQ.High, c.EQ.High)
	m.applyCompressor(b.comp, prev.Compressor, c.Compressor, when, fresh)
	applied := c
	if c.Compressor != nil {
		comp := *c.Compressor
		applied.Compressor = &comp
	}
	b.applied = &applied
}

// SyncSends sets the return levels of the effect buses.
func (m *Mixer) SyncSends(levels kaiku.SendLevels, when float64) {
	for bus, b := range m.buses {
		var v float64
		switch bus {
		case kaiku.ReverbBus:
			v = levels.Reverb
		case kaiku.DelayBus:
			v = levels.Delay
		case kaiku.ChorusBus:
			v = levels.Chorus
		}
		if b.applied != nil && *b.applied == v {
			continue
		}
		m.write(b.ret.Gain, v, when, b.applied == nil)
		b.applied = &v
	}
}

// Input is where the channels and buses mix into.
func (b *MasterBus) Input() graph.Node {
	return b.input
}

func (b *MasterBus) Level() float64 {
	return b.meter.Level()
}

// settingOf returns the applied setting of an automated parameter, falling
// back to def if nothing has been applied.
func (ch *Channel) settingOf(name string, def float64) float64 {
	if ch.applied == nil {
		return def
	}
	if _, v, ok := ch.automationTarget(name, ch.applied); ok {
		return v
	}
	return def
}

// automationTarget returns the parameter an automation curve with the given
// name drives, and the value to use while the curve is empty.
func (ch *Channel) automationTarget(name string, t *kaiku.Track) (*graph.Param, float64, bool) {
	switch name {
	case "volume":
		return ch.automation.Gain, 1, true
	case "pan":
		return ch.pan.Pan, t.Pan, true
	case "eq.low":
		return ch.eq.Low, t.EQ.Low, true
	case "eq.mid":
		return ch.eq.Mid, t.EQ.Mid, true
	case "eq.high":
		return ch.eq.High, t.EQ.High, true
	case "distortion":
		return ch.dist.Amount, t.Distortion, true
	}
	for _, bus := range kaiku.SendBuses {
		if name == "send."+string(bus) {
			return ch.sends[bus].gain.Gain, t.Sends[bus].Level, true
		}
	}
	return nil, 0, false
}
