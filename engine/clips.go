package engine

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
)

type (
	// ClipScheduler turns clips into scheduled sources on the audio clock.
	ClipScheduler struct {
		ctx     *graph.Context
		cache   *BufferCache
		voices  *VoicePool
		mu      sync.Mutex
		playing map[*scheduledClip]struct{}
	}

	scheduledClip struct {
		track string
		src   *graph.BufferSource
		env   *graph.Gain
	}

	// ClipPlan is where and how an audio clip plays, relative to a playback
	// start.
	ClipPlan struct {
		When     float64 // audio time the source starts
		Offset   float64 // seconds into the source material
		Duration float64 // seconds of audio time to play
		Elapsed  float64 // time into the clip at When
		Rate     float64
		Loop     bool
	}

	scheduledNote struct {
		track           string
		pitch, velocity int
		inst            kaiku.Instrument
		on, off         float64
		out             graph.Node
	}

	// Destinations resolves a track id to the node its sources connect to.
	Destinations func(trackID string) (graph.Node, bool)
)

func NewClipScheduler(ctx *graph.Context, cache *BufferCache, voices *VoicePool) *ClipScheduler {
	return &ClipScheduler{ctx: ctx, cache: cache, voices: voices, playing: map[*scheduledClip]struct{}{}}
}

// PlanClip computes the playback of an audio clip when playback starts at
// song time from, with from mapping to audio time audioNow. A clip already
// running at from starts immediately with its offset advanced by the elapsed
// part. Clips that have ended, or whose remaining duration is not positive,
// are not played.
func PlanClip(c *kaiku.Clip, from, audioNow, sourceLength float64) (ClipPlan, bool) {
	if c.End() <= from || c.Duration <= 0 {
		return ClipPlan{}, false
	}
	p := ClipPlan{Rate: c.PlaybackRate(), Offset: c.Offset, Duration: c.Duration}
	if c.Start >= from {
		p.When = audioNow + c.Start - from
	} else {
		p.Elapsed = from - c.Start
		p.When = audioNow
		p.Offset += p.Elapsed * p.Rate
		p.Duration -= p.Elapsed
	}
	if p.Duration <= 0 {
		return ClipPlan{}, false
	}
	p.Loop = p.Offset+p.Duration*p.Rate > sourceLength
	if p.Loop && sourceLength > 0 {
		p.Offset = math.Mod(p.Offset, sourceLength)
	}
	return p, true
}

// Schedule starts every playable clip relative to song time from, mapped to
// audio time audioNow. If until is positive, nothing plays at or after song
// time until. Muted clips, clips of muted tracks and clips of unsoloed tracks
// while some track is soloed are skipped. Missing assets are skipped and
// returned as errors; the other clips still play.
func (s *ClipScheduler) Schedule(clips []kaiku.Clip, tracks []kaiku.Track, from, audioNow, until float64, dest Destinations) []error {
	solo := kaiku.SoloActive(tracks)
	var errs []error
	var notes []scheduledNote
	for i := range clips {
		c := clips[i]
		c.Sanitize()
		if c.Muted || (until > 0 && c.Start >= until) {
			continue
		}
		t := kaiku.FindTrack(tracks, c.TrackID)
		if t == nil || !t.Audible(solo) {
			continue
		}
		out, ok := dest(c.TrackID)
		if !ok {
			continue
		}
		if len(c.Notes) > 0 {
			notes = appendNotes(notes, &c, t, from, audioNow, until, out)
			continue
		}
		if c.Asset == "" {
			continue
		}
		buf, ok := s.cache.Get(c.Asset)
		if !ok {
			errs = append(errs, fmt.Errorf("clip %v: %w: %v", c.ID, kaiku.ErrMissingAsset, c.Asset))
			continue
		}
		plan, ok := PlanClip(&c, from, audioNow, buf.Duration())
		if !ok {
			continue
		}
		if until > 0 {
			plan.Duration = math.Min(plan.Duration, until-math.Max(c.Start, from))
		}
		s.start(&c, plan, buf, out)
	}
	s.playNotes(notes)
	return errs
}

func (s *ClipScheduler) start(c *kaiku.Clip, p ClipPlan, buf *graph.Buffer, out graph.Node) {
	src := graph.NewBufferSource(s.ctx, buf)
	src.Loop = p.Loop
	src.PlaybackRate.SetValue(p.Rate)
	env := graph.NewGain(s.ctx, 0)
	scheduleEnvelope(env.Gain, c, p)
	sc := &scheduledClip{track: c.TrackID, src: src, env: env}
	s.mu.Lock()
	s.playing[sc] = struct{}{}
	s.mu.Unlock()
	src.OnEnded(func() { s.release(sc) })
	graph.Connect(src, env)
	graph.Connect(env, out)
	src.Start(p.When, p.Offset, p.Duration)
}

// scheduleEnvelope writes the fade envelope of the clip to the gain param as
// linear ramps between the envelope's knees, starting from the gain at the
// elapsed time. A clip starting inside its fade-out begins at the
// partially faded gain, not at full gain.
func scheduleEnvelope(p *graph.Param, c *kaiku.Clip, plan ClipPlan) {
	gain := c.GainOrDefault()
	p.SetValueAtTime(gain*c.FadeGain(plan.Elapsed), plan.When)
	for _, k := range c.FadeKnees(plan.Elapsed) {
		p.LinearRampToValueAtTime(gain*c.FadeGain(k), plan.When+k-plan.Elapsed)
	}
}

func appendNotes(notes []scheduledNote, c *kaiku.Clip, t *kaiku.Track, from, audioNow, until float64, out graph.Node) []scheduledNote {
	inst := kaiku.DefaultInstrument
	if t.Instrument != nil {
		inst = *t.Instrument
	}
	for _, n := range c.Notes {
		start := c.Start + n.Start
		end := math.Min(start+n.Duration, c.End())
		if until > 0 {
			end = math.Min(end, until)
		}
		if end <= from || end <= start {
			continue
		}
		start = math.Max(start, from)
		notes = append(notes, scheduledNote{
			track:    c.TrackID,
			pitch:    n.Pitch,
			velocity: n.Velocity,
			inst:     inst,
			on:       audioNow + start - from,
			off:      audioNow + end - from,
			out:      out,
		})
	}
	return notes
}

// playNotes hands the notes to the voice pool in order of their start. A
// note replaces the sounding voice of its pitch, so a later note must never
// reach the pool before an earlier one.
func (s *ClipScheduler) playNotes(notes []scheduledNote) {
	slices.SortStableFunc(notes, func(a, b scheduledNote) int {
		return cmp.Compare(a.on, b.on)
	})
	for _, n := range notes {
		s.voices.NoteOn(n.track, n.pitch, n.velocity, n.inst, n.on, n.out)
		s.voices.NoteOff(n.track, n.pitch, n.off)
	}
}

func (s *ClipScheduler) release(sc *scheduledClip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playing[sc]; !ok {
		return
	}
	graph.Disconnect(sc.src)
	graph.Disconnect(sc.env)
	delete(s.playing, sc)
}

// Stop stops every scheduled clip immediately.
func (s *ClipScheduler) Stop() {
	s.stop(func(*scheduledClip) bool { return true })
}

// StopTrack stops the scheduled clips of one track.
func (s *ClipScheduler) StopTrack(track string) {
	s.stop(func(sc *scheduledClip) bool { return sc.track == track })
}

func (s *ClipScheduler) stop(match func(*scheduledClip) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.ctx.Now()
	for sc := range s.playing {
		if !match(sc) {
			continue
		}
		sc.src.OnEnded(nil)
		sc.src.Stop(now)
		graph.Disconnect(sc.src)
		graph.Disconnect(sc.env)
		delete(s.playing, sc)
	}
}

// Playing returns the number of clips scheduled or sounding.
func (s *ClipScheduler) Playing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playing)
}
