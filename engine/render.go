package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
	"golang.org/x/sync/errgroup"
)

// Renderer bounces projects offline. Each render builds its own context,
// mixer and schedulers, with the same topology as live playback but with
// every setting written as a fixed value.
type Renderer struct {
	cache *BufferCache
	cfg   Config
	// Warn, if set, receives the problems that did not stop the render,
	// such as clips with missing assets.
	Warn func(error)
}

// renderChunk is how many seconds are rendered between cancellation checks.
const renderChunk = 1

func NewRenderer(cache *BufferCache, cfg Config) *Renderer {
	return &Renderer{cache: cache, cfg: cfg.withDefaults()}
}

// Length is the rendered length of a project in seconds: the end of the last
// clip plus the tail.
func (r *Renderer) Length(p *kaiku.Project) float64 {
	return p.Length() + r.cfg.Tail
}

// Render bounces the whole project to a 16-bit 44.1 kHz WAV.
func (r *Renderer) Render(ctx context.Context, p *kaiku.Project) ([]byte, error) {
	buf, err := r.RenderBuffer(ctx, p, p.Tracks, p.Backing)
	if err != nil {
		return nil, err
	}
	return buf.Wav(true)
}

// BackingStem is the key of the backing pattern stem in RenderStems.
const BackingStem = "backing"

// RenderStems bounces every track on its own, in parallel. The result maps
// track ids to WAV files. If the project has backing patterns, they get a
// stem of their own under BackingStem, unless a track already uses that id.
func (r *Renderer) RenderStems(ctx context.Context, p *kaiku.Project) (map[string][]byte, error) {
	var mu sync.Mutex
	ret := make(map[string][]byte, len(p.Tracks)+1)
	g, ctx := errgroup.WithContext(ctx)
	stem := func(id string, tracks []kaiku.Track, backing []kaiku.Backing) {
		g.Go(func() error {
			buf, err := r.RenderBuffer(ctx, p, tracks, backing)
			if err != nil {
				return fmt.Errorf("stem %v: %w", id, err)
			}
			wav, err := buf.Wav(true)
			if err != nil {
				return fmt.Errorf("stem %v: %w", id, err)
			}
			mu.Lock()
			ret[id] = wav
			mu.Unlock()
			return nil
		})
	}
	for _, t := range p.Tracks {
		stem(t.ID, StemTracks(p.Tracks, t.ID), nil)
	}
	if len(p.Backing) > 0 && kaiku.FindTrack(p.Tracks, BackingStem) == nil {
		stem(BackingStem, StemTracks(p.Tracks, ""), p.Backing)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ret, nil
}

// StemTracks returns a copy of tracks where only the track with the given id
// is heard: it is unmuted and every other track is muted. Solo flags are
// cleared.
func StemTracks(tracks []kaiku.Track, id string) []kaiku.Track {
	ret := make([]kaiku.Track, len(tracks))
	for i, t := range tracks {
		ret[i] = t.Copy()
		ret[i].Mute = t.ID != id
		ret[i].Solo = false
	}
	return ret
}

// RenderBuffer renders the project with the given track settings and backing
// patterns, which may differ from the project's own, e.g. for stems.
func (r *Renderer) RenderBuffer(ctx context.Context, p *kaiku.Project, tracks []kaiku.Track, backing []kaiku.Backing) (kaiku.AudioBuffer, error) {
	actx := graph.NewContext(kaiku.ExportSampleRate)
	mixer, err := NewMixer(actx, r.cfg.Smoothing, true)
	if err != nil {
		return nil, fmt.Errorf("could not build mixer: %w", err)
	}
	mixer.Reconcile(tracks, 0)
	mixer.SyncMaster(p.Master, 0)
	mixer.SyncSends(p.Sends, 0)
	length := r.Length(p)
	voices := NewVoicePool(actx, r.cfg.ReleaseMargin)
	clips := NewClipScheduler(actx, r.cache, voices)
	dest := func(id string) (graph.Node, bool) {
		ch, ok := mixer.Channel(id)
		if !ok {
			return nil, false
		}
		return ch.Input(), true
	}
	for _, err := range clips.Schedule(p.Clips, tracks, 0, 0, 0, dest) {
		r.warn(err)
	}
	// the whole song fits in the window, so a single tick schedules every
	// pattern hit and breakpoint
	cfg := r.cfg
	cfg.Lookahead = length
	events := NewLookahead(actx, mixer, cfg)
	transport := p.Transport
	transport.Metronome = false
	transport.Loop = kaiku.Loop{}
	events.SetTransport(transport)
	events.SetBacking(backing)
	events.Reset(0, 0, tracks)
	events.Tick(0)
	frames := int(math.Ceil(length * kaiku.ExportSampleRate))
	ret := make(kaiku.AudioBuffer, frames)
	for i := 0; i < frames; i += renderChunk * kaiku.ExportSampleRate {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		actx.Process(ret[i:min(frames, i+renderChunk*kaiku.ExportSampleRate)])
	}
	return ret, nil
}

func (r *Renderer) warn(err error) {
	if r.Warn != nil {
		r.Warn(err)
	}
}
