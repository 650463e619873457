// Package engine turns project snapshots into scheduled sound. It owns the
// live audio graph and keeps it in line with the tracks, plays clips, synth
// notes, the metronome, backing patterns and automation against the audio
// clock, records takes and renders projects offline.
//
// All methods of Engine are meant to be called from one control goroutine,
// e.g. the UI loop; they never wait for audio to be rendered. The audio
// clock runs on whatever goroutine calls Context().Process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	cfg       Config
	ctx       *graph.Context
	cache     *BufferCache
	mixer     *Mixer
	voices    *VoicePool
	clips     *ClipScheduler
	lookahead *Lookahead
	recorder  *Recorder
	renderer  *Renderer
	transport Transport
	alerts    chan Alert

	mu        sync.Mutex
	tracks    []kaiku.Track
	playing   []kaiku.Clip // clips of the current playback, replayed on loop
	settings  kaiku.Transport
	recTrack  string
	recStart  float64 // song time at which the recording began
	takeCount int
}

// loadParallelism limits the number of concurrent decodes in LoadAssets.
const loadParallelism = 4

// New creates an engine with its own audio context. The decoder is used to
// load assets and input to record; either may be nil.
func New(cfg Config, decoder Decoder, input InputDevice) (*Engine, error) {
	cfg = cfg.withDefaults()
	ctx := graph.NewContext(cfg.SampleRate)
	mixer, err := NewMixer(ctx, cfg.Smoothing, false)
	if err != nil {
		return nil, fmt.Errorf("could not create engine: %w", err)
	}
	cache := NewBufferCache(decoder, cfg.SampleRate)
	voices := NewVoicePool(ctx, cfg.ReleaseMargin)
	e := &Engine{
		cfg:       cfg,
		ctx:       ctx,
		cache:     cache,
		mixer:     mixer,
		voices:    voices,
		clips:     NewClipScheduler(ctx, cache, voices),
		lookahead: NewLookahead(ctx, mixer, cfg),
		recorder:  NewRecorder(ctx, input, mixer.Master().Input()),
		renderer:  NewRenderer(cache, cfg),
		alerts:    make(chan Alert, 64),
	}
	e.renderer.Warn = func(err error) { e.sendAlert("RenderWarning", err.Error(), Warning) }
	return e, nil
}

// Context is the audio context the output device should pull from.
func (e *Engine) Context() *graph.Context {
	return e.ctx
}

// Cache is the decoded-buffer cache shared by playback and rendering.
func (e *Engine) Cache() *BufferCache {
	return e.cache
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Alerts delivers messages for the user. Alerts are dropped if the channel
// is not drained.
func (e *Engine) Alerts() <-chan Alert {
	return e.alerts
}

// OnEvent registers an observer for every metronome click, pattern hit and
// automation breakpoint put on the audio clock.
func (e *Engine) OnEvent(f func(ScheduledEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookahead.OnEvent = f
}

// SyncTracks brings the channels in line with the tracks: new tracks get a
// channel, changed settings are applied smoothly, removed tracks lose their
// channel and everything playing on it.
func (e *Engine) SyncTracks(tracks []kaiku.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncTracks(tracks)
}

func (e *Engine) syncTracks(tracks []kaiku.Track) {
	e.tracks = make([]kaiku.Track, len(tracks))
	for i, t := range tracks {
		e.tracks[i] = t.Copy()
	}
	for _, id := range e.mixer.Reconcile(e.tracks, e.ctx.Now()) {
		e.clips.StopTrack(id)
		e.voices.StopTrack(id)
	}
}

// SyncInstruments replaces the backing patterns.
func (e *Engine) SyncInstruments(backing []kaiku.Backing) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lookahead.SetBacking(append([]kaiku.Backing(nil), backing...))
	if e.transport.Playing() {
		e.lookahead.Realign(e.transport.Elapsed(e.ctx.Now()))
	}
}

func (e *Engine) SyncMasterChain(eq kaiku.EQ, comp *kaiku.Compressor, volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer.SyncMaster(kaiku.MasterChain{EQ: eq, Compressor: comp, Volume: volume}, e.ctx.Now())
}

func (e *Engine) SyncEffectsSends(levels kaiku.SendLevels) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer.SyncSends(levels, e.ctx.Now())
}

// SyncTransportSettings changes tempo, time signature and the metronome.
// While playing, the metronome and the patterns continue from the current
// position in the new tempo.
func (e *Engine) SyncTransportSettings(bpm float64, sig kaiku.TimeSignature, metronome bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.settings
	e.settings.BPM, e.settings.TimeSignature, e.settings.Metronome = bpm, sig, metronome
	e.lookahead.SetTransport(e.settings)
	if e.transport.Playing() && (old.BPM != bpm || old.TimeSignature != sig) {
		e.lookahead.Realign(e.transport.Elapsed(e.ctx.Now()))
	}
}

func (e *Engine) SetLoop(loop kaiku.Loop) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings.Loop = loop
	e.lookahead.SetTransport(e.settings)
	e.transport.SetLoop(loop)
}

// Play stops whatever is playing and starts playback at song time from. If
// tracks is not nil, it is synced first.
func (e *Engine) Play(clips []kaiku.Clip, tracks []kaiku.Track, from float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tracks != nil {
		e.syncTracks(tracks)
	}
	e.playing = append(e.playing[:0], clips...)
	e.play(from)
}

func (e *Engine) play(from float64) {
	e.stopPlayback()
	from = max(from, 0)
	now := e.ctx.Now()
	e.transport.Start(from, now)
	e.lookahead.Reset(from, now, e.tracks)
	var until float64
	if e.settings.Loop.Active() {
		until = e.settings.Loop.End
	}
	for _, err := range e.clips.Schedule(e.playing, e.tracks, from, now, until, e.destination) {
		e.sendAlert("MissingAsset", err.Error(), Warning)
	}
	e.lookahead.Tick(now)
}

func (e *Engine) destination(id string) (graph.Node, bool) {
	ch, ok := e.mixer.Channel(id)
	if !ok {
		return nil, false
	}
	return ch.Input(), true
}

func (e *Engine) stopPlayback() {
	e.clips.Stop()
	e.voices.StopAll()
	e.lookahead.Stop()
}

// Pause stops playback, keeping the position.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.Halt(e.ctx.Now())
	e.stopPlayback()
}

// Stop stops playback and every sounding voice, and rewinds to the start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transport.Halt(e.ctx.Now())
	e.transport.Locate(0)
	e.stopPlayback()
}

// Seek moves to song time t, continuing playback from there if playing.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport.Playing() {
		e.play(t)
		return
	}
	e.transport.Locate(t)
}

// Tick should be called regularly, e.g. every frame of the UI, while
// playing. It schedules the upcoming events and restarts the loop when its
// end has been reached. It returns the current song time.
func (e *Engine) Tick() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.ctx.Now()
	if !e.transport.Playing() {
		return e.transport.SongTime(now)
	}
	if e.transport.LoopPassed(now) {
		e.play(e.settings.Loop.Start)
	}
	e.lookahead.Tick(now)
	return e.transport.SongTime(now)
}

// NoteOn plays a live note on a track, using the track's instrument.
func (e *Engine) NoteOn(trackID string, pitch, velocity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := kaiku.FindTrack(e.tracks, trackID)
	ch, ok := e.mixer.Channel(trackID)
	if t == nil || !ok {
		return
	}
	inst := kaiku.DefaultInstrument
	if t.Instrument != nil {
		inst = *t.Instrument
	}
	e.voices.NoteOn(trackID, pitch, velocity, inst, e.ctx.Now(), ch.Input())
}

func (e *Engine) NoteOff(trackID string, pitch int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voices.NoteOff(trackID, pitch, e.ctx.Now())
}

// StartRecording begins recording a take for a track. Errors wrap
// kaiku.ErrInputUnavailable when the input device cannot be used; the engine
// is then left as it was.
func (e *Engine) StartRecording(trackID string, monitor bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, err := e.recorder.Start(monitor)
	if err != nil {
		e.sendAlert("RecordingFailed", err.Error(), Error)
		return err
	}
	e.recTrack = trackID
	e.recStart = e.transport.SongTime(start)
	return nil
}

// StopRecording finishes the take, stores it in the cache and returns a clip
// placing it on the timeline, compensated for the recording latency.
func (e *Engine) StopRecording() (kaiku.Clip, Take, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	take, err := e.recorder.Stop()
	if err != nil {
		if take.Audio == nil {
			return kaiku.Clip{}, Take{}, err
		}
		e.sendAlert("RecordingWarning", err.Error(), Warning)
	}
	if take.Dropped > 0 {
		e.sendAlert("RecordingWarning", fmt.Sprintf("%d frames were dropped", take.Dropped), Warning)
	}
	e.takeCount++
	key := fmt.Sprintf("take-%d", e.takeCount)
	e.cache.Put(key, &graph.Buffer{SampleRate: take.SampleRate, Data: take.Audio})
	clip := TakeClip(key, e.recTrack, key, e.recStart, e.cfg.RecordingLatencyMs, take.Duration())
	return clip, take, nil
}

// LoadAssets decodes assets into the cache. Every failure is reported as an
// alert; the returned error joins all of them.
func (e *Engine) LoadAssets(ctx context.Context, keys []string) error {
	var mu sync.Mutex
	var errs []error
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for _, key := range keys {
		g.Go(func() error {
			if _, err := e.cache.Load(ctx, key); err != nil {
				e.sendAlert("DecodeFailed", err.Error(), Error)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// RenderProject bounces the project to a WAV file.
func (e *Engine) RenderProject(ctx context.Context, p *kaiku.Project) ([]byte, error) {
	return e.renderer.Render(ctx, p)
}

// RenderStems bounces each track to its own WAV file, keyed by track id.
func (e *Engine) RenderStems(ctx context.Context, p *kaiku.Project) (map[string][]byte, error) {
	return e.renderer.RenderStems(ctx, p)
}

// CurrentSongTime returns the playback position in seconds.
func (e *Engine) CurrentSongTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.SongTime(e.ctx.Now())
}

func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport.Playing()
}

// ChannelLevel returns the meter level of a track, 0 .. 1, or 0 if the
// track has no channel.
func (e *Engine) ChannelLevel(trackID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.mixer.Channel(trackID)
	if !ok {
		return 0
	}
	return ch.Level()
}

func (e *Engine) MasterLevel() float64 {
	return e.mixer.Master().Level()
}

func (e *Engine) InputLevel() float64 {
	return e.recorder.Level()
}

// Recording reports whether a take is being recorded.
func (e *Engine) Recording() bool {
	return e.recorder.Recording()
}

// Voices returns the number of synth voices not yet disposed.
func (e *Engine) Voices() int {
	return e.voices.Active()
}
