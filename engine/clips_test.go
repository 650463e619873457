package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/engine"
	"github.com/vsariola/kaiku/graph"
)

func near(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func dcBuffer(seconds float64, v float32) *graph.Buffer {
	data := make(kaiku.AudioBuffer, int(seconds*1000))
	for i := range data {
		data[i] = [2]float32{v, v}
	}
	return &graph.Buffer{SampleRate: 1000, Data: data}
}

func TestPlanClip(t *testing.T) {
	clip := kaiku.Clip{Start: 2, Offset: 0.5, Duration: 4}
	p, ok := engine.PlanClip(&clip, 0, 10, 10)
	if !ok || p.When != 12 || p.Offset != 0.5 || p.Duration != 4 || p.Elapsed != 0 || p.Loop {
		t.Fatalf("plan of a future clip: %+v", p)
	}
	p, ok = engine.PlanClip(&clip, 3, 10, 10)
	if !ok || p.When != 10 || p.Offset != 1.5 || p.Duration != 3 || p.Elapsed != 1 {
		t.Fatalf("plan of a mid-clip start: %+v", p)
	}
	if _, ok := engine.PlanClip(&clip, 6, 10, 10); ok {
		t.Fatalf("clip that has ended was planned")
	}
	p, _ = engine.PlanClip(&clip, 0, 0, 3)
	if !p.Loop {
		t.Fatalf("clip longer than its source does not loop")
	}
	fast := kaiku.Clip{Duration: 2, Speed: 2}
	p, _ = engine.PlanClip(&fast, 0.5, 0, 10)
	if p.Offset != 1 || p.Rate != 2 {
		t.Fatalf("offset not scaled by the playback rate: %+v", p)
	}
}

func newScheduler(t *testing.T, assets map[string]*graph.Buffer) (*graph.Context, *engine.ClipScheduler, *engine.VoicePool) {
	t.Helper()
	ctx := graph.NewContext(1000)
	cache := engine.NewBufferCache(nil, 1000)
	for k, b := range assets {
		cache.Put(k, b)
	}
	voices := engine.NewVoicePool(ctx, 0.01)
	return ctx, engine.NewClipScheduler(ctx, cache, voices), voices
}

func toDestination(ctx *graph.Context) engine.Destinations {
	return func(string) (graph.Node, bool) { return ctx.Destination(), true }
}

func TestMidFadeOutStartsAtPartialGain(t *testing.T) {
	ctx, s, _ := newScheduler(t, map[string]*graph.Buffer{"dc": dcBuffer(2, 1)})
	clip := kaiku.Clip{ID: "c", TrackID: "a", Asset: "dc", Duration: 1, FadeOut: 0.5}
	tracks := []kaiku.Track{{ID: "a", Volume: 1}}
	if errs := s.Schedule([]kaiku.Clip{clip}, tracks, 0.75, 0, 0, toDestination(ctx)); len(errs) > 0 {
		t.Fatalf("Schedule failed: %v", errs)
	}
	out := ctx.Render(300)
	first := float64(out[0][0])
	if first <= 0 || first >= 1 {
		t.Fatalf("start gain inside the fade-out = %v, want strictly between 0 and 1", first)
	}
	for _, i := range []int{0, 100, 200} {
		want := clip.FadeGain(0.75 + float64(i)/1000)
		if got := float64(out[i][0]); !near(got, want, 1e-4) {
			t.Fatalf("gain at %v ms = %v, want %v", i, got, want)
		}
	}
	if out[260][0] != 0 {
		t.Fatalf("clip played past its end")
	}
}

func TestEnvelopeMatchesFadeGain(t *testing.T) {
	clip := kaiku.Clip{ID: "c", TrackID: "a", Asset: "dc", Start: 0.1, Duration: 0.6, FadeIn: 0.2, FadeOut: 0.3}
	tracks := []kaiku.Track{{ID: "a", Volume: 1}}
	for _, from := range []float64{0, 0.2, 0.5} {
		ctx, s, _ := newScheduler(t, map[string]*graph.Buffer{"dc": dcBuffer(1, 1)})
		s.Schedule([]kaiku.Clip{clip}, tracks, from, 0, 0, toDestination(ctx))
		out := ctx.Render(1000)
		for i := range out {
			song := from + float64(i)/1000
			if song < clip.Start || song >= clip.End()-1e-9 {
				continue
			}
			want := clip.FadeGain(song - clip.Start)
			if got := float64(out[i][0]); !near(got, want, 1e-4) {
				t.Fatalf("from %v: gain at song time %v = %v, want %v", from, song, got, want)
			}
		}
	}
}

func TestScheduleSkipsMutedAndMissing(t *testing.T) {
	ctx, s, _ := newScheduler(t, map[string]*graph.Buffer{"dc": dcBuffer(1, 1)})
	tracks := []kaiku.Track{
		{ID: "a", Volume: 1},
		{ID: "b", Volume: 1, Mute: true},
	}
	clips := []kaiku.Clip{
		{ID: "1", TrackID: "a", Asset: "dc", Duration: 1},
		{ID: "2", TrackID: "a", Asset: "dc", Duration: 1, Muted: true},
		{ID: "3", TrackID: "b", Asset: "dc", Duration: 1},
		{ID: "4", TrackID: "a", Asset: "missing", Duration: 1},
		{ID: "5", TrackID: "a", Asset: "dc", Duration: 0},
	}
	errs := s.Schedule(clips, tracks, 0, 0, 0, toDestination(ctx))
	if len(errs) != 1 || !errors.Is(errs[0], kaiku.ErrMissingAsset) {
		t.Fatalf("Schedule returned %v, want one missing asset", errs)
	}
	if s.Playing() != 1 {
		t.Fatalf("%v clips scheduled, want 1", s.Playing())
	}
	tracks[0].Solo = false
	tracks = append(tracks, kaiku.Track{ID: "c", Volume: 1, Solo: true})
	s.Stop()
	s.Schedule(clips, tracks, 0, 0, 0, toDestination(ctx))
	if s.Playing() != 0 {
		t.Fatalf("clip of an unsoloed track was scheduled")
	}
}

func TestStopSilencesClips(t *testing.T) {
	ctx, s, _ := newScheduler(t, map[string]*graph.Buffer{"dc": dcBuffer(1, 1)})
	clip := kaiku.Clip{ID: "c", TrackID: "a", Asset: "dc", Duration: 1}
	s.Schedule([]kaiku.Clip{clip}, []kaiku.Track{{ID: "a", Volume: 1}}, 0, 0, 0, toDestination(ctx))
	ctx.Render(128)
	s.Stop()
	out := ctx.Render(128)
	if out[0][0] != 0 || s.Playing() != 0 {
		t.Fatalf("clip still playing after Stop")
	}
}

func TestScheduleStopsAtUntil(t *testing.T) {
	ctx, s, _ := newScheduler(t, map[string]*graph.Buffer{"dc": dcBuffer(1, 1)})
	clips := []kaiku.Clip{
		{ID: "1", TrackID: "a", Asset: "dc", Duration: 1},
		{ID: "2", TrackID: "a", Asset: "dc", Start: 0.5, Duration: 0.2},
	}
	s.Schedule(clips, []kaiku.Track{{ID: "a", Volume: 1}}, 0, 0, 0.5, toDestination(ctx))
	if s.Playing() != 1 {
		t.Fatalf("clip starting at the loop end was scheduled")
	}
	out := ctx.Render(600)
	if out[499][0] != 1 || out[500][0] != 0 {
		t.Fatalf("clip not cut at the loop end: %v %v", out[499], out[500])
	}
}

func TestInstrumentClipPlaysNotes(t *testing.T) {
	ctx, s, voices := newScheduler(t, nil)
	clip := kaiku.Clip{ID: "c", TrackID: "a", Start: 0, Duration: 1, Notes: []kaiku.Note{
		{Pitch: 60, Velocity: 100, Start: 0, Duration: 0.5},
		{Pitch: 64, Velocity: 100, Start: 0.2, Duration: 0.5},
		{Pitch: 67, Velocity: 100, Start: 0.1, Duration: 0.1},
	}}
	tracks := []kaiku.Track{{ID: "a", Volume: 1, Instrument: &testInstrument}}
	s.Schedule([]kaiku.Clip{clip}, tracks, 0.3, 0, 0, toDestination(ctx))
	if voices.Active() != 2 {
		t.Fatalf("%v voices started, want 2", voices.Active())
	}
	if _, ok := voices.Voice("a", 67); ok {
		t.Fatalf("note that ended before the start point was played")
	}
	ctx.Render(1000)
	if voices.Active() != 0 {
		t.Fatalf("%v voices left after the clip ended", voices.Active())
	}
}

func TestUnsortedNotesAllSound(t *testing.T) {
	organ := kaiku.Instrument{Waveform: kaiku.Square, Attack: 0.01, Decay: 0.01, Sustain: 1, Release: 0.01}
	tracks := []kaiku.Track{{ID: "a", Volume: 1, Instrument: &organ}}
	sets := map[string][]kaiku.Clip{
		"one clip": {{ID: "c", TrackID: "a", Duration: 2, Notes: []kaiku.Note{
			{Pitch: 60, Velocity: 127, Start: 1, Duration: 0.5},
			{Pitch: 60, Velocity: 127, Start: 0, Duration: 0.5},
		}}},
		"two clips": {
			{ID: "late", TrackID: "a", Start: 1, Duration: 1, Notes: []kaiku.Note{{Pitch: 60, Velocity: 127, Duration: 0.5}}},
			{ID: "early", TrackID: "a", Duration: 1, Notes: []kaiku.Note{{Pitch: 60, Velocity: 127, Duration: 0.5}}},
		},
	}
	for name, clips := range sets {
		ctx, s, _ := newScheduler(t, nil)
		s.Schedule(clips, tracks, 0, 0, 0, toDestination(ctx))
		out := ctx.Render(1600)
		if p := peak(out[100:400]); p < 0.5 {
			t.Fatalf("%v: first note peak %v", name, p)
		}
		if p := peak(out[1100:1400]); p < 0.5 {
			t.Fatalf("%v: second note silent, peak %v", name, p)
		}
	}
}
