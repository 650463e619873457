package engine_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/engine"
)

func newEngine(t *testing.T, cfg engine.Config, input engine.InputDevice) *engine.Engine {
	t.Helper()
	cfg.SampleRate = 1000
	e, err := engine.New(cfg, nil, input)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e
}

// advance renders the engine in 16 ms steps, ticking before each step, until
// the audio clock reaches end.
func advance(e *engine.Engine, end float64, each func(songTime float64)) {
	buf := make(kaiku.AudioBuffer, 16)
	for e.Context().Now() < end {
		s := e.Tick()
		if each != nil {
			each(s)
		}
		e.Context().Process(buf)
	}
}

func TestEngineMetronome(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	var clicks []engine.ScheduledEvent
	e.OnEvent(func(ev engine.ScheduledEvent) {
		if ev.Kind == engine.ClickEvent {
			clicks = append(clicks, ev)
		}
	})
	e.SyncTransportSettings(120, kaiku.TimeSignature{Beats: 4, Unit: 4}, true)
	e.Play(nil, []kaiku.Track{{ID: "a", Volume: 1}}, 0)
	advance(e, 2, nil)
	n := 0
	for _, c := range clicks {
		if c.SongTime < 2 {
			n++
		}
	}
	if n != 4 {
		t.Fatalf("%v clicks scheduled in 2 seconds, want 4", n)
	}
	if !clicks[0].Accent || clicks[1].Accent || len(clicks) < 5 || !clicks[4].Accent {
		t.Fatalf("accents not on the first beat of each bar: %+v", clicks)
	}
	if s := e.CurrentSongTime(); math.Abs(s-2) > 0.02 {
		t.Fatalf("song time %v after 2 seconds", s)
	}
}

func TestEngineLoopWraps(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	var clicks []engine.ScheduledEvent
	e.OnEvent(func(ev engine.ScheduledEvent) {
		if ev.Kind == engine.ClickEvent {
			clicks = append(clicks, ev)
		}
	})
	e.SyncTransportSettings(120, kaiku.TimeSignature{Beats: 4, Unit: 4}, true)
	e.SetLoop(kaiku.Loop{Enabled: true, Start: 0, End: 4})
	e.Play(nil, nil, 0)
	wrapped := false
	prev := 0.0
	advance(e, 6, func(s float64) {
		if s < 0 || s >= 4 {
			t.Fatalf("song time %v outside the loop", s)
		}
		if s < prev {
			wrapped = true
		}
		prev = s
	})
	if !wrapped {
		t.Fatalf("playback did not wrap")
	}
	starts := 0
	for _, c := range clicks {
		if c.SongTime >= 4 {
			t.Fatalf("click scheduled at %v, past the loop end", c.SongTime)
		}
		if c.SongTime == 0 {
			starts++
		}
	}
	if starts != 2 {
		t.Fatalf("loop start clicked %v times, want 2", starts)
	}
}

func TestEngineStopDisposesVoices(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	e.Play(nil, []kaiku.Track{{ID: "keys", Volume: 1}}, 0)
	e.NoteOn("keys", 60, 100)
	e.NoteOn("keys", 64, 100)
	e.NoteOn("nope", 64, 100)
	if e.Voices() != 2 {
		t.Fatalf("%v voices, want 2", e.Voices())
	}
	e.Stop()
	if e.Voices() != 0 || e.Playing() {
		t.Fatalf("Stop left %v voices", e.Voices())
	}
	if s := e.CurrentSongTime(); s != 0 {
		t.Fatalf("Stop did not rewind: %v", s)
	}
}

func TestEnginePauseKeepsPosition(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	e.Play(nil, nil, 1)
	advance(e, 0.5, nil)
	e.Pause()
	pos := e.CurrentSongTime()
	advance(e, 1, nil)
	if e.CurrentSongTime() != pos || pos < 1.45 {
		t.Fatalf("position moved while paused: %v, %v", pos, e.CurrentSongTime())
	}
	e.Seek(3)
	if e.CurrentSongTime() != 3 {
		t.Fatalf("Seek while paused did not move the position")
	}
}

func TestEngineRemovesChannels(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	e.SyncTracks([]kaiku.Track{{ID: "a", Volume: 1}, {ID: "b", Volume: 1}})
	e.NoteOn("b", 60, 127)
	e.SyncTracks([]kaiku.Track{{ID: "a", Volume: 1}})
	if e.Voices() != 0 {
		t.Fatalf("voice of a removed track left playing")
	}
	if l := e.ChannelLevel("b"); l != 0 {
		t.Fatalf("removed channel has level %v", l)
	}
}

func TestEngineRecordingLatency(t *testing.T) {
	dev := &fakeInput{}
	e := newEngine(t, engine.Config{RecordingLatencyMs: 100}, dev)
	e.Play(nil, []kaiku.Track{{ID: "vox", Volume: 1}}, 2)
	if err := e.StartRecording("vox", false); err != nil {
		t.Fatalf("StartRecording failed: %v", err)
	}
	dev.push(5000, 0.1)
	clip, take, err := e.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording failed: %v", err)
	}
	if take.Duration() != 5 {
		t.Fatalf("take is %v seconds, want 5", take.Duration())
	}
	if math.Abs(clip.Start-1.9) > 1e-9 || clip.Offset != 0 || clip.Duration != 5 || clip.TrackID != "vox" {
		t.Fatalf("take clip = %+v", clip)
	}
	if _, ok := e.Cache().Get(clip.Asset); !ok {
		t.Fatalf("take not registered in the cache")
	}
}

func TestEngineRecordingFailure(t *testing.T) {
	dev := &fakeInput{openErr: errors.New("no microphone")}
	e := newEngine(t, engine.Config{}, dev)
	err := e.StartRecording("vox", true)
	if !errors.Is(err, kaiku.ErrInputUnavailable) {
		t.Fatalf("StartRecording returned %v", err)
	}
	if e.Recording() {
		t.Fatalf("engine recording after a failed start")
	}
	if _, _, err := e.StopRecording(); !errors.Is(err, engine.ErrNotRecording) {
		t.Fatalf("StopRecording returned %v", err)
	}
	select {
	case a := <-e.Alerts():
		if a.Priority != engine.Error {
			t.Fatalf("alert priority %v", a.Priority)
		}
	default:
		t.Fatalf("no alert for the failed recording")
	}
}

func TestEngineMissingAssetAlert(t *testing.T) {
	e := newEngine(t, engine.Config{}, nil)
	clips := []kaiku.Clip{{ID: "c", TrackID: "a", Asset: "gone.wav", Duration: 1}}
	e.Play(clips, []kaiku.Track{{ID: "a", Volume: 1}}, 0)
	select {
	case a := <-e.Alerts():
		if a.Name != "MissingAsset" || a.Priority != engine.Warning {
			t.Fatalf("unexpected alert %v", a)
		}
	default:
		t.Fatalf("no alert for a missing asset")
	}
	if !e.Playing() {
		t.Fatalf("missing asset stopped playback")
	}
}
