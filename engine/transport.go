package engine

import (
	"math"

	"github.com/vsariola/kaiku"
)

// Transport maps the audio clock to song time. While playing, song time is
// audio time minus the origin; while stopped or paused, it stays at the
// position where playback ended.
type Transport struct {
	origin   float64
	position float64
	playing  bool
	loop     kaiku.Loop
}

// Start makes song time from coincide with audio time audioNow.
func (t *Transport) Start(from, audioNow float64) {
	t.origin = audioNow - from
	t.position = from
	t.playing = true
}

// Halt freezes song time at its value at audioNow.
func (t *Transport) Halt(audioNow float64) {
	t.position = t.SongTime(audioNow)
	t.playing = false
}

// Locate moves a stopped transport to song time pos.
func (t *Transport) Locate(pos float64) {
	t.position = math.Max(pos, 0)
}

func (t *Transport) SetLoop(l kaiku.Loop) {
	t.loop = l
}

func (t *Transport) Playing() bool {
	return t.playing
}

// Origin is the audio time at which song time 0 plays.
func (t *Transport) Origin() float64 {
	return t.origin
}

// Elapsed is the unwrapped song time at audioNow, which can pass the loop
// end until the loop is restarted.
func (t *Transport) Elapsed(audioNow float64) float64 {
	if !t.playing {
		return t.position
	}
	return audioNow - t.origin
}

// SongTime is the song position at audioNow. While looping, positions past
// the loop end are folded back into the loop, so the result is never at or
// after the loop end.
func (t *Transport) SongTime(audioNow float64) float64 {
	s := t.Elapsed(audioNow)
	if !t.playing || !t.loop.Active() || s < t.loop.End {
		return s
	}
	return t.loop.Start + math.Mod(s-t.loop.Start, t.loop.End-t.loop.Start)
}

// LoopPassed reports whether playback has reached the loop end and must be
// restarted at the loop start.
func (t *Transport) LoopPassed(audioNow float64) bool {
	return t.playing && t.loop.Active() && t.Elapsed(audioNow) >= t.loop.End
}
