package kaiku_test

import (
	"math"
	"testing"

	"github.com/vsariola/kaiku"
)

func TestFadeGain(t *testing.T) {
	clip := kaiku.Clip{Duration: 10, FadeIn: 2, FadeOut: 4}
	for e := 0.0; e <= 10; e += 0.125 {
		got := clip.FadeGain(e)
		var want float64
		switch {
		case e < 2:
			want = e / 2
		case e > 6:
			want = (10 - e) / 4
		default:
			want = 1
		}
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("FadeGain(%v) = %v, want %v", e, got, want)
		}
	}
}

func TestFadeKneesReproduceEnvelope(t *testing.T) {
	clips := []kaiku.Clip{
		{Duration: 10, FadeIn: 2, FadeOut: 4},
		{Duration: 1, FadeIn: 0.8, FadeOut: 0.6},
		{Duration: 3},
	}
	for _, clip := range clips {
		for _, from := range []float64{0, 0.3, 0.9} {
			knees := clip.FadeKnees(from)
			if knees[len(knees)-1] != clip.Duration {
				t.Fatalf("knees %v do not end at the clip duration", knees)
			}
			prevT, prevG := from, clip.FadeGain(from)
			for _, k := range knees {
				g := clip.FadeGain(k)
				mid := (prevT + k) / 2
				lerp := (prevG + g) / 2
				if math.Abs(clip.FadeGain(mid)-lerp) > 1e-9 {
					t.Fatalf("clip %+v from %v: envelope is not linear between %v and %v", clip, from, prevT, k)
				}
				prevT, prevG = k, g
			}
		}
	}
}

func TestSanitizeClamps(t *testing.T) {
	g := -3.0
	clip := kaiku.Clip{Start: -1, Offset: -2, Duration: 1, FadeIn: 5, FadeOut: -1, Speed: -2, Gain: &g}
	clip.Sanitize()
	if clip.Start != 0 || clip.Offset != 0 || clip.FadeIn != 1 || clip.FadeOut != 0 {
		t.Fatalf("Sanitize left %+v", clip)
	}
	if clip.GainOrDefault() != 0 {
		t.Fatalf("negative gain was not clamped: %v", clip.GainOrDefault())
	}
	if clip.PlaybackRate() != 1 {
		t.Fatalf("PlaybackRate = %v, want 1", clip.PlaybackRate())
	}
}

func TestPlaybackRate(t *testing.T) {
	clip := kaiku.Clip{Speed: 0.5, Pitch: 12}
	if r := clip.PlaybackRate(); math.Abs(r-1) > 1e-12 {
		t.Fatalf("PlaybackRate = %v, want 1", r)
	}
}
