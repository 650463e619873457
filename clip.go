package kaiku

import "math"

type (
	// Clip places material on a track's timeline. Start and Duration are in
	// song seconds; Offset is in seconds of source material and tells where
	// in the source the clip begins. A clip is either an audio clip (Asset
	// names the decoded buffer) or an instrument clip (Notes).
	Clip struct {
		ID       string
		TrackID  string
		Start    float64
		Offset   float64 `yaml:",omitempty"`
		Duration float64
		FadeIn   float64  `yaml:",omitempty"`
		FadeOut  float64  `yaml:",omitempty"`
		Gain     *float64 `yaml:",omitempty"`
		Speed    float64  `yaml:",omitempty"` // 0 means 1
		Pitch    float64  `yaml:",omitempty"` // semitones
		Muted    bool     `yaml:",omitempty"`
		Asset    string   `yaml:",omitempty"`
		Notes    []Note   `yaml:",omitempty,flow"`
	}

	// Note is a note of an instrument clip. Start is relative to the start
	// of the clip.
	Note struct {
		Pitch    int
		Velocity int
		Start    float64
		Duration float64
	}
)

// End is the song time at which the clip stops.
func (c *Clip) End() float64 {
	return c.Start + c.Duration
}

// Sanitize clamps the clip parameters into a playable range. Invalid values
// are never rejected, they are just made harmless.
func (c *Clip) Sanitize() {
	if c.Start < 0 {
		c.Start = 0
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
	if c.Duration < 0 || math.IsNaN(c.Duration) {
		c.Duration = 0
	}
	c.FadeIn = math.Min(math.Max(c.FadeIn, 0), c.Duration)
	c.FadeOut = math.Min(math.Max(c.FadeOut, 0), c.Duration)
	if c.Speed < 0 || math.IsNaN(c.Speed) {
		c.Speed = 0
	}
	if c.Gain != nil && *c.Gain < 0 {
		g := 0.0
		c.Gain = &g
	}
}

// GainOrDefault returns the clip gain, 1 if unset.
func (c *Clip) GainOrDefault() float64 {
	if c.Gain == nil {
		return 1
	}
	return *c.Gain
}

// PlaybackRate is the rate at which source material is consumed: speed
// times the pitch shift ratio.
func (c *Clip) PlaybackRate() float64 {
	speed := c.Speed
	if speed <= 0 {
		speed = 1
	}
	return speed * math.Pow(2, c.Pitch/12)
}

// FadeGain returns the envelope gain of the clip at the given elapsed time
// within the clip. Inside the fade-in region the gain rises linearly from 0
// to 1, inside the fade-out region it falls linearly from 1 to 0 at the clip
// end, and in between it is 1. When the two regions overlap the lower of the
// two ramps wins, so they meet at their crossing point.
func (c *Clip) FadeGain(elapsed float64) float64 {
	d := c.Duration
	if elapsed < 0 || elapsed > d {
		return 0
	}
	g := 1.0
	if c.FadeIn > 0 && elapsed < c.FadeIn {
		g = math.Min(g, elapsed/c.FadeIn)
	}
	if c.FadeOut > 0 && elapsed > d-c.FadeOut {
		g = math.Min(g, (d-elapsed)/c.FadeOut)
	}
	return g
}

// FadeKnees returns the elapsed times after from at which the envelope
// changes slope, in increasing order and ending with the clip duration.
// Ramping linearly between FadeGain at consecutive knees reproduces the
// envelope exactly.
func (c *Clip) FadeKnees(from float64) []float64 {
	d := c.Duration
	candidates := make([]float64, 0, 4)
	if c.FadeIn > 0 {
		candidates = append(candidates, c.FadeIn)
	}
	if c.FadeOut > 0 {
		candidates = append(candidates, d-c.FadeOut)
	}
	if c.FadeIn > 0 && c.FadeOut > 0 && c.FadeIn+c.FadeOut > d {
		candidates = append(candidates, d*c.FadeIn/(c.FadeIn+c.FadeOut))
	}
	ret := make([]float64, 0, 4)
	for _, k := range candidates {
		if k > from && k < d {
			ret = append(ret, k)
		}
	}
	for i := 1; i < len(ret); i++ {
		for j := i; j > 0 && ret[j] < ret[j-1]; j-- {
			ret[j], ret[j-1] = ret[j-1], ret[j]
		}
	}
	return append(ret, d)
}
