package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the engine. The zero value of a field means
// "use the default".
type Config struct {
	SampleRate         int     `yaml:",omitempty"`
	Lookahead          float64 `yaml:",omitempty"` // seconds scheduled ahead of the audio clock
	Smoothing          float64 `yaml:",omitempty"` // time constant of smoothed parameter changes
	RecordingLatencyMs float64 `yaml:",omitempty"`
	Tail               float64 `yaml:",omitempty"` // seconds rendered after the last clip
	ReleaseMargin      float64 `yaml:",omitempty"` // extra time before a released voice is disposed
	ClickLength        float64 `yaml:",omitempty"` // metronome click length
	MetronomeVolume    float64 `yaml:",omitempty"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		Lookahead:       0.12,
		Smoothing:       0.015,
		Tail:            2,
		ReleaseMargin:   0.05,
		ClickLength:     0.05,
		MetronomeVolume: 0.5,
	}
}

// withDefaults fills the unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Lookahead <= 0 {
		c.Lookahead = d.Lookahead
	}
	if c.Smoothing <= 0 {
		c.Smoothing = d.Smoothing
	}
	if c.RecordingLatencyMs < 0 {
		c.RecordingLatencyMs = 0
	}
	if c.Tail <= 0 {
		c.Tail = d.Tail
	}
	if c.ReleaseMargin <= 0 {
		c.ReleaseMargin = d.ReleaseMargin
	}
	if c.ClickLength <= 0 {
		c.ClickLength = d.ClickLength
	}
	if c.MetronomeVolume <= 0 {
		c.MetronomeVolume = d.MetronomeVolume
	}
	return c
}

// LoadConfig reads a YAML config file. Missing fields get their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("could not parse config %v: %w", path, err)
	}
	return c.withDefaults(), nil
}
