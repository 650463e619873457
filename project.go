package kaiku

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type (
	// Project is the complete snapshot of a session that the engine
	// consumes. The engine never mutates a Project; the UI owns it and pushes
	// copies of it through the engine's sync operations.
	Project struct {
		Transport Transport
		Master    MasterChain
		Sends     SendLevels
		Tracks    []Track
		Clips     []Clip
		Backing   []Backing `yaml:",omitempty"`
	}

	// Transport holds the musical timing and looping settings.
	Transport struct {
		BPM           float64
		TimeSignature TimeSignature `yaml:",flow"`
		Metronome     bool          `yaml:",omitempty"`
		Loop          Loop          `yaml:",omitempty"`
	}

	TimeSignature struct {
		Beats int // beats per bar
		Unit  int // note value of one beat, 4 = quarter
	}

	// Loop is a song-time region in seconds. Looping is only in effect when
	// Enabled and End > Start.
	Loop struct {
		Enabled bool
		Start   float64
		End     float64
	}

	// Track is the per-track mix and instrument configuration.
	Track struct {
		ID         string
		Name       string           `yaml:",omitempty"`
		Volume     float64          // linear gain
		Pan        float64          // -1 .. 1
		Mute       bool             `yaml:",omitempty"`
		Solo       bool             `yaml:",omitempty"`
		EQ         EQ               `yaml:",omitempty"`
		Compressor *Compressor      `yaml:",omitempty"`
		Distortion float64          `yaml:",omitempty"` // 0 = bypass, 1 = full drive
		Sends      map[SendBus]Send `yaml:",omitempty"`
		Instrument *Instrument      `yaml:",omitempty"`
		Automation map[string]Curve `yaml:",omitempty"`
	}

	// EQ is a three band equalizer, gains in dB.
	EQ struct {
		Low  float64 `yaml:",omitempty"`
		Mid  float64 `yaml:",omitempty"`
		High float64 `yaml:",omitempty"`
	}

	Compressor struct {
		Threshold float64 // dB
		Knee      float64 // dB
		Ratio     float64
		Attack    float64 // seconds
		Release   float64 // seconds
	}

	SendBus string

	Send struct {
		Level    float64
		PreFader bool `yaml:",omitempty"`
	}

	// Instrument describes the synth voice used for the notes of an
	// instrument track.
	Instrument struct {
		Waveform Waveform
		Attack   float64 // seconds
		Decay    float64 // seconds
		Sustain  float64 // 0 .. 1, relative to the peak
		Release  float64 // seconds
	}

	Waveform string

	// Backing is a simple drum machine pattern. Hits is a cyclic step table;
	// each step lasts 1/StepsPerBeat beats and names the hit to play, with ""
	// or "-" marking a rest.
	Backing struct {
		Name         string
		Hits         []string
		StepsPerBeat int
		Volume       float64 `yaml:",omitempty"`
		Mute         bool    `yaml:",omitempty"`
	}

	// MasterChain is the processing applied on the summed mix.
	MasterChain struct {
		EQ         EQ          `yaml:",omitempty"`
		Compressor *Compressor `yaml:",omitempty"`
		Volume     float64
	}

	// SendLevels are the return levels of the shared effect buses.
	SendLevels struct {
		Reverb float64 `yaml:",omitempty"`
		Delay  float64 `yaml:",omitempty"`
		Chorus float64 `yaml:",omitempty"`
	}
)

const (
	ReverbBus SendBus = "reverb"
	DelayBus  SendBus = "delay"
	ChorusBus SendBus = "chorus"
)

// SendBuses lists the effect buses in the order they are built.
var SendBuses = []SendBus{ReverbBus, DelayBus, ChorusBus}

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

// DefaultInstrument is used for instrument tracks that have notes but no
// Instrument of their own.
var DefaultInstrument = Instrument{Waveform: Sine, Attack: 0.01, Decay: 0.1, Sustain: 0.7, Release: 0.3}

// DefaultCompressor mirrors the usual dynamics compressor defaults.
var DefaultCompressor = Compressor{Threshold: -24, Knee: 30, Ratio: 12, Attack: 0.003, Release: 0.25}

// SecondsPerBeat returns the length of one beat. A beat is one note of the
// time signature's unit, so 6/8 has shorter beats than 3/4 at the same BPM.
func (t Transport) SecondsPerBeat() float64 {
	bpm := t.BPM
	if bpm <= 0 {
		bpm = 120
	}
	unit := t.TimeSignature.Unit
	if unit <= 0 {
		unit = 4
	}
	return 60 / bpm * 4 / float64(unit)
}

func (t Transport) BeatsPerBar() int {
	if t.TimeSignature.Beats <= 0 {
		return 4
	}
	return t.TimeSignature.Beats
}

// Active reports whether the loop region is usable.
func (l Loop) Active() bool {
	return l.Enabled && l.End > l.Start
}

// SoloActive reports whether any track in the list is soloed.
func SoloActive(tracks []Track) bool {
	for _, t := range tracks {
		if t.Solo {
			return true
		}
	}
	return false
}

// Audible reports whether a track should be heard at all, given the mute
// flag and the solo state of the whole project.
func (t *Track) Audible(soloActive bool) bool {
	if t.Mute {
		return false
	}
	return !soloActive || t.Solo
}

// Copy makes a deep copy of the track, so that the copy shares no maps or
// pointers with the original.
func (t Track) Copy() Track {
	ret := t
	if t.Compressor != nil {
		c := *t.Compressor
		ret.Compressor = &c
	}
	if t.Instrument != nil {
		i := *t.Instrument
		ret.Instrument = &i
	}
	if t.Sends != nil {
		ret.Sends = make(map[SendBus]Send, len(t.Sends))
		for k, v := range t.Sends {
			ret.Sends[k] = v
		}
	}
	if t.Automation != nil {
		ret.Automation = make(map[string]Curve, len(t.Automation))
		for k, v := range t.Automation {
			ret.Automation[k] = v.Copy()
		}
	}
	return ret
}

// FindTrack returns the track with the given id, or nil.
func FindTrack(tracks []Track, id string) *Track {
	for i := range tracks {
		if tracks[i].ID == id {
			return &tracks[i]
		}
	}
	return nil
}

// Length returns the end of the last clip, in seconds.
func (p *Project) Length() float64 {
	var ret float64
	for _, c := range p.Clips {
		ret = max(ret, c.End())
	}
	return ret
}

// Assets lists the distinct asset keys referenced by clips, in clip order.
func (p *Project) Assets() []string {
	var ret []string
	seen := map[string]bool{}
	for _, c := range p.Clips {
		if c.Asset != "" && !seen[c.Asset] {
			seen[c.Asset] = true
			ret = append(ret, c.Asset)
		}
	}
	return ret
}

var errEmptyProject = errors.New("project data is empty")

// LoadProject parses a project from JSON or YAML.
func LoadProject(data []byte) (*Project, error) {
	if len(data) == 0 {
		return nil, errEmptyProject
	}
	var project Project
	if errJSON := json.Unmarshal(data, &project); errJSON != nil {
		if errYaml := yaml.Unmarshal(data, &project); errYaml != nil {
			return nil, fmt.Errorf("the project could not be parsed as .json (%v) nor .yml (%v)", errJSON, errYaml)
		}
	}
	for i := range project.Clips {
		project.Clips[i].Sanitize()
	}
	return &project, nil
}
