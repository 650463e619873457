package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alexflint/go-arg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/decode"
	"github.com/vsariola/kaiku/engine"
	"github.com/vsariola/kaiku/gomidi"
	"github.com/vsariola/kaiku/oto"
	"github.com/vsariola/kaiku/painput"
	"github.com/vsariola/kaiku/version"
)

type args struct {
	Project   string  `arg:"positional,required" help:"project file (.yml or .json)"`
	Assets    string  `arg:"-a" help:"directory the asset keys are relative to; defaults to the directory of the project"`
	Config    string  `arg:"-c" help:"engine config file (.yml)"`
	From      float64 `arg:"-f" help:"song time in seconds to start playing from"`
	Metronome bool    `arg:"-m" help:"enable the metronome, overriding the project"`
	Record    string  `arg:"-r" help:"record a take on the track with this id while playing"`
	Monitor   bool    `help:"hear the input while recording"`
	Take      string  `default:"take.wav" help:"file the recorded take is written to"`
	MIDI      *string `arg:"--midi" help:"play notes from the MIDI input whose name starts with this prefix (empty takes the first input)"`
}

func (args) Version() string {
	return "kaiku-play " + version.VersionOrHash
}

// tickInterval is how often the control loop refills the lookahead window;
// it must be well below the lookahead of the engine.
const tickInterval = 20 * time.Millisecond

func main() {
	var a args
	arg.MustParse(&a)
	if err := run(a); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(a args) error {
	cfg := engine.DefaultConfig()
	if a.Config != "" {
		var err error
		if cfg, err = engine.LoadConfig(a.Config); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(a.Project)
	if err != nil {
		return fmt.Errorf("could not read file %v: %w", a.Project, err)
	}
	project, err := kaiku.LoadProject(data)
	if err != nil {
		return err
	}
	root := a.Assets
	if root == "" {
		root = filepath.Dir(a.Project)
	}
	var input engine.InputDevice
	if a.Record != "" {
		input = painput.Device{}
	}
	e, err := engine.New(cfg, decode.Files{Root: root}, input)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	// failures are reported as alerts and printed below
	e.LoadAssets(ctx, project.Assets())
	syncProject(e, project, a.Metronome)
	out, err := oto.Open(e.Context(), cfg.SampleRate)
	if err != nil {
		return fmt.Errorf("could not open audio output: %w", err)
	}
	defer out.Close()
	router := gomidi.NewRouter()
	if a.MIDI != nil {
		closeMIDI, err := openMIDI(*a.MIDI, router)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		} else {
			defer closeMIDI()
		}
		target := a.Record
		if target == "" && len(project.Tracks) > 0 {
			target = project.Tracks[0].ID
		}
		router.RouteAll(target)
	}
	e.Play(project.Clips, project.Tracks, a.From)
	if a.Record != "" {
		if err := e.StartRecording(a.Record, a.Monitor); err != nil {
			return err
		}
		fmt.Printf("Recording on %v\n", displayName(project, a.Record))
	}
	end := project.Length() + cfg.Tail
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
		songTime := e.Tick()
		router.Flush(e)
		printAlerts(e)
		looping := project.Transport.Loop.Active()
		if !looping && a.Record == "" && a.MIDI == nil && songTime >= end {
			break loop
		}
	}
	e.Pause()
	if a.Record != "" {
		return saveTake(e, a.Take)
	}
	return nil
}

func syncProject(e *engine.Engine, p *kaiku.Project, metronome bool) {
	e.SyncTracks(p.Tracks)
	e.SyncInstruments(p.Backing)
	e.SyncMasterChain(p.Master.EQ, p.Master.Compressor, p.Master.Volume)
	e.SyncEffectsSends(p.Sends)
	e.SyncTransportSettings(p.Transport.BPM, p.Transport.TimeSignature, p.Transport.Metronome || metronome)
	e.SetLoop(p.Transport.Loop)
}

// saveTake writes the recorded audio and prints the clip that places it on
// the timeline.
func saveTake(e *engine.Engine, filename string) error {
	clip, take, err := e.StopRecording()
	printAlerts(e)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, take.Wav, 0644); err != nil {
		return fmt.Errorf("could not write take %v: %w", filename, err)
	}
	clip.Asset = filepath.ToSlash(filename)
	b, err := yaml.Marshal([]kaiku.Clip{clip})
	if err != nil {
		return fmt.Errorf("could not marshal the take clip: %w", err)
	}
	fmt.Printf("Recorded %.2f seconds to %v\n%s", take.Duration(), filename, b)
	return nil
}

var titleCaser = cases.Title(language.English)

func displayName(p *kaiku.Project, trackID string) string {
	if t := kaiku.FindTrack(p.Tracks, trackID); t != nil && t.Name != "" {
		return titleCaser.String(t.Name)
	}
	return trackID
}

func printAlerts(e *engine.Engine) {
	for {
		select {
		case alert := <-e.Alerts():
			fmt.Fprintf(os.Stderr, "%v\n", alert)
		default:
			return
		}
	}
}
