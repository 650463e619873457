package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/decode"
	"github.com/vsariola/kaiku/engine"
	"github.com/vsariola/kaiku/version"
)

type args struct {
	Projects  []string `arg:"positional,required" help:"project files (.yml or .json) to render"`
	Assets    string   `arg:"-a" help:"directory the asset keys are relative to; defaults to the directory of each project"`
	Directory string   `arg:"-o" help:"output directory, created if needed; defaults to the working directory"`
	Name      string   `arg:"-n" default:"{{.Project}}{{with .Stem}}-{{. | lower | replace \" \" \"_\"}}{{end}}.wav" help:"template for the output file names; fields .Project and .Stem, sprig functions available"`
	Stems     bool     `arg:"-s" help:"also render every track on its own"`
	Tail      float64  `arg:"-t" help:"seconds rendered after the last clip"`
	Config    string   `arg:"-c" help:"engine config file (.yml)"`
}

func (args) Version() string {
	return "kaiku-render " + version.VersionOrHash
}

func (args) Description() string {
	return "Renders kaiku projects offline to 16-bit 44.1 kHz WAV files."
}

func main() {
	var a args
	arg.MustParse(&a)
	cfg := engine.DefaultConfig()
	if a.Config != "" {
		var err error
		if cfg, err = engine.LoadConfig(a.Config); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if a.Tail > 0 {
		cfg.Tail = a.Tail
	}
	namer, err := newNamer(a.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid name template: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	retval := 0
	for _, filename := range a.Projects {
		if err := render(ctx, a, cfg, namer, filename); err != nil {
			fmt.Fprintf(os.Stderr, "%v: %v\n", filename, err)
			retval = 1
		}
	}
	os.Exit(retval)
}

func render(ctx context.Context, a args, cfg engine.Config, namer *namer, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("could not read file: %w", err)
	}
	project, err := kaiku.LoadProject(data)
	if err != nil {
		return err
	}
	root := a.Assets
	if root == "" {
		root = filepath.Dir(filename)
	}
	e, err := engine.New(cfg, decode.Files{Root: root}, nil)
	if err != nil {
		return err
	}
	if err := e.LoadAssets(ctx, project.Assets()); err != nil {
		// clips with undecodable assets are skipped, the render goes on
		fmt.Fprintf(os.Stderr, "%v: %v\n", filename, err)
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	output := func(stem string, contents []byte) error {
		name, err := namer.name(base, stem)
		if err != nil {
			return fmt.Errorf("could not name the output: %w", err)
		}
		dir := a.Directory
		if dir != "" {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return fmt.Errorf("could not create output directory %v: %w", dir, err)
			}
		}
		f := filepath.Join(dir, name)
		if err := os.WriteFile(f, contents, 0644); err != nil {
			return fmt.Errorf("could not write file %v: %w", f, err)
		}
		return nil
	}
	wav, err := e.RenderProject(ctx, project)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	drainAlerts(e, filename)
	if err := output("", wav); err != nil {
		return err
	}
	if !a.Stems {
		return nil
	}
	stems, err := e.RenderStems(ctx, project)
	if err != nil {
		return fmt.Errorf("stem render failed: %w", err)
	}
	ids := make([]string, 0, len(stems))
	for id := range stems {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		stem := id
		if t := kaiku.FindTrack(project.Tracks, id); t != nil && t.Name != "" {
			stem = t.Name
		}
		if err := output(stem, stems[id]); err != nil {
			return err
		}
	}
	return nil
}

// drainAlerts prints the warnings raised during the render, e.g. missing
// assets.
func drainAlerts(e *engine.Engine, filename string) {
	for {
		select {
		case alert := <-e.Alerts():
			fmt.Fprintf(os.Stderr, "%v: %v\n", filename, alert)
		default:
			return
		}
	}
}
