package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/midifile"
	"github.com/trackline/trackline/render"
	"github.com/trackline/trackline/session"
)

var (
	renderOut   string
	renderDir   string
	renderTempo float64
	renderMIDI  bool
	renderQuiet bool
)

var renderCmd = &cobra.Command{
	Use:   "render [flags] project...",
	Short: "Render projects to .wav files",
	Long: `Render projects to .wav files.

The output name is a Go template with the sprig functions. The fields .Name,
.BPM, .Bars, .Tracks and .Now are available, e.g.
  --out '{{ .Name | snakecase }}-{{ .BPM }}bpm-{{ .Now | date "20060102" }}.wav'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmpl, err := template.New("out").Funcs(sprig.TxtFuncMap()).Parse(renderOut)
		if err != nil {
			return errors.Wrap(err, "invalid --out template")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		failed := 0
		for _, path := range args {
			if err := renderProject(ctx, path, tmpl); err != nil {
				logrus.WithError(err).WithField("project", path).Error("render failed")
				failed++
			}
		}
		if failed > 0 {
			return errors.Errorf("%d of %d projects failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOut, "out", "o", "{{ .Name | snakecase }}.wav", "output file name template")
	f.StringVarP(&renderDir, "dir", "d", "", "output directory, created if needed (default: the working directory)")
	f.Float64Var(&renderTempo, "tempo", 0, "override the project tempo")
	f.BoolVar(&renderMIDI, "midi", false, "also write the MIDI clips as a .mid file next to the .wav")
	f.BoolVarP(&renderQuiet, "quiet", "q", false, "do not print progress")
	rootCmd.AddCommand(renderCmd)
}

type outputName struct {
	Name   string
	BPM    float64
	Bars   float64
	Tracks int
	Now    time.Time
}

func renderProject(ctx context.Context, path string, tmpl *template.Template) error {
	p, err := loadProject(path)
	if err != nil {
		return err
	}
	if renderTempo != 0 {
		if err := trackline.ValidateBPM(renderTempo); err != nil {
			return err
		}
		p.BPM = renderTempo
	}
	var name bytes.Buffer
	if err := tmpl.Execute(&name, outputName{Name: p.Name, BPM: p.BPM, Bars: p.LengthInBars(), Tracks: len(p.Tracks), Now: time.Now()}); err != nil {
		return errors.Wrap(err, "could not expand output name")
	}
	dir := renderDir
	if dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return errors.Wrapf(err, "could not create output directory %v", dir)
		}
	}
	dest := filepath.Join(dir, strings.TrimSpace(name.String()))
	s, err := session.New(p.Name, render.NewEnginer(renderOptions()...), session.WithProject(p))
	if err != nil {
		return err
	}
	defer s.Close()
	job, err := s.ExportAudio(ctx, dest)
	if err != nil {
		return err
	}
	for ev := range job.Events() {
		if !renderQuiet {
			fmt.Fprintf(os.Stderr, "\r%s: %3.0f%%", dest, ev.Progress*100)
		}
	}
	if !renderQuiet {
		fmt.Fprintln(os.Stderr)
	}
	if state, err := job.Result(); state != session.ExportCompleted {
		return errors.Wrapf(err, "export %v", state)
	}
	if renderMIDI {
		midiPath := strings.TrimSuffix(dest, filepath.Ext(dest)) + ".mid"
		f, err := os.Create(midiPath)
		if err != nil {
			return errors.Wrapf(err, "could not create %v", midiPath)
		}
		defer f.Close()
		snap := s.Snapshot()
		if err := midifile.Write(f, &snap); err != nil {
			return err
		}
	}
	logrus.WithField("file", dest).Info("rendered")
	return nil
}
