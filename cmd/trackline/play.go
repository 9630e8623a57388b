package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/oto"
	"github.com/trackline/trackline/render"
	"github.com/trackline/trackline/session"
)

var (
	playClick bool
	playTempo float64
	playFrom  float64
	playQuiet bool
)

var playCmd = &cobra.Command{
	Use:   "play [flags] project",
	Short: "Play a project on the default audio device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(args[0])
		if err != nil {
			return err
		}
		audio, err := oto.NewContext(sampleRate)
		if err != nil {
			return errors.Wrap(err, "could not open audio device")
		}
		defer audio.Close()
		cfg := render.NewEnginer(renderOptions(render.WithAudioContext(audio))...).Config()
		var engine *render.Engine
		enginer := enginerFunc(func(name string, source trackline.SnapshotSource) (trackline.Engine, error) {
			e, err := render.NewEngine(name, source, cfg)
			if err != nil {
				return nil, err
			}
			engine = e
			return e, nil
		})
		s, err := session.New(p.Name, enginer, session.WithProject(p))
		if err != nil {
			return err
		}
		defer s.Close()
		if playTempo != 0 {
			if err := s.SetTempo(playTempo); err != nil {
				return err
			}
		}
		if err := s.SetClickTrack(playClick); err != nil {
			return err
		}
		tm := s.TimeModel()
		if playFrom > 0 {
			if err := engine.Seek(tm.BarsToBeats(playFrom)); err != nil {
				return err
			}
		}
		if err := s.Start(); err != nil {
			return err
		}
		length := tm.BarsToSeconds(max(p.LengthInBars()-playFrom, 0))
		end := time.After(time.Duration(length * float64(time.Second)))
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-end:
				if !playQuiet {
					fmt.Fprintln(os.Stderr)
				}
				return nil
			case msg := <-engine.Messages():
				if alert, ok := msg.Data.(render.Alert); ok {
					logrus.WithField("alert", alert.Name).Warn(alert.Message)
				}
				if msg.HasPosition && !playQuiet {
					bar := tm.BeatsToBars(msg.Beat)
					fmt.Fprintf(os.Stderr, "\rbar %6.2f  peak %5.2f", bar+1, msg.Peak)
				}
			}
		}
	},
}

func init() {
	f := playCmd.Flags()
	f.BoolVar(&playClick, "click", false, "play the click track")
	f.Float64Var(&playTempo, "tempo", 0, "override the project tempo")
	f.Float64Var(&playFrom, "from", 0, "start playing from this bar")
	f.BoolVarP(&playQuiet, "quiet", "q", false, "do not print the position")
	rootCmd.AddCommand(playCmd)
}

// enginerFunc lets a function serve as a trackline.Enginer.
type enginerFunc func(name string, source trackline.SnapshotSource) (trackline.Engine, error)

func (f enginerFunc) Engine(name string, source trackline.SnapshotSource) (trackline.Engine, error) {
	return f(name, source)
}
