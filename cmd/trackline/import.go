package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/midifile"
)

var (
	importOut   string
	importForce bool
)

var importCmd = &cobra.Command{
	Use:   "import [flags] file.mid",
	Short: "Convert a Standard MIDI File into a project document",
	Long: `Convert a Standard MIDI File into a project document.

Each MIDI track with notes becomes a track with one MIDI clip. The tempo and
meter come from the first tempo and time signature events. Instruments are
not imported; bind them afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		f, err := os.Open(in)
		if err != nil {
			return errors.Wrapf(err, "could not open %v", in)
		}
		defer f.Close()
		p, err := midifile.Read(f, strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)))
		if err != nil {
			return errors.Wrapf(err, "%v", in)
		}
		out := importOut
		if out == "" {
			out = strings.TrimSuffix(in, filepath.Ext(in)) + ".yml"
		}
		if !importForce {
			if _, err := os.Stat(out); err == nil {
				return errors.Errorf("%v already exists, use --force to overwrite", out)
			}
		}
		if err := trackline.SaveProjectFile(out, p); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"file": out, "tracks": len(p.Tracks)}).Info("imported")
		return nil
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&importOut, "out", "o", "", "output project file, .yml or .json (default: next to the input)")
	f.BoolVarP(&importForce, "force", "f", false, "overwrite an existing output file")
	rootCmd.AddCommand(importCmd)
}
