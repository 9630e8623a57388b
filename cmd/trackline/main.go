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
	"github.com/trackline/trackline/render"
	"github.com/trackline/trackline/version"
)

var (
	logLevel   string
	sampleRate int
	blockSize  int
	bitDepth   int
	clickGain  float32
)

var rootCmd = &cobra.Command{
	Use:           "trackline",
	Short:         "Multitrack sequencer and renderer",
	Long:          `trackline plays, renders and serves multitrack projects made of audio clips and sampler-driven MIDI clips.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.IntVar(&sampleRate, "sample-rate", render.DefaultSampleRate, "sample rate in Hz")
	f.IntVar(&blockSize, "block-size", render.DefaultBlockSize, "frames per render block")
	f.IntVar(&bitDepth, "bit-depth", render.DefaultBitDepth, "bits per sample of rendered .wav files: 8, 16, 24 or 32")
	f.Float32Var(&clickGain, "click-gain", 0.5, "volume of the click track, 0 to 1")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

// renderOptions turns the global flags into render engine options.
func renderOptions(extra ...render.Option) []render.Option {
	opts := []render.Option{
		render.WithSampleRate(sampleRate),
		render.WithBlockSize(blockSize),
		render.WithBitDepth(bitDepth),
		render.WithClickGain(clickGain),
		render.WithLogger(logrus.StandardLogger()),
	}
	return append(opts, extra...)
}

// loadProject reads a project document (.yml, .yaml or .json) or a
// Standard MIDI File (.mid, .midi).
func loadProject(path string) (*trackline.Project, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mid", ".midi":
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "could not open %v", path)
		}
		defer f.Close()
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return midifile.Read(f, name)
	}
	return trackline.LoadProjectFile(path)
}
