package render

import (
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

type (
	// Config holds the settings of an Enginer and the engines it creates.
	Config struct {
		SampleRate int
		BlockSize  int // frames per render block
		BitDepth   int // of exported .wav files
		ClickGain  float32
		Context    trackline.AudioContext // nil: render live audio to a ClockSink
		Logger     logrus.FieldLogger
	}

	Option func(*Config)
)

const (
	DefaultSampleRate = 44100
	DefaultBlockSize  = 512
	DefaultBitDepth   = 24
)

func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

func WithBlockSize(frames int) Option {
	return func(c *Config) { c.BlockSize = frames }
}

func WithBitDepth(bits int) Option {
	return func(c *Config) { c.BitDepth = bits }
}

// WithClickGain sets the volume of the click track, 0 to 1.
func WithClickGain(gain float32) Option {
	return func(c *Config) { c.ClickGain = gain }
}

// WithAudioContext sends live audio to an output of ctx.
func WithAudioContext(ctx trackline.AudioContext) Option {
	return func(c *Config) { c.Context = ctx }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) { c.Logger = l }
}

func newConfig(opts []Option) Config {
	c := Config{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
		BitDepth:   DefaultBitDepth,
		ClickGain:  defaultClickGain,
		Logger:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}
