package oto

import (
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"

	"github.com/trackline/trackline"
)

type (
	// OtoContext is a trackline.AudioContext playing through the default
	// audio device.
	OtoContext struct {
		context *oto.Context
	}

	// OtoOutput streams audio written with WriteAudio to an oto player.
	// WriteAudio blocks while the device buffer is full, which paces the
	// engine's audio goroutine.
	OtoOutput struct {
		player    *oto.Player
		pipe      *io.PipeWriter
		tmpBuffer []byte
	}
)

const otoBufferSize = 100 * time.Millisecond

// NewContext opens the audio device for stereo playback at the given sample
// rate. Only one context can exist per process.
func NewContext(sampleRate int) (*OtoContext, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   otoBufferSize,
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create oto context")
	}
	<-ready
	return &OtoContext{context: context}, nil
}

func (c *OtoContext) Output() trackline.AudioSink {
	r, w := io.Pipe()
	player := c.context.NewPlayer(r)
	player.Play()
	return &OtoOutput{player: player, pipe: w}
}

// Close suspends the device; oto contexts cannot be destroyed.
func (c *OtoContext) Close() error {
	if err := c.context.Suspend(); err != nil {
		return errors.Wrap(err, "cannot suspend oto context")
	}
	return nil
}

func (o *OtoOutput) WriteAudio(floatBuffer []float32) error {
	// we reuse the old capacity tmpBuffer by setting its length to zero. then,
	// we save the tmpBuffer so we can reuse it next time
	o.tmpBuffer = FloatBufferToFloat32LE(floatBuffer, o.tmpBuffer[:0])
	if _, err := o.pipe.Write(o.tmpBuffer); err != nil {
		return errors.Wrap(err, "cannot write to player")
	}
	return nil
}

// Close disposes of resources
func (o *OtoOutput) Close() error {
	o.pipe.Close()
	if err := o.player.Close(); err != nil {
		return errors.Wrap(err, "cannot close oto player")
	}
	return nil
}
