package render

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

// WavWriter is an AudioSink that encodes interleaved stereo float32 audio
// into a PCM .wav stream. The header is finalized by Close; the underlying
// writer is not closed.
type WavWriter struct {
	enc     *wav.Encoder
	buf     audio.IntBuffer
	scale   float64
	offset  int
	written bool
}

const wavPCMFormat = 1

// NewWavWriter returns a WavWriter for stereo audio at the given sample rate
// and bit depth (8, 16, 24 or 32).
func NewWavWriter(w io.WriteSeeker, sampleRate, bitDepth int) (*WavWriter, error) {
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Errorf("unsupported bit depth %d", bitDepth)
	}
	ret := &WavWriter{
		enc:   wav.NewEncoder(w, sampleRate, bitDepth, 2, wavPCMFormat),
		scale: float64(int64(1)<<(bitDepth-1) - 1),
		buf: audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}
	if bitDepth == 8 {
		ret.offset = 128 // 8-bit wav samples are unsigned
	}
	return ret, nil
}

// WriteAudio converts the buffer to integers and encodes it.
func (w *WavWriter) WriteAudio(buffer []float32) error {
	if cap(w.buf.Data) < len(buffer) {
		w.buf.Data = make([]int, len(buffer))
	}
	w.buf.Data = w.buf.Data[:len(buffer)]
	lo, hi := -int(w.scale), int(w.scale)
	for i, v := range buffer {
		w.buf.Data[i] = clamp(int(math.Round(float64(v)*w.scale)), lo, hi) + w.offset
	}
	if err := w.enc.Write(&w.buf); err != nil {
		return errors.Wrap(err, "could not encode wav data")
	}
	w.written = true
	return nil
}

// Close writes the final header sizes.
func (w *WavWriter) Close() error {
	if !w.written {
		// the encoder writes the header only on the first Write
		if err := w.WriteAudio(nil); err != nil {
			return err
		}
	}
	if err := w.enc.Close(); err != nil {
		return errors.Wrap(err, "could not finalize wav file")
	}
	return nil
}

// DecodeWav reads a PCM .wav stream and returns its samples as interleaved
// float32 values in the range [-1, 1], together with the channel count and
// the sample rate.
func DecodeWav(r io.ReadSeeker) (data []float32, channels, sampleRate int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("not a valid wav file")
	}
	if dec.WavAudioFormat != wavPCMFormat {
		return nil, 0, 0, errors.Errorf("unsupported wav audio format %d", dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "could not decode wav data")
	}
	bitDepth := int(dec.BitDepth)
	scale := float32(1) / float32(int64(1)<<(bitDepth-1))
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}
	data = make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		data[i] = float32(v-offset) * scale
	}
	return data, int(dec.NumChans), int(dec.SampleRate), nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
