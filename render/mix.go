package render

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// voice is one playing asset: a triggered note, an audio clip or a click.
type voice struct {
	asset     *Asset
	pos       int // next frame to read from the asset
	offset    int // frames to wait in the current block before starting
	remaining int // frames left until the note or clip ends
	gain      float32
}

// mixVoices adds the voices to buffer, which holds interleaved stereo
// frames and is cleared first. Finished voices are removed. tmp must be at
// least as long as buffer.
func mixVoices(buffer, tmp []float32, voices []voice) []voice {
	vek32.Zeros_Into(buffer, len(buffer))
	frames := len(buffer) / 2
	alive := voices[:0]
	for _, v := range voices {
		if v.offset >= frames {
			v.offset -= frames
			alive = append(alive, v)
			continue
		}
		n := min(frames-v.offset, v.asset.Len()-v.pos, v.remaining)
		if n > 0 {
			src := v.asset.Frames[2*v.pos : 2*(v.pos+n)]
			scaled := vek32.MulNumber_Into(tmp[:2*n], src, v.gain)
			vek32.Add_Inplace(buffer[2*v.offset:2*(v.offset+n)], scaled)
			v.pos += n
			v.remaining -= n
		}
		v.offset = 0
		if v.remaining > 0 && v.pos < v.asset.Len() {
			alive = append(alive, v)
		}
	}
	return alive
}

// peak returns the largest absolute sample value of buffer.
func peak(buffer, tmp []float32) float32 {
	if len(buffer) == 0 {
		return 0
	}
	t := tmp[:len(buffer)]
	copy(t, buffer)
	vek32.Abs_Inplace(t)
	return vek32.Max(t)
}

// click synthesizes a short decaying sine burst used as a metronome tick.
func click(sampleRate int, freq float64) *Asset {
	const length = 0.03
	frames := int(length * float64(sampleRate))
	data := make([]float32, 2*frames)
	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		v := float32(math.Sin(2*math.Pi*freq*t) * math.Exp(-t/length*5))
		data[2*i], data[2*i+1] = v, v
	}
	return &Asset{Path: "click", Frames: data}
}
