package render

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trackline/trackline"
)

type (
	// Asset is a decoded audio file: interleaved stereo float32 frames at
	// the sample rate of the bank that loaded it.
	Asset struct {
		Path   string
		Frames []float32
	}

	// SampleBank decodes and caches the audio files used by a project. The
	// render path only calls Get, which never touches the disk; loading is
	// done ahead of time with Load or Preload.
	SampleBank struct {
		sampleRate int
		assets     sync.Map // string -> *Asset
	}
)

func NewSampleBank(sampleRate int) *SampleBank {
	return &SampleBank{sampleRate: sampleRate}
}

// Len returns the number of frames of the asset.
func (a *Asset) Len() int {
	return len(a.Frames) / 2
}

// Get returns an already loaded asset.
func (b *SampleBank) Get(path string) (*Asset, bool) {
	v, ok := b.assets.Load(path)
	if !ok {
		return nil, false
	}
	return v.(*Asset), true
}

// Load returns the asset for path, decoding it if it is not cached yet.
// Files ending with .mp3 are decoded as MP3, everything else as WAV.
func (b *SampleBank) Load(path string) (*Asset, error) {
	if a, ok := b.Get(path); ok {
		return a, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open sample %v", path)
	}
	defer f.Close()
	var data []float32
	var channels, sampleRate int
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		data, sampleRate, err = decodeMP3(f)
		channels = 2
	} else {
		data, channels, sampleRate, err = DecodeWav(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode sample %v", path)
	}
	a := &Asset{Path: path, Frames: resample(toStereo(data, channels), sampleRate, b.sampleRate)}
	actual, _ := b.assets.LoadOrStore(path, a)
	return actual.(*Asset), nil
}

// Preload loads all the given files in parallel. It returns the first error
// encountered; the remaining loads are cancelled.
func (b *SampleBank) Preload(ctx context.Context, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, p := range paths {
		if _, ok := b.Get(p); ok {
			continue
		}
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := b.Load(p)
			return err
		})
	}
	return g.Wait()
}

// Forget drops every cached asset that is not in keep.
func (b *SampleBank) Forget(keep []string) {
	k := make(map[string]bool, len(keep))
	for _, p := range keep {
		k[p] = true
	}
	b.assets.Range(func(key, _ any) bool {
		if !k[key.(string)] {
			b.assets.Delete(key)
		}
		return true
	})
}

// Subset returns a new bank with the same sample rate that holds the
// already loaded assets among paths. Assets are immutable once loaded, so
// they are shared, not copied.
func (b *SampleBank) Subset(paths []string) *SampleBank {
	ret := NewSampleBank(b.sampleRate)
	for _, p := range paths {
		if a, ok := b.Get(p); ok {
			ret.assets.Store(p, a)
		}
	}
	return ret
}

// AssetPaths returns every audio file the project refers to: audio clip
// sources and the samples of every bound sampler, without duplicates.
func AssetPaths(p *trackline.Project) []string {
	seen := make(map[string]bool)
	var ret []string
	add := func(path string) {
		if path != "" && !seen[path] {
			seen[path] = true
			ret = append(ret, path)
		}
	}
	for _, t := range p.Tracks {
		if t.Instrument != nil {
			for _, path := range t.Instrument.Paths() {
				add(path)
			}
		}
		for _, c := range t.Clips {
			if c.Kind == trackline.AudioClip {
				add(c.Source)
			}
		}
	}
	return ret
}

func decodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	b, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	// the decoder always outputs 16-bit little-endian stereo
	data := make([]float32, len(b)/2)
	for i := range data {
		data[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768
	}
	return data, dec.SampleRate(), nil
}

// toStereo converts interleaved audio with any number of channels to
// stereo. Mono is duplicated to both channels; channels beyond the second are
// dropped.
func toStereo(data []float32, channels int) []float32 {
	switch {
	case channels == 2:
		return data
	case channels < 1:
		return nil
	}
	frames := len(data) / channels
	ret := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		l := data[i*channels]
		r := l
		if channels > 1 {
			r = data[i*channels+1]
		}
		ret[2*i], ret[2*i+1] = l, r
	}
	return ret
}

// resample converts stereo audio between sample rates using linear
// interpolation.
func resample(data []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(data) < 4 {
		return data
	}
	inFrames := len(data) / 2
	outFrames := int(int64(inFrames) * int64(to) / int64(from))
	ret := make([]float32, outFrames*2)
	step := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := float32(pos - float64(j))
		if j >= inFrames-1 {
			j, frac = inFrames-2, 1
		}
		for c := 0; c < 2; c++ {
			a, b := data[2*j+c], data[2*(j+1)+c]
			ret[2*i+c] = a + (b-a)*frac
		}
	}
	return ret
}
