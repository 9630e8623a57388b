package trackline

import (
	"github.com/pkg/errors"
)

type (
	// Sample binds an audio file to a MIDI note number.
	Sample struct {
		Path string
		Note byte
	}

	// Sampler is a sample-playback instrument: each MIDI note plays the file
	// bound to it. Samples are kept in binding order; when a note is bound
	// more than once, the last binding wins.
	Sampler struct {
		Name    string
		Samples []Sample `yaml:",flow"`
	}

	// SamplerBuilder collects sample bindings before they are turned into an
	// immutable Sampler with Build.
	SamplerBuilder struct {
		samples []Sample
	}
)

// DrumKitBaseNote is the note number DrumKit binds its first sample to (C1,
// the General MIDI bass drum).
const DrumKitBaseNote = 36

// AddSample binds path to note. It returns the builder to allow chaining.
func (b *SamplerBuilder) AddSample(path string, note byte) *SamplerBuilder {
	b.samples = append(b.samples, Sample{Path: path, Note: note})
	return b
}

// Len returns the number of bindings added so far.
func (b *SamplerBuilder) Len() int {
	return len(b.samples)
}

// Build returns a Sampler with the bindings added so far. The builder can be
// reused afterwards; later additions do not affect already built samplers.
func (b *SamplerBuilder) Build(name string) (Sampler, error) {
	s := Sampler{Name: name, Samples: make([]Sample, len(b.samples))}
	copy(s.Samples, b.samples)
	if err := s.Validate(); err != nil {
		return Sampler{}, err
	}
	return s, nil
}

// DrumKit builds a sampler that binds the given files to consecutive notes,
// starting from DrumKitBaseNote.
func DrumKit(name string, paths ...string) (Sampler, error) {
	if DrumKitBaseNote+len(paths)-1 > MaxMIDIValue {
		return Sampler{}, errors.Wrapf(ErrInvalidParameter, "%d samples do not fit above note %d", len(paths), DrumKitBaseNote)
	}
	var b SamplerBuilder
	for i, p := range paths {
		b.AddSample(p, byte(DrumKitBaseNote+i))
	}
	return b.Build(name)
}

// Validate checks that every binding has a path and a note within 0..127.
func (s *Sampler) Validate() error {
	for i, smp := range s.Samples {
		if smp.Note > MaxMIDIValue {
			return errors.Wrapf(ErrInvalidParameter, "sample %d: note %d", i, smp.Note)
		}
		if smp.Path == "" {
			return errors.Wrapf(ErrInvalidParameter, "sample %d: empty path", i)
		}
	}
	return nil
}

// Resolve returns the effective note to file mapping. Later bindings of the
// same note override earlier ones.
func (s *Sampler) Resolve() map[byte]string {
	ret := make(map[byte]string, len(s.Samples))
	for _, smp := range s.Samples {
		ret[smp.Note] = smp.Path
	}
	return ret
}

// Paths returns every distinct file referenced by the effective mapping.
func (s *Sampler) Paths() []string {
	resolved := s.Resolve()
	seen := make(map[string]bool)
	var ret []string
	for _, smp := range s.Samples {
		if p := resolved[smp.Note]; !seen[p] {
			seen[p] = true
			ret = append(ret, p)
		}
	}
	return ret
}

// Copy makes a deep copy of a Sampler.
func (s *Sampler) Copy() Sampler {
	samples := make([]Sample, len(s.Samples))
	copy(samples, s.Samples)
	return Sampler{Name: s.Name, Samples: samples}
}
