package render

import (
	"math"

	"github.com/trackline/trackline"
)

// sequencer turns a project into voices, one render block at a time. It is
// shared by the live player and the offline export, so both render the
// same project identically.
type sequencer struct {
	bank       *SampleBank
	sampleRate int
	voices     []voice
	tmp        []float32

	// chase is set when playback (re)starts in the middle of the project:
	// audio clips that already started are then picked up from the right
	// position instead of being skipped.
	chase bool

	project  *trackline.Project
	resolved map[*trackline.Sampler]map[byte]string

	// missing is called with the path of an asset that is not loaded.
	missing func(path string)
}

func newSequencer(bank *SampleBank, sampleRate int) *sequencer {
	return &sequencer{bank: bank, sampleRate: sampleRate}
}

// render fills buffer with the audio of p from the given beat onwards and
// returns the beat where the next block starts.
func (s *sequencer) render(buffer []float32, p *trackline.Project, beat, bpm float64) float64 {
	framesPerBeat := float64(s.sampleRate) * 60 / bpm
	end := beat + float64(len(buffer)/2)/framesPerBeat
	if p != nil {
		s.schedule(p, beat, end, framesPerBeat)
	}
	s.chase = false
	s.mix(buffer)
	return end
}

func (s *sequencer) mix(buffer []float32) {
	if cap(s.tmp) < len(buffer) {
		s.tmp = make([]float32, len(buffer))
	}
	s.voices = mixVoices(buffer, s.tmp[:len(buffer)], s.voices)
}

// reset stops every voice.
func (s *sequencer) reset() {
	s.voices = s.voices[:0]
}

func (s *sequencer) trigger(path string, offset, pos, length int, gain float32) {
	if length <= 0 || path == "" {
		return
	}
	asset, ok := s.bank.Get(path)
	if !ok {
		if s.missing != nil {
			s.missing(path)
		}
		return
	}
	s.triggerAsset(asset, offset, pos, length, gain)
}

func (s *sequencer) triggerAsset(asset *Asset, offset, pos, length int, gain float32) {
	s.voices = append(s.voices, voice{asset: asset, offset: offset, pos: pos, remaining: length, gain: gain})
}

// schedule triggers everything that starts within [from, to) beats.
func (s *sequencer) schedule(p *trackline.Project, from, to, framesPerBeat float64) {
	if s.project != p {
		s.project = p
		s.resolved = make(map[*trackline.Sampler]map[byte]string)
	}
	frames := func(beats float64) int {
		return int(math.Round(beats * framesPerBeat))
	}
	tm := p.TimeModel()
	for i := range p.Tracks {
		t := &p.Tracks[i]
		for j := range t.Clips {
			c := &t.Clips[j]
			start, end := tm.BarsToBeats(c.StartBar), tm.BarsToBeats(c.EndBar())
			if end <= from || start >= to {
				continue
			}
			switch c.Kind {
			case trackline.AudioClip:
				if start >= from {
					s.trigger(c.Source, frames(start-from), 0, frames(end-start), 1)
				} else if s.chase {
					s.trigger(c.Source, 0, frames(from-start), frames(end-from), 1)
				}
			case trackline.MIDIClip:
				if t.Instrument == nil {
					continue
				}
				samples := s.resolve(t.Instrument)
				for _, n := range c.Notes {
					noteStart := start + n.Start
					if n.Mute || noteStart < from || noteStart >= to || noteStart >= end {
						continue
					}
					path, ok := samples[n.Number]
					if !ok {
						continue
					}
					noteEnd := math.Min(noteStart+n.Length, end)
					s.trigger(path, frames(noteStart-from), 0, frames(noteEnd-noteStart), float32(n.Velocity)/trackline.MaxMIDIValue)
				}
			}
		}
	}
}

func (s *sequencer) resolve(instr *trackline.Sampler) map[byte]string {
	if m, ok := s.resolved[instr]; ok {
		return m
	}
	m := instr.Resolve()
	s.resolved[instr] = m
	return m
}
