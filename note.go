package trackline

import (
	"math"

	"github.com/pkg/errors"
)

// Note is a single MIDI note inside a MIDI clip. Start is measured in beats
// from the start of the owning clip.
type Note struct {
	Number   byte    `yaml:"note" json:"note"`
	Start    float64 `json:"start"`
	Length   float64 `json:"length"`
	Velocity byte    `json:"velocity"`
	Color    byte    `yaml:",omitempty" json:"color,omitempty"`
	Mute     bool    `yaml:",omitempty" json:"mute,omitempty"`
}

// MaxMIDIValue is the largest note number or velocity a Note can carry.
const MaxMIDIValue = 127

// beatEpsilon is the tolerance used when matching notes by start beat.
const beatEpsilon = 1e-6

// Validate checks the note fields are in range: note number and velocity
// within 0..127, a non-negative start and a positive length.
func (n Note) Validate() error {
	switch {
	case n.Number > MaxMIDIValue:
		return errors.Wrapf(ErrInvalidParameter, "note number %d", n.Number)
	case n.Velocity > MaxMIDIValue:
		return errors.Wrapf(ErrInvalidParameter, "velocity %d", n.Velocity)
	case !(n.Start >= 0) || math.IsInf(n.Start, 0):
		return errors.Wrapf(ErrInvalidParameter, "note start %v", n.Start)
	case !(n.Length > 0) || math.IsInf(n.Length, 0):
		return errors.Wrapf(ErrInvalidParameter, "note length %v", n.Length)
	}
	return nil
}

// Matches reports whether the note has the given composite key.
func (n Note) Matches(number byte, start float64) bool {
	return n.Number == number && math.Abs(n.Start-start) < beatEpsilon
}

// End returns the beat (relative to the clip) where the note stops.
func (n Note) End() float64 {
	return n.Start + n.Length
}
