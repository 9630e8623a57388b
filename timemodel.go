package trackline

import (
	"math"

	"github.com/pkg/errors"
)

const (
	DefaultBPM         = 120.0
	DefaultBeatsPerBar = 4
)

// TimeModel converts musical positions (bars and beats) to seconds and audio
// frames for a fixed tempo. Clips and notes are stored in musical units, so
// a tempo change only requires constructing a new TimeModel; the stored
// project data stays untouched.
type TimeModel struct {
	BPM         float64
	BeatsPerBar int
}

// NewTimeModel returns a TimeModel, rejecting non-positive or non-finite
// tempos and non-positive bar lengths with ErrInvalidParameter.
func NewTimeModel(bpm float64, beatsPerBar int) (TimeModel, error) {
	if err := ValidateBPM(bpm); err != nil {
		return TimeModel{}, err
	}
	if beatsPerBar < 1 {
		return TimeModel{}, errors.Wrapf(ErrInvalidParameter, "beats per bar %d", beatsPerBar)
	}
	return TimeModel{BPM: bpm, BeatsPerBar: beatsPerBar}, nil
}

// ValidateBPM returns ErrInvalidParameter unless bpm is finite and positive.
func ValidateBPM(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return errors.Wrapf(ErrInvalidParameter, "tempo %v bpm", bpm)
	}
	return nil
}

func (t TimeModel) beatsPerBar() float64 {
	if t.BeatsPerBar < 1 {
		return DefaultBeatsPerBar
	}
	return float64(t.BeatsPerBar)
}

// SecondsPerBeat returns the duration of one beat.
func (t TimeModel) SecondsPerBeat() float64 {
	return 60 / t.BPM
}

func (t TimeModel) BarsToBeats(bars float64) float64 {
	return bars * t.beatsPerBar()
}

func (t TimeModel) BeatsToBars(beats float64) float64 {
	return beats / t.beatsPerBar()
}

func (t TimeModel) BeatsToSeconds(beats float64) float64 {
	return beats * t.SecondsPerBeat()
}

func (t TimeModel) BarsToSeconds(bars float64) float64 {
	return t.BeatsToSeconds(t.BarsToBeats(bars))
}

func (t TimeModel) SecondsToBeats(seconds float64) float64 {
	return seconds * t.BPM / 60
}

// BeatsToFrames returns the number of audio frames spanned by the given
// number of beats, rounded to the nearest frame.
func (t TimeModel) BeatsToFrames(beats float64, sampleRate int) int {
	return Frames(t.BeatsToSeconds(beats), sampleRate)
}

// FramesToBeats is the inverse of BeatsToFrames (without the rounding).
func (t TimeModel) FramesToBeats(frames int, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return t.SecondsToBeats(float64(frames) / float64(sampleRate))
}

// Frames converts seconds to a whole number of frames at sampleRate.
func Frames(seconds float64, sampleRate int) int {
	if seconds <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(math.Round(seconds * float64(sampleRate)))
}
