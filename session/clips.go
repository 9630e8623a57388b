package session

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/trackline/trackline"
)

// Clips is the note and clip store of a session. Like Tracks, it is only
// valid while the session is.
//
// Notes are kept and returned in the order they were added. Adding the same
// note twice keeps both copies, so that layered notes are possible.
type Clips struct {
	s *Session
}

func clip(p *trackline.Project, id trackline.ClipID) (*trackline.Clip, error) {
	t, c, ok := p.FindClip(id)
	if !ok {
		return nil, errors.Wrapf(trackline.ErrUnknownClip, "clip %d", id)
	}
	return &p.Tracks[t].Clips[c], nil
}

func midiClip(p *trackline.Project, id trackline.ClipID) (*trackline.Clip, error) {
	c, err := clip(p, id)
	if err != nil {
		return nil, err
	}
	if c.Kind != trackline.MIDIClip {
		return nil, errors.Wrapf(trackline.ErrUnknownClip, "clip %d is not a MIDI clip", id)
	}
	return c, nil
}

// CreateMidiClip adds an empty MIDI clip to a track. It fails with
// ErrUnknownTrack for an unknown track and with ErrInvalidRange for a
// non-positive length or a negative start. An empty name is replaced by
// "MIDI Clip - <track>".
func (c *Clips) CreateMidiClip(trackID trackline.TrackID, name string, startBar, lengthInBars float64) (trackline.ClipID, error) {
	var id trackline.ClipID
	err := c.s.update(func(p *trackline.Project) error {
		tr, err := track(p, trackID)
		if err != nil {
			return err
		}
		if err := trackline.ValidateRange(startBar, lengthInBars); err != nil {
			return err
		}
		if name == "" {
			name = fmt.Sprintf("MIDI Clip - %d", trackID)
		}
		id = p.NewClipID()
		tr.Clips = append(tr.Clips, trackline.Clip{
			ID:           id,
			Kind:         trackline.MIDIClip,
			Track:        trackID,
			Name:         name,
			StartBar:     startBar,
			LengthInBars: lengthInBars,
			Notes:        []trackline.Note{},
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.s.log.WithField("clip", id).Debug("midi clip created")
	return id, nil
}

// DeleteMidiClip removes a MIDI clip and its notes. It returns false when
// the clip does not exist, is not a MIDI clip or is not on the given track.
func (c *Clips) DeleteMidiClip(trackID trackline.TrackID, clipID trackline.ClipID) (bool, error) {
	deleted := false
	err := c.s.update(func(p *trackline.Project) error {
		ti := p.TrackIndex(trackID)
		if ti < 0 {
			return errNoChange
		}
		tr := &p.Tracks[ti]
		for i := range tr.Clips {
			if tr.Clips[i].ID == clipID && tr.Clips[i].Kind == trackline.MIDIClip {
				tr.Clips = append(tr.Clips[:i], tr.Clips[i+1:]...)
				deleted = true
				return nil
			}
		}
		return errNoChange
	})
	return deleted, err
}

// AddNote adds a note to a MIDI clip. It fails with ErrUnknownClip for an
// unknown clip and with ErrInvalidParameter for an out of range note.
func (c *Clips) AddNote(clipID trackline.ClipID, note trackline.Note) (bool, error) {
	if err := note.Validate(); err != nil {
		return false, err
	}
	err := c.s.update(func(p *trackline.Project) error {
		cl, err := midiClip(p, clipID)
		if err != nil {
			return err
		}
		cl.Notes = append(cl.Notes, note)
		return nil
	})
	return err == nil, err
}

// RemoveNote removes the first note, in the order they were added, with
// the given note number and start beat. It returns false when there is no
// such note or no such clip.
func (c *Clips) RemoveNote(clipID trackline.ClipID, noteNumber byte, startBeat float64) (bool, error) {
	removed := false
	err := c.s.update(func(p *trackline.Project) error {
		cl, err := midiClip(p, clipID)
		if err != nil {
			return errNoChange
		}
		for i, n := range cl.Notes {
			if n.Matches(noteNumber, startBeat) {
				cl.Notes = append(cl.Notes[:i], cl.Notes[i+1:]...)
				removed = true
				return nil
			}
		}
		return errNoChange
	})
	return removed, err
}

// Notes returns a copy of the notes of a MIDI clip, in the order they were
// added. An empty clip gives an empty slice; an unknown clip fails with
// ErrUnknownClip.
func (c *Clips) Notes(clipID trackline.ClipID) ([]trackline.Note, error) {
	var ret []trackline.Note
	err := c.s.read(func(p *trackline.Project) error {
		cl, err := midiClip(p, clipID)
		if err != nil {
			return err
		}
		ret = make([]trackline.Note, len(cl.Notes))
		copy(ret, cl.Notes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// ReplaceNotes swaps all notes of a MIDI clip at once. Either all notes are
// valid and replace the old ones, or nothing changes.
func (c *Clips) ReplaceNotes(clipID trackline.ClipID, notes []trackline.Note) error {
	for i, n := range notes {
		if err := n.Validate(); err != nil {
			return errors.Wrapf(err, "note %d", i)
		}
	}
	replacement := make([]trackline.Note, len(notes))
	copy(replacement, notes)
	return c.s.update(func(p *trackline.Project) error {
		cl, err := midiClip(p, clipID)
		if err != nil {
			return err
		}
		cl.Notes = replacement
		return nil
	})
}

// Clip returns a copy of any clip, audio or MIDI.
func (c *Clips) Clip(clipID trackline.ClipID) (trackline.Clip, error) {
	var ret trackline.Clip
	err := c.s.read(func(p *trackline.Project) error {
		cl, err := clip(p, clipID)
		if err != nil {
			return err
		}
		ret = cl.Copy()
		return nil
	})
	return ret, err
}

// MoveClip changes the time window of a clip. The length must stay
// positive.
func (c *Clips) MoveClip(clipID trackline.ClipID, startBar, lengthInBars float64) error {
	if err := trackline.ValidateRange(startBar, lengthInBars); err != nil {
		return err
	}
	return c.s.update(func(p *trackline.Project) error {
		cl, err := clip(p, clipID)
		if err != nil {
			return err
		}
		cl.StartBar, cl.LengthInBars = startBar, lengthInBars
		return nil
	})
}
