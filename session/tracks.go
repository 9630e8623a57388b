package session

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

// Tracks is the track registry of a session. It is only valid while the
// session is; afterwards every method fails with ErrSessionDestroyed.
type Tracks struct {
	s *Session
}

func track(p *trackline.Project, id trackline.TrackID) (*trackline.Track, error) {
	i := p.TrackIndex(id)
	if i < 0 {
		return nil, errors.Wrapf(trackline.ErrUnknownTrack, "track %d", id)
	}
	return &p.Tracks[i], nil
}

// CreateAudioTrack adds an empty track. An empty name is replaced by
// "Track <id>".
func (t *Tracks) CreateAudioTrack(name string) (trackline.TrackID, error) {
	var id trackline.TrackID
	err := t.s.update(func(p *trackline.Project) error {
		id = p.NewTrackID()
		if name == "" {
			name = fmt.Sprintf("Track %d", id)
		}
		p.Tracks = append(p.Tracks, trackline.Track{ID: id, Name: name})
		return nil
	})
	if err != nil {
		return 0, err
	}
	t.s.log.WithField("track", id).Debug("track created")
	return id, nil
}

// RemoveTrack removes the track with all its clips, notes and instrument.
// It returns false if there is no such track.
func (t *Tracks) RemoveTrack(id trackline.TrackID) (bool, error) {
	removed := false
	err := t.s.update(func(p *trackline.Project) error {
		i := p.TrackIndex(id)
		if i < 0 {
			return errNoChange
		}
		p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
		removed = true
		return nil
	})
	if removed {
		t.s.log.WithField("track", id).Debug("track removed")
	}
	return removed, err
}

// AddAudioClip places an audio file on a track. The file is not opened
// here; a missing file is reported when the project is rendered.
func (t *Tracks) AddAudioClip(id trackline.TrackID, filePath string, startBar, lengthInBars float64) (trackline.ClipID, error) {
	if filePath == "" {
		return 0, errors.Wrap(trackline.ErrInvalidParameter, "empty audio file path")
	}
	var clipID trackline.ClipID
	err := t.s.update(func(p *trackline.Project) error {
		tr, err := track(p, id)
		if err != nil {
			return err
		}
		if err := trackline.ValidateRange(startBar, lengthInBars); err != nil {
			return err
		}
		clipID = p.NewClipID()
		tr.Clips = append(tr.Clips, trackline.Clip{
			ID:           clipID,
			Kind:         trackline.AudioClip,
			Track:        id,
			Name:         filepath.Base(filePath),
			StartBar:     startBar,
			LengthInBars: lengthInBars,
			Source:       filePath,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return clipID, nil
}

// AddMidiClip is CreateMidiClip with the default name.
func (t *Tracks) AddMidiClip(id trackline.TrackID, startBar, lengthInBars float64) (trackline.ClipID, error) {
	return t.s.clips.CreateMidiClip(id, "", startBar, lengthInBars)
}

// Track returns a copy of the track.
func (t *Tracks) Track(id trackline.TrackID) (trackline.Track, error) {
	var ret trackline.Track
	err := t.s.read(func(p *trackline.Project) error {
		tr, err := track(p, id)
		if err != nil {
			return err
		}
		ret = tr.Copy()
		return nil
	})
	return ret, err
}

// List returns copies of all tracks in creation order.
func (t *Tracks) List() ([]trackline.Track, error) {
	var ret []trackline.Track
	err := t.s.read(func(p *trackline.Project) error {
		ret = make([]trackline.Track, len(p.Tracks))
		for i := range p.Tracks {
			ret[i] = p.Tracks[i].Copy()
		}
		return nil
	})
	return ret, err
}

func (t *Tracks) Rename(id trackline.TrackID, name string) error {
	return t.s.update(func(p *trackline.Project) error {
		tr, err := track(p, id)
		if err != nil {
			return err
		}
		tr.Name = name
		return nil
	})
}

// BindSampler makes sampler the instrument of the track, replacing any
// previous one. The render engine sees either the old or the new
// instrument, never a mix of both.
func (t *Tracks) BindSampler(id trackline.TrackID, sampler trackline.Sampler) error {
	if err := sampler.Validate(); err != nil {
		return err
	}
	instr := sampler.Copy()
	err := t.s.update(func(p *trackline.Project) error {
		tr, err := track(p, id)
		if err != nil {
			return err
		}
		tr.Instrument = &instr
		return nil
	})
	if err == nil {
		t.s.log.WithFields(logrus.Fields{"track": id, "samples": len(instr.Samples)}).Debug("sampler bound")
	}
	return err
}

// UnbindInstrument removes the instrument of the track. It returns false if
// the track had no instrument.
func (t *Tracks) UnbindInstrument(id trackline.TrackID) (bool, error) {
	removed := false
	err := t.s.update(func(p *trackline.Project) error {
		tr, err := track(p, id)
		if err != nil {
			return err
		}
		if tr.Instrument == nil {
			return errNoChange
		}
		tr.Instrument = nil
		removed = true
		return nil
	})
	return removed, err
}
