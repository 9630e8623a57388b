package trackline

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

type (
	// TrackID identifies a track within one session. IDs start from 1, grow
	// monotonically and are never reused, even after the track is removed.
	TrackID int

	// ClipID identifies a clip within one session. Clip IDs come from their
	// own sequence, independent of track IDs.
	ClipID int

	// ClipKind tells whether a clip plays an audio file or MIDI notes.
	ClipKind int

	// Project is the whole musical state of a session: tempo, meter and the
	// tracks with their clips, notes and instruments. A Project is used as an
	// immutable snapshot once it has been published; everyone who needs to
	// change it works on a Copy.
	Project struct {
		Name        string
		BPM         float64
		BeatsPerBar int
		ClickTrack  bool    `yaml:",omitempty"`
		Tracks      []Track `yaml:",omitempty"`

		// NextTrackID and NextClipID are the next identifiers to hand out.
		// They are persisted so that restored sessions never reuse an ID that
		// was already given to a caller.
		NextTrackID TrackID `yaml:",omitempty"`
		NextClipID  ClipID  `yaml:",omitempty"`
	}

	// Track is a horizontal lane of clips with at most one instrument.
	Track struct {
		ID         TrackID
		Name       string
		Instrument *Sampler `yaml:",omitempty"`

		// Clips are kept in creation order.
		Clips []Clip `yaml:",omitempty"`
	}

	// Clip is a time region on a track. StartBar and LengthInBars are in
	// bars, so the clip keeps its musical position when the tempo changes.
	// Audio clips refer to a file with Source; MIDI clips own Notes.
	Clip struct {
		ID           ClipID
		Kind         ClipKind
		Track        TrackID
		Name         string  `yaml:",omitempty"`
		StartBar     float64 `yaml:"start"`
		LengthInBars float64 `yaml:"length"`
		Source       string  `yaml:",omitempty"`
		Notes        []Note  `yaml:",omitempty"`
	}
)

const (
	AudioClip ClipKind = iota
	MIDIClip
)

var clipKindNames = [...]string{"audio", "midi"}

func (k ClipKind) String() string {
	if k < 0 || int(k) >= len(clipKindNames) {
		return "unknown"
	}
	return clipKindNames[k]
}

func (k ClipKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(clipKindNames) {
		return nil, errors.Errorf("unknown clip kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *ClipKind) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, name := range clipKindNames {
		if s == name {
			*k = ClipKind(i)
			return nil
		}
	}
	return errors.Errorf("unknown clip kind %q", string(text))
}

// NewProject returns an empty project with the default tempo and meter.
func NewProject(name string) *Project {
	return &Project{
		Name:        name,
		BPM:         DefaultBPM,
		BeatsPerBar: DefaultBeatsPerBar,
		NextTrackID: 1,
		NextClipID:  1,
	}
}

// Copy makes a deep copy of a Project.
func (p *Project) Copy() Project {
	tracks := make([]Track, len(p.Tracks))
	for i := range p.Tracks {
		tracks[i] = p.Tracks[i].Copy()
	}
	ret := *p
	ret.Tracks = tracks
	return ret
}

// Copy makes a deep copy of a Track.
func (t *Track) Copy() Track {
	clips := make([]Clip, len(t.Clips))
	for i := range t.Clips {
		clips[i] = t.Clips[i].Copy()
	}
	ret := *t
	ret.Clips = clips
	if t.Instrument != nil {
		instr := t.Instrument.Copy()
		ret.Instrument = &instr
	}
	return ret
}

// Copy makes a deep copy of a Clip.
func (c *Clip) Copy() Clip {
	ret := *c
	if c.Notes != nil {
		ret.Notes = make([]Note, len(c.Notes))
		copy(ret.Notes, c.Notes)
	}
	return ret
}

// EndBar returns the bar where the clip ends.
func (c *Clip) EndBar() float64 {
	return c.StartBar + c.LengthInBars
}

// TimeModel returns the time model for the tempo and meter of the project.
func (p *Project) TimeModel() TimeModel {
	return TimeModel{BPM: p.BPM, BeatsPerBar: p.BeatsPerBar}
}

// TrackIndex returns the index of the track with the given ID in p.Tracks,
// or -1 if there is no such track.
func (p *Project) TrackIndex(id TrackID) int {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// FindClip returns the track and clip index of the clip with the given ID.
func (p *Project) FindClip(id ClipID) (trackIndex, clipIndex int, ok bool) {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Clips {
			if p.Tracks[i].Clips[j].ID == id {
				return i, j, true
			}
		}
	}
	return -1, -1, false
}

// LengthInBars returns the end of the last clip of the project, in bars. An
// empty project has zero length.
func (p *Project) LengthInBars() float64 {
	var ret float64
	for _, t := range p.Tracks {
		for i := range t.Clips {
			ret = math.Max(ret, t.Clips[i].EndBar())
		}
	}
	return ret
}

// LengthInBeats is LengthInBars converted to beats.
func (p *Project) LengthInBeats() float64 {
	return p.TimeModel().BarsToBeats(p.LengthInBars())
}

// NewTrackID hands out the next track ID.
func (p *Project) NewTrackID() TrackID {
	if p.NextTrackID < 1 {
		p.NextTrackID = 1
	}
	id := p.NextTrackID
	p.NextTrackID++
	return id
}

// NewClipID hands out the next clip ID.
func (p *Project) NewClipID() ClipID {
	if p.NextClipID < 1 {
		p.NextClipID = 1
	}
	id := p.NextClipID
	p.NextClipID++
	return id
}

// AssignIDs gives an ID to every track and clip that has no ID or whose ID
// is already in use, sets the owning track of every clip, and moves the ID
// counters past every ID in use. It is used after loading a project from a
// document, where IDs may have been left out or edited by hand.
func (p *Project) AssignIDs() {
	usedTracks := make(map[TrackID]bool)
	usedClips := make(map[ClipID]bool)
	var maxTrack TrackID
	var maxClip ClipID
	for _, t := range p.Tracks {
		maxTrack = max(maxTrack, t.ID)
		for _, c := range t.Clips {
			maxClip = max(maxClip, c.ID)
		}
	}
	maxTrack = max(maxTrack, p.NextTrackID-1)
	maxClip = max(maxClip, p.NextClipID-1)
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if t.ID < 1 || usedTracks[t.ID] {
			maxTrack++
			t.ID = maxTrack
		}
		usedTracks[t.ID] = true
		for j := range t.Clips {
			c := &t.Clips[j]
			if c.ID < 1 || usedClips[c.ID] {
				maxClip++
				c.ID = maxClip
			}
			usedClips[c.ID] = true
			c.Track = t.ID
		}
	}
	p.NextTrackID = maxTrack + 1
	p.NextClipID = maxClip + 1
}

// Validate checks the project invariants: positive tempo and meter, unique
// IDs, clips with a non-negative start and a positive length, and valid
// notes in MIDI clips only.
func (p *Project) Validate() error {
	if _, err := NewTimeModel(p.BPM, p.BeatsPerBar); err != nil {
		return err
	}
	tracks := make(map[TrackID]bool)
	clips := make(map[ClipID]bool)
	for _, t := range p.Tracks {
		if t.ID < 1 || tracks[t.ID] {
			return errors.Wrapf(ErrInvalidParameter, "duplicate or missing track id %d", t.ID)
		}
		tracks[t.ID] = true
		if t.Instrument != nil {
			if err := t.Instrument.Validate(); err != nil {
				return errors.Wrapf(err, "track %d", t.ID)
			}
		}
		for _, c := range t.Clips {
			if c.ID < 1 || clips[c.ID] {
				return errors.Wrapf(ErrInvalidParameter, "duplicate or missing clip id %d", c.ID)
			}
			clips[c.ID] = true
			if c.Track != t.ID {
				return errors.Wrapf(ErrInvalidParameter, "clip %d claims track %d but is on track %d", c.ID, c.Track, t.ID)
			}
			if err := ValidateRange(c.StartBar, c.LengthInBars); err != nil {
				return errors.Wrapf(err, "clip %d", c.ID)
			}
			if c.Kind != MIDIClip && len(c.Notes) > 0 {
				return errors.Wrapf(ErrInvalidParameter, "audio clip %d has notes", c.ID)
			}
			for _, n := range c.Notes {
				if err := n.Validate(); err != nil {
					return errors.Wrapf(err, "clip %d", c.ID)
				}
			}
		}
	}
	return nil
}

// ValidateRange returns ErrInvalidRange unless start is non-negative and
// length is positive, both finite.
func ValidateRange(start, length float64) error {
	if !(start >= 0) || math.IsInf(start, 0) || !(length > 0) || math.IsInf(length, 0) {
		return errors.Wrapf(ErrInvalidRange, "start %v, length %v", start, length)
	}
	return nil
}
