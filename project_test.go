package trackline_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/trackline/trackline"
)

func testProject() *trackline.Project {
	p := trackline.NewProject("demo")
	drums, _ := trackline.DrumKit("drums", "kick.wav", "snare.wav")
	p.Tracks = []trackline.Track{
		{
			ID:         p.NewTrackID(),
			Name:       "Drums",
			Instrument: &drums,
		},
		{
			ID:   p.NewTrackID(),
			Name: "Vocals",
		},
	}
	p.Tracks[0].Clips = []trackline.Clip{{
		ID:           p.NewClipID(),
		Kind:         trackline.MIDIClip,
		Track:        p.Tracks[0].ID,
		Name:         "Beat",
		LengthInBars: 2,
		Notes: []trackline.Note{
			{Number: 36, Start: 0, Length: 0.5, Velocity: 100},
			{Number: 38, Start: 1, Length: 0.5, Velocity: 90, Mute: true},
		},
	}}
	p.Tracks[1].Clips = []trackline.Clip{{
		ID:           p.NewClipID(),
		Kind:         trackline.AudioClip,
		Track:        p.Tracks[1].ID,
		StartBar:     1,
		LengthInBars: 3,
		Source:       "vocals.wav",
	}}
	return p
}

func TestProjectCopyIsDeep(t *testing.T) {
	p := testProject()
	c := p.Copy()
	if !reflect.DeepEqual(*p, c) {
		t.Fatalf("copy differs from original")
	}
	c.Tracks[0].Clips[0].Notes[0].Velocity = 1
	c.Tracks[0].Instrument.Samples[0].Path = "other.wav"
	c.Tracks[1].Name = "renamed"
	if p.Tracks[0].Clips[0].Notes[0].Velocity != 100 {
		t.Errorf("modifying a copied note changed the original")
	}
	if p.Tracks[0].Instrument.Samples[0].Path != "kick.wav" {
		t.Errorf("modifying a copied instrument changed the original")
	}
	if p.Tracks[1].Name != "Vocals" {
		t.Errorf("modifying a copied track changed the original")
	}
}

func TestProjectLengthAndLookup(t *testing.T) {
	p := testProject()
	if l := p.LengthInBars(); l != 4 {
		t.Errorf("LengthInBars: got %v, expected 4", l)
	}
	if l := p.LengthInBeats(); l != 16 {
		t.Errorf("LengthInBeats: got %v, expected 16", l)
	}
	if i := p.TrackIndex(2); i != 1 {
		t.Errorf("TrackIndex(2): got %v, expected 1", i)
	}
	if i := p.TrackIndex(99); i != -1 {
		t.Errorf("TrackIndex(99): got %v, expected -1", i)
	}
	ti, ci, ok := p.FindClip(2)
	if !ok || ti != 1 || ci != 0 {
		t.Errorf("FindClip(2): got %v %v %v", ti, ci, ok)
	}
	if _, _, ok := p.FindClip(3); ok {
		t.Errorf("FindClip(3) should fail")
	}
	if l := trackline.NewProject("empty").LengthInBars(); l != 0 {
		t.Errorf("empty project length: got %v, expected 0", l)
	}
}

func TestProjectAssignIDs(t *testing.T) {
	p := trackline.Project{
		BPM:         120,
		BeatsPerBar: 4,
		Tracks: []trackline.Track{
			{ID: 3, Clips: []trackline.Clip{{ID: 5, LengthInBars: 1}, {ID: 5, LengthInBars: 1}}},
			{ID: 3},
			{},
		},
	}
	p.AssignIDs()
	ids := []trackline.TrackID{p.Tracks[0].ID, p.Tracks[1].ID, p.Tracks[2].ID}
	if !reflect.DeepEqual(ids, []trackline.TrackID{3, 4, 5}) {
		t.Errorf("track ids: got %v", ids)
	}
	if a, b := p.Tracks[0].Clips[0].ID, p.Tracks[0].Clips[1].ID; a != 5 || b != 6 {
		t.Errorf("clip ids: got %v %v, expected 5 6", a, b)
	}
	if c := p.Tracks[0].Clips[1].Track; c != 3 {
		t.Errorf("clip owner: got %v, expected 3", c)
	}
	if p.NextTrackID != 6 || p.NextClipID != 7 {
		t.Errorf("counters: got %v %v, expected 6 7", p.NextTrackID, p.NextClipID)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate after AssignIDs: %v", err)
	}
}

func TestProjectValidate(t *testing.T) {
	p := testProject()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid project rejected: %v", err)
	}
	p.Tracks[1].Clips[0].LengthInBars = 0
	if err := p.Validate(); !errors.Is(err, trackline.ErrInvalidRange) {
		t.Errorf("zero length clip: expected ErrInvalidRange, got %v", err)
	}
	p = testProject()
	p.Tracks[0].Clips[0].Notes[0].Number = 200
	if err := p.Validate(); !errors.Is(err, trackline.ErrInvalidParameter) {
		t.Errorf("note 200: expected ErrInvalidParameter, got %v", err)
	}
}

func TestProjectDocumentRoundTrip(t *testing.T) {
	p := testProject()
	var buf bytes.Buffer
	if err := trackline.WriteProject(&buf, p); err != nil {
		t.Fatalf("WriteProject failed: %v", err)
	}
	if !strings.Contains(buf.String(), "kind: midi") {
		t.Errorf("clip kind not written as text:\n%s", buf.String())
	}
	q, err := trackline.ReadProject(&buf)
	if err != nil {
		t.Fatalf("ReadProject failed: %v", err)
	}
	if !reflect.DeepEqual(p, q) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", q, p)
	}
}

func TestUnmarshalProjectDefaults(t *testing.T) {
	doc := `
name: sketch
tracks:
  - name: Bass
    clips:
      - kind: midi
        length: 1
        notes:
          - {note: 40, start: 0, length: 1, velocity: 100}
`
	p, err := trackline.UnmarshalProject([]byte(doc))
	if err != nil {
		t.Fatalf("UnmarshalProject failed: %v", err)
	}
	if p.BPM != trackline.DefaultBPM || p.BeatsPerBar != trackline.DefaultBeatsPerBar {
		t.Errorf("defaults: got %v bpm %v beats per bar", p.BPM, p.BeatsPerBar)
	}
	if p.Tracks[0].ID != 1 || p.Tracks[0].Clips[0].ID != 1 || p.Tracks[0].Clips[0].Track != 1 {
		t.Errorf("ids not assigned: %+v", p.Tracks[0])
	}
	if _, err := trackline.UnmarshalProject([]byte("bpm: -3")); !errors.Is(err, trackline.ErrInvalidParameter) {
		t.Errorf("negative bpm: expected ErrInvalidParameter, got %v", err)
	}
}
