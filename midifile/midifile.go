// Package midifile converts between trackline projects and Standard MIDI
// Files.
package midifile

import (
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/trackline/trackline"
)

// Resolution is the number of ticks per quarter note in written files.
const Resolution = 960

// Write writes the MIDI clips of p as a type 1 Standard MIDI File: a
// conductor track with the tempo and meter, then one track per project track
// that has MIDI clips. Notes are cut at the end of their clip and muted notes
// are left out. Audio clips are ignored.
func Write(w io.Writer, p *trackline.Project) error {
	if _, err := trackline.NewTimeModel(p.BPM, p.BeatsPerBar); err != nil {
		return err
	}
	if p.BeatsPerBar > math.MaxUint8 {
		return errors.Wrapf(trackline.ErrInvalidParameter, "%d beats per bar do not fit in a MIDI meter", p.BeatsPerBar)
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(Resolution)
	var conductor smf.Track
	conductor.Add(0, smf.MetaTrackSequenceName(p.Name))
	conductor.Add(0, smf.MetaMeter(uint8(p.BeatsPerBar), 4))
	conductor.Add(0, smf.MetaTempo(p.BPM))
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return errors.Wrap(err, "cannot add conductor track")
	}
	channel := uint8(0)
	for _, t := range p.Tracks {
		events := trackEvents(&t, p.BeatsPerBar)
		if events == nil {
			continue
		}
		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(t.Name))
		var last uint32
		for _, e := range events {
			msg := midi.NoteOff(channel, e.key)
			if e.on {
				msg = midi.NoteOn(channel, e.key, e.velocity)
			}
			track.Add(e.tick-last, msg)
			last = e.tick
		}
		track.Close(0)
		if err := sm.Add(track); err != nil {
			return errors.Wrapf(err, "cannot add track %q", t.Name)
		}
		channel = (channel + 1) % 16
	}
	if _, err := sm.WriteTo(w); err != nil {
		return errors.Wrap(err, "cannot write MIDI file")
	}
	return nil
}

type event struct {
	tick     uint32
	on       bool
	key      uint8
	velocity uint8
}

// trackEvents returns the note events of all MIDI clips on the track sorted
// by time, note offs before note ons on the same tick. It returns nil when
// the track has no MIDI clips.
func trackEvents(t *trackline.Track, beatsPerBar int) []event {
	var events []event
	hasMIDI := false
	for _, c := range t.Clips {
		if c.Kind != trackline.MIDIClip {
			continue
		}
		hasMIDI = true
		clipStart := c.StartBar * float64(beatsPerBar)
		clipLength := c.LengthInBars * float64(beatsPerBar)
		for _, n := range c.Notes {
			if n.Mute || n.Start >= clipLength || n.Velocity == 0 {
				continue
			}
			end := min(n.End(), clipLength)
			on, off := ticks(clipStart+n.Start), ticks(clipStart+end)
			if off <= on {
				off = on + 1
			}
			events = append(events,
				event{tick: on, on: true, key: n.Number, velocity: n.Velocity},
				event{tick: off, key: n.Number})
		}
	}
	if !hasMIDI {
		return nil
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return !events[i].on && events[j].on
	})
	if events == nil {
		events = []event{}
	}
	return events
}

func ticks(beats float64) uint32 {
	return uint32(math.Round(beats * Resolution))
}

// Read reads a Standard MIDI File into a new project called name. The first
// tempo and meter found become the project tempo and meter. Every file track
// with notes becomes a project track holding one MIDI clip that starts at bar
// 0 and spans the notes, rounded up to whole bars. Notes still sounding at the
// end of a track are ended there.
func Read(r io.Reader, name string) (*trackline.Project, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read MIDI file")
	}
	mt, ok := sm.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return nil, errors.Wrap(trackline.ErrInvalidParameter, "only metric time MIDI files are supported")
	}
	resolution := float64(mt)
	p := trackline.NewProject(name)
	tempoFound, meterFound := false, false
	for i, track := range sm.Tracks {
		var (
			abs      uint64
			title    string
			notes    []trackline.Note
			sounding = map[uint8][]int{} // key -> indices of open notes
		)
		end := func(key uint8, at float64) {
			open := sounding[key]
			if len(open) == 0 {
				return
			}
			n := &notes[open[0]]
			n.Length = max(at-n.Start, 1/resolution)
			sounding[key] = open[1:]
		}
		for _, ev := range track {
			abs += uint64(ev.Delta)
			beat := float64(abs) / resolution
			var (
				ch, key, vel uint8
				bpm          float64
				num, denom   uint8
				text         string
			)
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel):
				if vel == 0 {
					end(key, beat)
					break
				}
				sounding[key] = append(sounding[key], len(notes))
				notes = append(notes, trackline.Note{Number: key, Start: beat, Velocity: vel})
			case ev.Message.GetNoteOff(&ch, &key, &vel):
				end(key, beat)
			case ev.Message.GetMetaTempo(&bpm):
				if !tempoFound && bpm > 0 {
					p.BPM, tempoFound = bpm, true
				}
			case ev.Message.GetMetaMeter(&num, &denom):
				if !meterFound && num > 0 {
					p.BeatsPerBar, meterFound = int(num), true
				}
			case ev.Message.GetMetaTrackName(&text):
				if title == "" {
					title = text
				}
			}
		}
		trackEnd := float64(abs) / resolution
		for key := range sounding {
			for len(sounding[key]) > 0 {
				end(key, trackEnd)
			}
		}
		if len(notes) == 0 {
			continue
		}
		if title == "" {
			title = "MIDI Track " + strconv.Itoa(i)
		}
		p.Tracks = append(p.Tracks, trackline.Track{ID: p.NewTrackID(), Name: title})
		t := &p.Tracks[len(p.Tracks)-1]
		t.Clips = []trackline.Clip{{
			ID:    p.NewClipID(),
			Kind:  trackline.MIDIClip,
			Track: t.ID,
			Name:  title,
			Notes: notes,
		}}
	}
	for i := range p.Tracks {
		c := &p.Tracks[i].Clips[0]
		var last float64
		for _, n := range c.Notes {
			last = max(last, n.End())
		}
		c.LengthInBars = max(1, math.Ceil(last/float64(p.BeatsPerBar)-1e-9))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
