package render

import (
	"fmt"
	"math"

	"github.com/trackline/trackline"
)

// Player is the live audio player, run in the audio goroutine of an Engine.
// It is controlled by messages from the engine through the broker, which it
// drains once per block, and reads the latest project snapshot from the
// SnapshotSource at the start of every block. It never blocks: everything
// it sends goes through TrySend.
type Player struct {
	seq     *sequencer
	source  trackline.SnapshotSource
	project *trackline.Project // snapshot used for the previous block
	playing bool
	beat    float64 // playback position
	bpm     float64

	click     bool
	clickGain float32
	clicks    [2]*Asset // accented first beat of the bar, other beats

	reported map[string]bool // missing assets already alerted about
	broker   *Broker
}

const defaultClickGain = 0.5

func NewPlayer(broker *Broker, source trackline.SnapshotSource, bank *SampleBank, sampleRate int) *Player {
	p := &Player{
		seq:       newSequencer(bank, sampleRate),
		source:    source,
		bpm:       trackline.DefaultBPM,
		clickGain: defaultClickGain,
		clicks:    [2]*Asset{click(sampleRate, 1500), click(sampleRate, 1000)},
		reported:  make(map[string]bool),
		broker:    broker,
	}
	p.seq.missing = p.assetMissing
	return p
}

// Process renders the next block of interleaved stereo audio into buffer.
func (p *Player) Process(buffer []float32) {
	p.processMessages()
	if project := p.source.Snapshot(); project != p.project {
		if project != nil && (p.project == nil || project.BPM != p.project.BPM) {
			p.bpm = project.BPM
		}
		p.project = project
		clear(p.reported)
	}
	if !p.playing || p.bpm <= 0 {
		p.seq.mix(buffer)
		p.send(nil, buffer)
		return
	}
	framesPerBeat := float64(p.seq.sampleRate) * 60 / p.bpm
	from := p.beat
	to := from + float64(len(buffer)/2)/framesPerBeat
	if p.project != nil {
		p.seq.schedule(p.project, from, to, framesPerBeat)
	}
	if p.click {
		p.scheduleClicks(from, to, framesPerBeat)
	}
	p.seq.chase = false
	p.seq.mix(buffer)
	p.beat = to
	p.send(nil, buffer)
}

// Position returns the current playback position in beats.
func (p *Player) Position() float64 {
	return p.beat
}

func (p *Player) Playing() bool {
	return p.playing
}

func (p *Player) scheduleClicks(from, to, framesPerBeat float64) {
	beatsPerBar := trackline.DefaultBeatsPerBar
	if p.project != nil && p.project.BeatsPerBar > 0 {
		beatsPerBar = p.project.BeatsPerBar
	}
	for b := math.Ceil(from); b < to; b++ {
		a := p.clicks[1]
		if int(b)%beatsPerBar == 0 {
			a = p.clicks[0]
		}
		offset := int(math.Round((b - from) * framesPerBeat))
		p.seq.triggerAsset(a, offset, 0, a.Len(), p.clickGain)
	}
}

func (p *Player) processMessages() {
loop:
	for { // process new message
		select {
		case msg := <-p.broker.ToPlayer:
			switch m := msg.(type) {
			case startMsg:
				if !p.playing {
					p.playing = true
					p.seq.chase = true
				}
			case stopMsg:
				p.playing = false
				p.seq.reset()
			case tempoMsg:
				p.bpm = m.bpm
			case clickMsg:
				p.click = m.enabled
			case clickGainMsg:
				p.clickGain = m.gain
			case seekMsg:
				p.beat = math.Max(m.beat, 0)
				p.seq.reset()
				p.seq.chase = true
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

func (p *Player) assetMissing(path string) {
	if p.reported[path] {
		return
	}
	p.reported[path] = true
	p.send(Alert{
		Name:     "AssetMissing",
		Message:  fmt.Sprintf("sample %v is not loaded", path),
		Priority: Warning,
	}, nil)
}

// all sends from the player are non-blocking, so that the audio goroutine
// can never end up in a dead-lock
func (p *Player) send(data any, buffer []float32) {
	msg := PlayerMsg{Data: data}
	if data == nil {
		msg.HasPosition = true
		msg.Beat = p.beat
		msg.Playing = p.playing
		msg.Peak = peak(buffer, p.seq.tmp)
	}
	TrySend(p.broker.ToObserver, msg)
}
