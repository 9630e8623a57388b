package render

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/trackline/trackline"
)

type staticSource struct {
	project *trackline.Project
}

func (s *staticSource) Snapshot() *trackline.Project {
	return s.project
}

// writeTestWav writes a 16-bit file with a constant value on every channel.
func writeTestWav(t *testing.T, path string, sampleRate, channels, frames int, value float64) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("cannot create %v: %v", path, err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	data := make([]int, frames*channels)
	for i := range data {
		data[i] = int(math.Round(value * 32768))
	}
	buf := &audio.IntBuffer{Data: data, Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("cannot write %v: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("cannot finalize %v: %v", path, err)
	}
}

func drumProject(t *testing.T, kick string) *trackline.Project {
	t.Helper()
	p := trackline.NewProject("test")
	kit, err := trackline.DrumKit("kit", kick)
	if err != nil {
		t.Fatalf("DrumKit failed: %v", err)
	}
	id := p.NewTrackID()
	p.Tracks = []trackline.Track{{
		ID:         id,
		Name:       "Drums",
		Instrument: &kit,
		Clips: []trackline.Clip{{
			ID:           p.NewClipID(),
			Kind:         trackline.MIDIClip,
			Track:        id,
			LengthInBars: 1,
			Notes:        []trackline.Note{{Number: 36, Start: 1, Length: 1, Velocity: 127}},
		}},
	}}
	return p
}

func TestPlayerTriggersNotesOnTheBeat(t *testing.T) {
	const sampleRate = 1000 // 500 frames per beat at 120 bpm
	dir := t.TempDir()
	kick := filepath.Join(dir, "kick.wav")
	writeTestWav(t, kick, sampleRate, 2, 100, 0.5)
	bank := NewSampleBank(sampleRate)
	if _, err := bank.Load(kick); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	broker := NewBroker()
	player := NewPlayer(broker, &staticSource{drumProject(t, kick)}, bank, sampleRate)
	buffer := make([]float32, 2*250)
	player.Process(buffer)
	if player.Playing() || player.Position() != 0 {
		t.Fatalf("player should not play before start")
	}
	TrySend[any](broker.ToPlayer, startMsg{})
	for i := 0; i < 2; i++ {
		player.Process(buffer)
		if p := peak(buffer, make([]float32, len(buffer))); p != 0 {
			t.Fatalf("block %d before the note: expected silence, got peak %v", i, p)
		}
	}
	player.Process(buffer)
	if buffer[0] != 0.5 || buffer[2*99+1] != 0.5 {
		t.Errorf("note not rendered at the block start: got %v %v", buffer[0], buffer[2*99+1])
	}
	if buffer[2*100] != 0 {
		t.Errorf("sample should have ended after 100 frames, got %v", buffer[2*100])
	}
	if pos := player.Position(); pos != 1.5 {
		t.Errorf("position: got %v, expected 1.5", pos)
	}
	TrySend[any](broker.ToPlayer, stopMsg{})
	player.Process(buffer)
	if player.Playing() {
		t.Errorf("player should have stopped")
	}
}

func TestPlayerAlertsMissingAssetOnce(t *testing.T) {
	broker := NewBroker()
	player := NewPlayer(broker, &staticSource{drumProject(t, "missing.wav")}, NewSampleBank(1000), 1000)
	TrySend[any](broker.ToPlayer, startMsg{})
	buffer := make([]float32, 2*1000)
	player.Process(buffer)
	player.Process(buffer)
	alerts := 0
	for len(broker.ToObserver) > 0 {
		if a, ok := (<-broker.ToObserver).Data.(Alert); ok {
			alerts++
			if a.Name != "AssetMissing" {
				t.Errorf("unexpected alert %v", a.Name)
			}
		}
	}
	if alerts != 1 {
		t.Errorf("expected exactly one alert, got %d", alerts)
	}
}

func TestPlayerClickTrack(t *testing.T) {
	const sampleRate = 8000
	broker := NewBroker()
	player := NewPlayer(broker, &staticSource{trackline.NewProject("empty")}, NewSampleBank(sampleRate), sampleRate)
	buffer := make([]float32, 2*512)
	TrySend[any](broker.ToPlayer, startMsg{})
	player.Process(buffer)
	if p := peak(buffer, make([]float32, len(buffer))); p != 0 {
		t.Fatalf("click disabled: expected silence, got peak %v", p)
	}
	TrySend[any](broker.ToPlayer, seekMsg{beat: 0})
	TrySend[any](broker.ToPlayer, clickMsg{enabled: true})
	player.Process(buffer)
	if p := peak(buffer, make([]float32, len(buffer))); p == 0 {
		t.Fatalf("click enabled: expected a click on the first beat")
	}
}

func TestPlayerFollowsTempo(t *testing.T) {
	broker := NewBroker()
	player := NewPlayer(broker, &staticSource{trackline.NewProject("empty")}, NewSampleBank(1000), 1000)
	buffer := make([]float32, 2*500)
	TrySend[any](broker.ToPlayer, startMsg{})
	player.Process(buffer) // 0.5 s at 120 bpm = 1 beat
	TrySend[any](broker.ToPlayer, tempoMsg{bpm: 60})
	player.Process(buffer) // 0.5 s at 60 bpm = 0.5 beats
	if pos := player.Position(); math.Abs(pos-1.5) > 1e-9 {
		t.Errorf("position: got %v, expected 1.5", pos)
	}
}

func TestExportWritesProjectLength(t *testing.T) {
	const sampleRate = 8000
	dir := t.TempDir()
	src := filepath.Join(dir, "loop.wav")
	writeTestWav(t, src, sampleRate, 2, sampleRate, 0.25)
	p := trackline.NewProject("export")
	id := p.NewTrackID()
	p.Tracks = []trackline.Track{{ID: id, Clips: []trackline.Clip{{
		ID: p.NewClipID(), Kind: trackline.AudioClip, Track: id, LengthInBars: 1, Source: src,
	}}}}
	cfg := newConfig([]Option{WithSampleRate(sampleRate), WithBitDepth(16)})
	dest := filepath.Join(dir, "out.wav")
	var reported []float64
	if err := Export(context.Background(), nil, p, dest, cfg, func(f float64) { reported = append(reported, f) }); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] < reported[i-1] {
			t.Fatalf("progress went backwards: %v", reported)
		}
	}
	if len(reported) == 0 || reported[len(reported)-1] != 1 {
		t.Errorf("progress did not end at 1: %v", reported)
	}
	f, err := os.Open(dest)
	if err != nil {
		t.Fatalf("cannot open export: %v", err)
	}
	defer f.Close()
	data, channels, rate, err := DecodeWav(f)
	if err != nil {
		t.Fatalf("DecodeWav failed: %v", err)
	}
	if channels != 2 || rate != sampleRate {
		t.Errorf("format: got %d channels at %d Hz", channels, rate)
	}
	// one bar at 120 bpm is two seconds
	if frames := len(data) / 2; frames != 2*sampleRate {
		t.Errorf("length: got %d frames, expected %d", frames, 2*sampleRate)
	}
	if data[0] != 0.25 || data[2*sampleRate] != 0 {
		t.Errorf("content: got %v at start, %v after the source ended", data[0], data[2*sampleRate])
	}
}

func TestExportRefusesExistingDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "taken.wav")
	if err := os.WriteFile(dest, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	err := Export(context.Background(), nil, trackline.NewProject("x"), dest, newConfig(nil), nil)
	if err == nil {
		t.Fatalf("expected an error for an existing destination")
	}
	if b, _ := os.ReadFile(dest); string(b) != "keep" {
		t.Errorf("existing file was modified")
	}
}

func TestExportCancelledRemovesOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "cancelled.wav")
	p := drumProject(t, filepath.Join(t.TempDir(), "unused.wav"))
	p.Tracks[0].Instrument = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Export(ctx, nil, p, dest, newConfig(nil), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("partial output left behind")
	}
}

func TestPlayerAlertsAgainForNewSnapshot(t *testing.T) {
	broker := NewBroker()
	source := &staticSource{drumProject(t, "missing.wav")}
	player := NewPlayer(broker, source, NewSampleBank(1000), 1000)
	TrySend[any](broker.ToPlayer, startMsg{})
	buffer := make([]float32, 2*1000)
	count := func() int {
		n := 0
		for len(broker.ToObserver) > 0 {
			if _, ok := (<-broker.ToObserver).Data.(Alert); ok {
				n++
			}
		}
		return n
	}
	player.Process(buffer)
	if n := count(); n != 1 {
		t.Fatalf("first snapshot: %d alerts, expected 1", n)
	}
	source.project = drumProject(t, "missing.wav")
	TrySend[any](broker.ToPlayer, seekMsg{beat: 0})
	player.Process(buffer)
	if n := count(); n != 1 {
		t.Errorf("new snapshot: %d alerts, expected 1", n)
	}
}

func TestEngineNotifyLeavesCommandQueueFree(t *testing.T) {
	cfg := newConfig([]Option{WithSampleRate(8000)})
	e, err := NewEngine("notify", &staticSource{trackline.NewProject("notify")}, cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close()
	for i := 0; i < 5000; i++ {
		e.Notify()
	}
	if n := len(e.broker.ToPlayer); n > 1 {
		t.Errorf("notifications queued %d player messages", n)
	}
	if err := e.SetTempo(130); err != nil {
		t.Errorf("SetTempo after notifications: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Errorf("Start after notifications: %v", err)
	}
}

func TestSampleBankSubsetSurvivesForget(t *testing.T) {
	dir := t.TempDir()
	kick := filepath.Join(dir, "kick.wav")
	writeTestWav(t, kick, 1000, 2, 100, 0.5)
	live := NewSampleBank(1000)
	if _, err := live.Load(kick); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	sub := live.Subset([]string{kick, "not-loaded.wav"})
	live.Forget(nil)
	if _, ok := sub.Get(kick); !ok {
		t.Errorf("subset lost the asset when the live bank forgot it")
	}
	if _, ok := sub.Get("not-loaded.wav"); ok {
		t.Errorf("subset holds an asset that was never loaded")
	}
}

func TestExportFailsWhenAssetIsNotLoaded(t *testing.T) {
	dir := t.TempDir()
	kick := filepath.Join(dir, "kick.wav")
	writeTestWav(t, kick, 1000, 2, 100, 0.5)
	p := drumProject(t, kick)
	cfg := newConfig([]Option{WithSampleRate(1000)})
	dest := filepath.Join(dir, "out.wav")
	p.Tracks[0].Clips[0].Notes[0].Start = 3 // in the third block
	bank := NewSampleBank(1000)
	if err := Export(context.Background(), bank, p, dest, cfg, func(float64) { bank.Forget(nil) }); err == nil {
		t.Fatalf("export completed although its sample was dropped")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("output kept despite the failure")
	}
}

func TestExportFailsOnMissingAsset(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.wav")
	err := Export(context.Background(), nil, drumProject(t, "does-not-exist.wav"), dest, newConfig(nil), nil)
	if err == nil {
		t.Fatalf("expected an error for a missing sample")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("output created despite the failure")
	}
}

func TestEmptyProjectExportsValidFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "empty.wav")
	if err := Export(context.Background(), nil, trackline.NewProject("empty"), dest, newConfig(nil), nil); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !wav.NewDecoder(f).IsValidFile() {
		t.Errorf("empty export is not a valid wav file")
	}
}

func TestSampleBankConvertsFormat(t *testing.T) {
	dir := t.TempDir()
	mono := filepath.Join(dir, "mono.wav")
	writeTestWav(t, mono, 4000, 1, 4000, 0.5)
	bank := NewSampleBank(8000)
	if err := bank.Preload(context.Background(), []string{mono}); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	a, ok := bank.Get(mono)
	if !ok {
		t.Fatalf("asset not cached after Preload")
	}
	if a.Len() != 8000 {
		t.Errorf("resampled length: got %d, expected 8000", a.Len())
	}
	if a.Frames[0] != 0.5 || a.Frames[1] != 0.5 {
		t.Errorf("mono not duplicated to stereo: %v %v", a.Frames[0], a.Frames[1])
	}
	bank.Forget(nil)
	if _, ok := bank.Get(mono); ok {
		t.Errorf("Forget did not drop the asset")
	}
}

func TestAssetPaths(t *testing.T) {
	p := drumProject(t, "kick.wav")
	p.Tracks = append(p.Tracks, trackline.Track{ID: 2, Clips: []trackline.Clip{
		{ID: 5, Kind: trackline.AudioClip, Track: 2, LengthInBars: 1, Source: "vox.mp3"},
		{ID: 6, Kind: trackline.AudioClip, Track: 2, LengthInBars: 1, Source: "kick.wav"},
	}})
	got := AssetPaths(p)
	if len(got) != 2 || got[0] != "kick.wav" || got[1] != "vox.mp3" {
		t.Errorf("AssetPaths: got %v", got)
	}
}
