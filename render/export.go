package render

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/trackline/trackline"
)

// Export renders the project offline, from the start to the end of its last
// clip, into a stereo PCM .wav file at destination. The destination must not
// exist yet. All assets are loaded before rendering starts, so a missing or
// broken file fails the export up front.
//
// progress, if not nil, is called after every block with the fraction of
// the project rendered so far. ctx is checked before every block; on
// cancellation the partial file is removed and ctx.Err() is returned.
func Export(ctx context.Context, bank *SampleBank, project *trackline.Project, destination string, cfg Config, progress func(float64)) (err error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if cfg.SampleRate <= 0 || cfg.BlockSize <= 0 {
		return errors.Errorf("invalid render settings: %d Hz, %d frames per block", cfg.SampleRate, cfg.BlockSize)
	}
	if err := trackline.ValidateBPM(project.BPM); err != nil {
		return err
	}
	if _, err := os.Stat(destination); err == nil {
		return errors.Errorf("destination %v already exists", destination)
	}
	if bank == nil {
		bank = NewSampleBank(cfg.SampleRate)
	}
	if err := bank.Preload(ctx, AssetPaths(project)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrap(err, "could not load assets")
	}
	f, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not create %v", destination)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(destination)
		}
	}()
	w, err := NewWavWriter(f, cfg.SampleRate, cfg.BitDepth)
	if err != nil {
		return err
	}
	total := project.TimeModel().BeatsToFrames(project.LengthInBeats(), cfg.SampleRate)
	seq := newSequencer(bank, cfg.SampleRate)
	var missing string
	seq.missing = func(path string) {
		if missing == "" {
			missing = path
		}
	}
	buffer := make([]float32, 2*cfg.BlockSize)
	beat := 0.0
	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(cfg.BlockSize, total-done)
		block := buffer[:2*n]
		beat = seq.render(block, project, beat, project.BPM)
		if missing != "" {
			return errors.Errorf("sample %v is not loaded", missing)
		}
		if err := w.WriteAudio(block); err != nil {
			return err
		}
		done += n
		progress(float64(done) / float64(total))
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "could not close %v", destination)
	}
	progress(1)
	return nil
}
