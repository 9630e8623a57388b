package session

import (
	"github.com/pkg/errors"

	"github.com/trackline/trackline"
)

// Start starts playback. Starting a running session does nothing.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Destroyed:
		return trackline.ErrSessionDestroyed
	case Running:
		return nil
	}
	if err := s.engine.Start(); err != nil {
		return engineError(err, "cannot start playback")
	}
	s.state = Running
	s.log.Info("playback started")
	return nil
}

// Stop halts playback, keeping the project. Stopping a session that is not
// running does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Destroyed:
		return trackline.ErrSessionDestroyed
	case Created, Stopped:
		return nil
	}
	if err := s.engine.Stop(); err != nil {
		return engineError(err, "cannot stop playback")
	}
	s.state = Stopped
	s.log.Info("playback stopped")
	return nil
}

// Playing reports whether the session is running.
func (s *Session) Playing() bool {
	return s.State() == Running
}

// SetTempo changes the tempo. It fails with ErrInvalidParameter for
// non-positive values, leaving the tempo unchanged. Clip and note positions
// are musical, so they keep their place in the music.
func (s *Session) SetTempo(bpm float64) error {
	if err := trackline.ValidateBPM(bpm); err != nil {
		return err
	}
	return s.update(func(p *trackline.Project) error {
		if err := s.engine.SetTempo(bpm); err != nil {
			return engineError(err, "cannot set tempo")
		}
		p.BPM = bpm
		s.log.WithField("bpm", bpm).Debug("tempo changed")
		return nil
	})
}

// Tempo returns the current tempo in beats per minute.
func (s *Session) Tempo() float64 {
	return s.snapshot.Load().BPM
}

// SetBeatsPerBar changes the meter used to convert bars to beats.
func (s *Session) SetBeatsPerBar(n int) error {
	if n < 1 {
		return errors.Wrapf(trackline.ErrInvalidParameter, "beats per bar %d", n)
	}
	return s.update(func(p *trackline.Project) error {
		p.BeatsPerBar = n
		return nil
	})
}

// TimeModel returns the time model for the current tempo and meter.
func (s *Session) TimeModel() trackline.TimeModel {
	return s.snapshot.Load().TimeModel()
}

// SetClickTrack turns the metronome on or off. It is idempotent.
func (s *Session) SetClickTrack(enabled bool) error {
	return s.update(func(p *trackline.Project) error {
		p.ClickTrack = enabled
		s.engine.SetClickTrack(enabled)
		return nil
	})
}

func (s *Session) EnableClickTrack() error {
	return s.SetClickTrack(true)
}

func (s *Session) DisableClickTrack() error {
	return s.SetClickTrack(false)
}

func (s *Session) ClickTrackEnabled() bool {
	return s.snapshot.Load().ClickTrack
}
