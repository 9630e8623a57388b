// Package session implements the control side of a trackline session: the
// track registry, the note and clip store, the transport and the export
// pipeline, all operating on one mutable project.
//
// Every mutation runs under the session's write lock, validates its input
// before touching anything, and then publishes a deep copy of the project as
// the new immutable snapshot. The render engine only ever reads published
// snapshots, so it never waits for the control side and never observes a
// half-applied change.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

type (
	// Session is the root aggregate: one project, one render engine and at
	// most one running export. Create it with New and release it with Close.
	Session struct {
		mu      sync.RWMutex
		project *trackline.Project // guarded by mu
		state   State              // guarded by mu
		job     *ExportJob         // running export, guarded by mu

		snapshot atomic.Pointer[trackline.Project]

		engine   trackline.Engine
		store    trackline.ProjectStore
		autosave *autosaver
		log      logrus.FieldLogger

		closeTimeout time.Duration

		tracks *Tracks
		clips  *Clips
	}

	// State is the transport state of a session.
	State int

	// snapshotSource is the capability handed to the engine: it can read
	// published snapshots but nothing else.
	snapshotSource struct {
		s *Session
	}
)

const (
	Created State = iota
	Running
	Stopped
	Destroyed
)

var stateNames = [...]string{"created", "running", "stopped", "destroyed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// New creates a session and its render engine.
func New(name string, enginer trackline.Enginer, opts ...Option) (*Session, error) {
	if name == "" {
		return nil, errors.Wrap(trackline.ErrInvalidParameter, "empty session name")
	}
	if enginer == nil {
		return nil, errors.Wrap(trackline.ErrInvalidParameter, "no render engine")
	}
	cfg := newConfig(opts)
	project := trackline.NewProject(name)
	if cfg.project != nil {
		p := cfg.project.Copy()
		p.Name = name
		p.AssignIDs()
		if err := p.Validate(); err != nil {
			return nil, errors.Wrap(err, "cannot restore project")
		}
		project = &p
	}
	s := &Session{
		project:      project,
		store:        cfg.store,
		log:          cfg.logger.WithField("session", name),
		closeTimeout: cfg.closeTimeout,
	}
	s.tracks = &Tracks{s: s}
	s.clips = &Clips{s: s}
	s.publishSnapshot()
	engine, err := enginer.Engine(name, snapshotSource{s})
	if err != nil {
		return nil, engineError(err, "cannot create engine")
	}
	s.engine = engine
	s.autosave = newAutosaver(s, cfg.autosaveDelay)
	if err := engine.SetTempo(project.BPM); err != nil {
		engine.Close()
		return nil, engineError(err, "cannot set tempo")
	}
	engine.SetClickTrack(project.ClickTrack)
	s.log.WithField("tracks", len(project.Tracks)).Info("session created")
	return s, nil
}

func (src snapshotSource) Snapshot() *trackline.Project {
	return src.s.snapshot.Load()
}

// publishSnapshot makes a copy of the project visible to the engine.
// Must be called with the write lock held (or before the session is shared).
func (s *Session) publishSnapshot() {
	p := s.project.Copy()
	s.snapshot.Store(&p)
}

// errNoChange is returned by update functions that succeed without
// changing the project; nothing is published then.
var errNoChange = errors.New("no change")

// engineError marks err as an engine failure, unless the engine already did.
func engineError(err error, msg string) error {
	if errors.Is(err, trackline.ErrEngineFailure) {
		return errors.Wrap(err, msg)
	}
	return errors.Wrapf(trackline.ErrEngineFailure, "%s: %v", msg, err)
}

// update runs fn on the project under the write lock. fn must validate its
// input before changing anything and leave the project untouched when it
// returns an error. After a successful fn, the new snapshot is published and
// the engine is notified.
func (s *Session) update(fn func(p *trackline.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Destroyed {
		return trackline.ErrSessionDestroyed
	}
	if err := fn(s.project); err == errNoChange {
		return nil
	} else if err != nil {
		return err
	}
	s.publishSnapshot()
	s.engine.Notify()
	s.autosave.schedule()
	return nil
}

// read runs fn on the project under the read lock.
func (s *Session) read(fn func(p *trackline.Project) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Destroyed {
		return trackline.ErrSessionDestroyed
	}
	return fn(s.project)
}

// Name returns the session name given to New.
func (s *Session) Name() string {
	return s.snapshot.Load().Name
}

// Tracks returns the track registry of the session.
func (s *Session) Tracks() *Tracks {
	return s.tracks
}

// Clips returns the note and clip store of the session.
func (s *Session) Clips() *Clips {
	return s.clips
}

// Snapshot returns a deep copy of the latest published project.
func (s *Session) Snapshot() trackline.Project {
	return s.snapshot.Load().Copy()
}

// State returns the transport state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Close stops the session: a running export is cancelled and waited for,
// pending autosaves are flushed and the render engine is released. All
// later operations fail with ErrSessionDestroyed. Closing an already closed
// session does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		return nil
	}
	s.state = Destroyed
	job := s.job
	s.mu.Unlock()
	if job != nil {
		job.Cancel()
		select {
		case <-job.Done():
		case <-time.After(s.closeTimeout):
			s.log.WithField("job", job.ID()).Warn("export did not stop in time")
		}
	}
	s.autosave.close()
	if err := s.engine.Close(); err != nil {
		s.log.WithError(err).Error("could not close engine")
		return engineError(err, "cannot close engine")
	}
	s.log.Info("session closed")
	return nil
}
