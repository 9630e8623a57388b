package session_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/session"
)

type (
	fakeEnginer struct {
		engine *fakeEngine
		err    error
	}

	fakeEngine struct {
		source trackline.SnapshotSource
		export func(ctx context.Context, p *trackline.Project, dest string, progress func(float64)) error

		mu       sync.Mutex
		fail     error // returned by Start and SetTempo when set
		running  bool
		bpm      float64
		click    bool
		notified int
		closed   bool
	}

	fakeStore struct {
		mu       sync.Mutex
		projects map[string]*trackline.Project
		saves    int
		exports  []trackline.ExportRecord
	}
)

func (f *fakeEnginer) Engine(name string, source trackline.SnapshotSource) (trackline.Engine, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.engine.source = source
	return f.engine, nil
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{export: steppedExport(4)}
}

func (e *fakeEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.running = true
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	return nil
}

func (e *fakeEngine) SetTempo(bpm float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.bpm = bpm
	return nil
}

func (e *fakeEngine) SetClickTrack(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.click = enabled
}

func (e *fakeEngine) Notify() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notified++
}

func (e *fakeEngine) Export(ctx context.Context, p *trackline.Project, dest string, progress func(float64)) error {
	return e.export(ctx, p, dest, progress)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) state() (running bool, bpm float64, click bool, notified int, closed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running, e.bpm, e.click, e.notified, e.closed
}

// steppedExport reports progress in n equal steps and succeeds.
func steppedExport(n int) func(context.Context, *trackline.Project, string, func(float64)) error {
	return func(ctx context.Context, p *trackline.Project, dest string, progress func(float64)) error {
		for i := 1; i <= n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			progress(float64(i) / float64(n))
		}
		return nil
	}
}

// blockingExport reports a little progress and then waits to be cancelled.
func blockingExport(started chan<- struct{}) func(context.Context, *trackline.Project, string, func(float64)) error {
	var once sync.Once
	return func(ctx context.Context, p *trackline.Project, dest string, progress func(float64)) error {
		progress(0.1)
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: map[string]*trackline.Project{}}
}

func (s *fakeStore) SaveProject(ctx context.Context, p *trackline.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p.Copy()
	s.projects[p.Name] = &c
	s.saves++
	return nil
}

func (s *fakeStore) LoadProject(ctx context.Context, name string) (*trackline.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[name]
	if !ok {
		return nil, trackline.ErrInvalidParameter
	}
	c := p.Copy()
	return &c, nil
}

func (s *fakeStore) RecordExport(ctx context.Context, r trackline.ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports = append(s.exports, r)
	return nil
}

func (s *fakeStore) saved(name string) (*trackline.Project, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[name], s.saves
}

func (s *fakeStore) records() []trackline.ExportRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]trackline.ExportRecord(nil), s.exports...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newSession(t *testing.T, opts ...session.Option) (*session.Session, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine()
	opts = append([]session.Option{session.WithLogger(quietLogger())}, opts...)
	s, err := session.New("test", &fakeEnginer{engine: engine}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, engine
}

// collectEvents reads the events of a job until the channel is closed.
func collectEvents(t *testing.T, job *session.ExportJob) []session.ExportEvent {
	t.Helper()
	var events []session.ExportEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-job.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("export did not finish, got %d events", len(events))
			return nil
		}
	}
}
