package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
)

type (
	// ExportJob is an export running in the background. Its events arrive on
	// Events: zero or more progress events with a non-decreasing fraction,
	// then exactly one terminal event, after which the channel is closed.
	ExportJob struct {
		id          uuid.UUID
		destination string
		events      chan ExportEvent
		done        chan struct{}
		cancel      context.CancelFunc

		mu       sync.Mutex
		progress float64
		state    ExportState
		err      error
		finished bool
	}

	// ExportEvent reports the progress or the outcome of an export. Err is
	// set for Failed and Cancelled events.
	ExportEvent struct {
		State    ExportState
		Progress float64
		Err      error
	}

	ExportState int
)

const (
	ExportRunning ExportState = iota
	ExportCompleted
	ExportFailed
	ExportCancelled
)

// exportEventBuffer is the capacity of the event channel. Progress events
// that do not fit are dropped; one slot is always kept free for the terminal
// event.
const exportEventBuffer = 64

var exportStateNames = [...]string{"running", "completed", "failed", "cancelled"}

func (s ExportState) String() string {
	if s < 0 || int(s) >= len(exportStateNames) {
		return "unknown"
	}
	return exportStateNames[s]
}

// Terminal reports whether the state is final.
func (s ExportState) Terminal() bool {
	return s != ExportRunning
}

// ExportAudio starts rendering a snapshot of the project to destination in
// the background. Only one export can run at a time; a second call fails
// with ErrJobInProgress until the first job has reached its terminal state.
// Cancelling ctx cancels the job.
func (s *Session) ExportAudio(ctx context.Context, destination string) (*ExportJob, error) {
	if destination == "" {
		return nil, errors.Wrap(trackline.ErrInvalidParameter, "empty export destination")
	}
	s.mu.Lock()
	if s.state == Destroyed {
		s.mu.Unlock()
		return nil, trackline.ErrSessionDestroyed
	}
	if s.job != nil {
		id := s.job.ID()
		s.mu.Unlock()
		return nil, errors.Wrapf(trackline.ErrJobInProgress, "job %v", id)
	}
	project := s.snapshot.Load()
	jobCtx, cancel := context.WithCancel(ctx)
	job := &ExportJob{
		id:          uuid.New(),
		destination: destination,
		events:      make(chan ExportEvent, exportEventBuffer),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	s.job = job
	s.mu.Unlock()
	go s.runExport(jobCtx, job, project)
	return job, nil
}

func (s *Session) runExport(ctx context.Context, job *ExportJob, project *trackline.Project) {
	defer job.cancel()
	log := s.log.WithFields(logrus.Fields{"job": job.id, "destination": job.destination})
	log.Info("export started")
	started := time.Now()
	err := s.engine.Export(ctx, project, job.destination, job.report)
	ev := ExportEvent{State: ExportCompleted, Progress: 1}
	switch {
	case err == nil:
	case ctx.Err() != nil:
		ev = ExportEvent{State: ExportCancelled, Progress: job.Progress(), Err: ctx.Err()}
	default:
		ev = ExportEvent{State: ExportFailed, Progress: job.Progress(), Err: engineError(err, "export failed")}
	}
	// release the in-progress slot before anyone can see the terminal event,
	// so that a new export can be started right after it
	s.mu.Lock()
	if s.job == job {
		s.job = nil
	}
	s.mu.Unlock()
	s.recordExport(job, project, ev, started)
	job.finish(ev)
	log.WithFields(logrus.Fields{"state": ev.State, "elapsed": time.Since(started)}).Info("export finished")
}

func (s *Session) recordExport(job *ExportJob, project *trackline.Project, ev ExportEvent, started time.Time) {
	if s.store == nil {
		return
	}
	rec := trackline.ExportRecord{
		JobID:       job.id.String(),
		Project:     project.Name,
		Destination: job.destination,
		State:       ev.State.String(),
		Progress:    ev.Progress,
		Started:     started,
		Finished:    time.Now(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.RecordExport(ctx, rec); err != nil {
		s.log.WithError(err).WithField("job", job.id).Warn("could not record export")
	}
}

// report is the progress callback given to the engine.
func (j *ExportJob) report(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished || math.IsNaN(fraction) || fraction <= j.progress && j.progress > 0 {
		return
	}
	j.progress = max(j.progress, min(fraction, 1))
	if len(j.events) < cap(j.events)-1 {
		j.events <- ExportEvent{State: ExportRunning, Progress: j.progress}
	}
}

func (j *ExportJob) finish(ev ExportEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	j.state = ev.State
	j.err = ev.Err
	if ev.State == ExportCompleted {
		j.progress = 1
	}
	j.events <- ev // never blocks: report keeps a slot free
	close(j.events)
	close(j.done)
}

func (j *ExportJob) ID() uuid.UUID {
	return j.id
}

func (j *ExportJob) Destination() string {
	return j.destination
}

// Events returns the channel of progress and terminal events.
func (j *ExportJob) Events() <-chan ExportEvent {
	return j.events
}

// Done is closed when the job has reached its terminal state.
func (j *ExportJob) Done() <-chan struct{} {
	return j.done
}

// Cancel asks the job to stop. The partial output is removed and the
// terminal event is Cancelled, unless the job had already finished.
func (j *ExportJob) Cancel() {
	j.cancel()
}

// Progress returns the fraction reported so far.
func (j *ExportJob) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Result returns the current state of the job, and the error for failed or
// cancelled jobs.
func (j *ExportJob) Result() (ExportState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.err
}

// Wait blocks until the job finishes or ctx is done and returns the result.
func (j *ExportJob) Wait(ctx context.Context) (ExportState, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		return ExportRunning, ctx.Err()
	}
}
