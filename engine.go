package trackline

import (
	"context"
	"time"
)

type (
	// Enginer creates render engines. A session asks its Enginer for exactly
	// one Engine when it is created and closes the engine when the session is
	// closed.
	Enginer interface {
		Engine(name string, source SnapshotSource) (Engine, error)
	}

	// SnapshotSource gives the engine the most recently published project.
	// Snapshot must be cheap and must never block on control-side edits; the
	// returned project must not be modified.
	SnapshotSource interface {
		Snapshot() *Project
	}

	// Engine renders a project. Start, Stop, SetTempo, SetClickTrack and
	// Notify are called from the control side and must return quickly; the
	// engine applies them on its own render goroutine. Notify tells the
	// engine that a new snapshot is available from the SnapshotSource.
	//
	// Export renders the given project offline to destination. It reports
	// the fraction done through progress and checks ctx between blocks. When
	// ctx is cancelled, Export removes any partial output and returns
	// ctx.Err().
	Engine interface {
		Start() error
		Stop() error
		SetTempo(bpm float64) error
		SetClickTrack(enabled bool)
		Notify()
		Export(ctx context.Context, project *Project, destination string, progress func(float64)) error
		Close() error
	}

	// AudioSink receives interleaved stereo float32 audio.
	AudioSink interface {
		WriteAudio(buffer []float32) error
		Close() error
	}

	// AudioContext opens AudioSinks on an audio device.
	AudioContext interface {
		Output() AudioSink
		Close() error
	}

	// ExportRecord is the persisted outcome of an export job.
	ExportRecord struct {
		JobID       string
		Project     string
		Destination string
		State       string
		Progress    float64
		Error       string
		Started     time.Time
		Finished    time.Time
	}

	// ProjectStore persists project snapshots and the export history.
	ProjectStore interface {
		SaveProject(ctx context.Context, project *Project) error
		LoadProject(ctx context.Context, name string) (*Project, error)
		RecordExport(ctx context.Context, record ExportRecord) error
	}
)
