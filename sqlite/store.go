// Package sqlite keeps project snapshots and the export history in a SQLite
// database.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/trackline/trackline"
)

// ErrNotFound is returned by LoadProject for a name that was never saved.
var ErrNotFound = errors.New("project not found")

// Store implements trackline.ProjectStore. Projects are stored as YAML
// documents, one row per project name.
type Store struct {
	db *sql.DB
}

var _ trackline.ProjectStore = (*Store)(nil)

// ProjectInfo summarizes a stored project.
type ProjectInfo struct {
	Name    string
	BPM     float64
	Tracks  int
	Updated time.Time
}

// Open opens or creates the database at path and migrates its schema. The
// path ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite db")
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite db")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS projects (
		name TEXT PRIMARY KEY,
		document TEXT NOT NULL,
		bpm REAL NOT NULL,
		tracks INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exports (
		job_id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		destination TEXT NOT NULL,
		state TEXT NOT NULL,
		progress REAL NOT NULL,
		error TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS exports_project ON exports (project, started_at);
	`)
	return err
}

// SaveProject stores p under its name, replacing any earlier version.
func (s *Store) SaveProject(ctx context.Context, p *trackline.Project) error {
	if p.Name == "" {
		return errors.Wrap(trackline.ErrInvalidParameter, "project has no name")
	}
	var doc bytes.Buffer
	if err := trackline.WriteProject(&doc, p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, document, bpm, tracks, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			document = excluded.document,
			bpm = excluded.bpm,
			tracks = excluded.tracks,
			updated_at = excluded.updated_at
	`, p.Name, doc.String(), p.BPM, len(p.Tracks), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to save project %q", p.Name)
	}
	return nil
}

// LoadProject returns the stored project, or ErrNotFound.
func (s *Store) LoadProject(ctx context.Context, name string) (*trackline.Project, error) {
	var doc string
	row := s.db.QueryRowContext(ctx, "SELECT document FROM projects WHERE name = ?", name)
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(ErrNotFound, "%q", name)
		}
		return nil, errors.Wrapf(err, "failed to load project %q", name)
	}
	p, err := trackline.UnmarshalProject([]byte(doc))
	if err != nil {
		return nil, errors.Wrapf(err, "stored project %q", name)
	}
	p.Name = name
	return p, nil
}

// DeleteProject removes a project and its export history. It reports
// whether the project existed.
func (s *Store) DeleteProject(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE name = ?", name)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete project %q", name)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM exports WHERE project = ?", name); err != nil {
		return false, errors.Wrapf(err, "failed to delete exports of %q", name)
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Projects lists the stored projects by name.
func (s *Store) Projects(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, bpm, tracks, updated_at FROM projects ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list projects")
	}
	defer rows.Close()
	var ret []ProjectInfo
	for rows.Next() {
		var info ProjectInfo
		if err := rows.Scan(&info.Name, &info.BPM, &info.Tracks, &info.Updated); err != nil {
			return nil, errors.Wrap(err, "failed to scan project")
		}
		ret = append(ret, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate projects")
	}
	return ret, nil
}

// RecordExport stores the outcome of an export job.
func (s *Store) RecordExport(ctx context.Context, r trackline.ExportRecord) error {
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO exports (job_id, project, destination, state, progress, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.JobID, r.Project, r.Destination, r.State, r.Progress, errText, r.Started.UTC(), r.Finished.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to record export %s", r.JobID)
	}
	return nil
}

// Exports returns the export history of a project, oldest first.
func (s *Store) Exports(ctx context.Context, project string) ([]trackline.ExportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, project, destination, state, progress, error, started_at, finished_at
		FROM exports WHERE project = ? ORDER BY started_at ASC
	`, project)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list exports")
	}
	defer rows.Close()
	var ret []trackline.ExportRecord
	for rows.Next() {
		var r trackline.ExportRecord
		var errText sql.NullString
		if err := rows.Scan(&r.JobID, &r.Project, &r.Destination, &r.State, &r.Progress, &errText, &r.Started, &r.Finished); err != nil {
			return nil, errors.Wrap(err, "failed to scan export")
		}
		if errText.Valid {
			r.Error = errText.String
		}
		ret = append(ret, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate exports")
	}
	return ret, nil
}
