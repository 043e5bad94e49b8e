// Package manifest persists batch run outcomes to SQLite so long
// conversion runs can be audited after the fact: which inputs failed, how
// long each took, and what every run was configured with.
package manifest

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/canopy.view/internal/batch"
	"github.com/banshee-data/canopy.view/internal/render"
	"github.com/banshee-data/canopy.view/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the manifest database handle.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// Open opens the manifest database at path, creating it if needed, and
// brings its schema up to date from the embedded migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock overrides the clock used for timestamps. Intended for tests.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// migrateUp applies all pending migrations from the embedded filesystem.
func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m because it would close the underlying DB
	// connection.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// RunMeta carries the invocation context stored alongside a run.
type RunMeta struct {
	InputDir  string
	OutputDir string
	Workers   int
	Angles    []float64
	StartedAt time.Time
}

// Run is a stored run row.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	InputDir   string
	OutputDir  string
	Workers    int
	Angles     string
	Total      int
	Succeeded  int
}

// TaskRecord is a stored per-task outcome.
type TaskRecord struct {
	RunID      string
	Input      string
	Species    string
	Status     string
	Error      string
	DurationMS int64
	Images     int
}

// Task status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RecordRun stores a completed run and its per-task outcomes in one
// transaction, returning the new run's ID.
func (db *DB) RecordRun(sum *batch.Summary, meta RunMeta) (string, error) {
	id := uuid.NewString()
	finished := db.clock.Now()

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, started_at, finished_at, input_dir, output_dir, workers, angles, total, succeeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		meta.StartedAt.UTC().Format(time.RFC3339),
		finished.UTC().Format(time.RFC3339),
		meta.InputDir,
		meta.OutputDir,
		meta.Workers,
		render.AnglesLabel(meta.Angles),
		sum.Total,
		sum.Succeeded,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range sum.Results {
		status := StatusOK
		errText := ""
		if r.Err != nil {
			status = StatusFailed
			errText = r.Err.Error()
		}
		_, err = tx.Exec(`
			INSERT INTO tasks (run_id, input, species, status, error, duration_ms, images)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, r.Task.Input, r.Task.Species, status, errText, r.Duration.Milliseconds(), r.Images,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert task %s: %w", r.Task.Input, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`
		SELECT id, started_at, finished_at, input_dir, output_dir, workers, angles, total, succeeded
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.InputDir, &r.OutputDir,
			&r.Workers, &r.Angles, &r.Total, &r.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TasksForRun returns the per-task outcomes of one run in insertion order.
func (db *DB) TasksForRun(runID string) ([]TaskRecord, error) {
	rows, err := db.Query(`
		SELECT run_id, input, species, status, error, duration_ms, images
		FROM tasks
		WHERE run_id = ?
		ORDER BY task_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRecord
	for rows.Next() {
		var tr TaskRecord
		if err := rows.Scan(&tr.RunID, &tr.Input, &tr.Species, &tr.Status,
			&tr.Error, &tr.DurationMS, &tr.Images); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, tr)
	}
	return tasks, rows.Err()
}

// FailedTasks returns the failed task records of one run.
func (db *DB) FailedTasks(runID string) ([]TaskRecord, error) {
	tasks, err := db.TasksForRun(runID)
	if err != nil {
		return nil, err
	}
	failed := tasks[:0]
	for _, tr := range tasks {
		if tr.Status == StatusFailed {
			failed = append(failed, tr)
		}
	}
	return failed, nil
}
