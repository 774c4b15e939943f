// Package store keeps training run history in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gosimple/slug"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the store directory.
const FileName = "runs.db"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the run history database.
type Store struct {
	db   *sql.DB
	path string
}

// Options configures Open.
type Options struct {
	CreateIfNotExists bool
	EnableWAL         bool
}

// DefaultOptions creates the database with WAL journal.
func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Open opens or creates the database in dir.
func Open(dir string, opts Options) (*Store, error) {
	path := filepath.Join(dir, FileName)
	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "Can't create store directory")
		}
		mode = "rwc"
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "run store %s", path)
	}

	db, err := sql.Open("sqlite", path+"?mode="+mode)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open run store")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, path: path}
	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "Can't enable WAL")
		}
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "Can't create tables")
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		status TEXT NOT NULL,
		config TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		key TEXT NOT NULL,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics(run_id, step);

	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		path TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_samples_run ON samples(run_id);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one training session.
type Run struct {
	ID         string
	Name       string
	Slug       string
	Status     string
	Config     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Metric is one logged value.
type Metric struct {
	Step  int
	Key   string
	Value float64
}

// Sample is a saved image grid.
type Sample struct {
	Step int
	Path string
}

// CreateRun registers a running session. cfg is stored as YAML.
func (s *Store) CreateRun(ctx context.Context, name string, cfg interface{}) (*Run, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, errors.Wrap(err, "Can't generate run ID")
	}
	if name == "" {
		name = "run"
	}
	var config string
	if cfg != nil {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "Can't encode run config")
		}
		config = string(data)
	}
	run := &Run{
		ID:        id,
		Name:      name,
		Slug:      fmt.Sprintf("%s-%s", slug.Make(name), id[:8]),
		Status:    StatusRunning,
		Config:    config,
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, slug, status, config, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Slug, run.Status, run.Config, run.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, errors.Wrap(err, "Can't insert run")
	}
	return run, nil
}

// RecordMetrics stores values of one step.
func (s *Store) RecordMetrics(ctx context.Context, runID string, step int, values map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metrics (run_id, step, key, value) VALUES (?, ?, ?, ?)`,
			runID, step, key, value,
		); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "Can't insert metric")
		}
	}
	return errors.Wrap(tx.Commit(), "Can't commit metrics")
}

// RecordSample stores path of an image grid.
func (s *Store) RecordSample(ctx context.Context, runID string, step int, path string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (run_id, step, path) VALUES (?, ?, ?)`,
		runID, step, path,
	)
	return errors.Wrap(err, "Can't insert sample")
}

// FinishRun sets final status of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return errors.Wrap(err, "Can't update run")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "Can't update run")
	}
	if n == 0 {
		return errors.Wrap(ErrRunNotFound, runID)
	}
	return nil
}

// GetRun returns run by ID or a unique ID prefix.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.queryRuns(ctx, `WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`, id+"%")
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, errors.Wrap(ErrRunNotFound, id)
	case 1:
		return &rows[0], nil
	default:
		return nil, fmt.Errorf("run ID prefix '%s' is ambiguous", id)
	}
}

// ListRuns returns runs newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		return s.queryRuns(ctx, `ORDER BY started_at DESC, rowid DESC`)
	}
	return s.queryRuns(ctx, `ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
}

func (s *Store) queryRuns(ctx context.Context, tail string, args ...interface{}) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, status, COALESCE(config, ''), started_at, COALESCE(finished_at, '') FROM runs `+tail,
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Name, &r.Slug, &r.Status, &r.Config, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "Can't scan run")
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Metrics returns run metrics ordered by step and key.
func (s *Store) Metrics(ctx context.Context, runID string) ([]Metric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, key, value FROM metrics WHERE run_id = ? ORDER BY step, key`,
		runID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query metrics")
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.Step, &m.Key, &m.Value); err != nil {
			return nil, errors.Wrap(err, "Can't scan metric")
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Samples returns saved grids of a run ordered by step.
func (s *Store) Samples(ctx context.Context, runID string) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, path FROM samples WHERE run_id = ? ORDER BY step`,
		runID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query samples")
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.Step, &smp.Path); err != nil {
			return nil, errors.Wrap(err, "Can't scan sample")
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
