package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists jobs in a local SQLite file using the same table
// layout as the hosted jobs/job_logs tables.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS jobs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			engine TEXT NOT NULL,
			status TEXT NOT NULL,
			type TEXT,
			preset TEXT,
			priority TEXT,
			tags TEXT NOT NULL DEFAULT '[]',
			template TEXT,
			source TEXT,
			query TEXT,
			inputs TEXT,
			callback_url TEXT,
			payload TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_engine ON jobs(engine, seq)`,
		`CREATE TABLE IF NOT EXISTS job_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_logs_job ON job_logs(job_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, job *Job) error {
	tags, err := json.Marshal(tagsOrEmpty(job.Tags))
	if err != nil {
		return err
	}
	var inputs sql.NullString
	if job.Inputs != nil {
		b, err := json.Marshal(job.Inputs)
		if err != nil {
			return err
		}
		inputs = sql.NullString{String: string(b), Valid: true}
	}
	var preset sql.NullString
	if job.Preset != nil {
		preset = sql.NullString{String: *job.Preset, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs
		(id, engine, status, type, preset, priority, tags, template, source, query, inputs, callback_url, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Engine, string(job.Status), job.Type, preset, string(job.Priority), string(tags),
		job.Template, job.Source, job.Query, inputs, job.CallbackURL, string(job.Payload),
		job.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("jobs: insert %s: %w", job.ID, err)
	}
	return nil
}

const jobColumns = `id, engine, status, type, preset, priority, tags, template, source, query, inputs, callback_url, payload, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var status, priority, tags, createdAt string
	var jobType, template, source, query sql.NullString
	var preset, inputs, callback, payload sql.NullString
	if err := row.Scan(&j.ID, &j.Engine, &status, &jobType, &preset, &priority, &tags,
		&template, &source, &query, &inputs, &callback, &payload, &createdAt); err != nil {
		return nil, err
	}
	j.Status = Status(status)
	j.Priority = Priority(priority)
	j.Type = jobType.String
	j.Template = template.String
	j.Source = source.String
	j.Query = query.String
	j.CallbackURL = callback.String
	if preset.Valid {
		p := preset.String
		j.Preset = &p
	}
	if err := json.Unmarshal([]byte(tags), &j.Tags); err != nil {
		return nil, fmt.Errorf("jobs: decode tags for %s: %w", j.ID, err)
	}
	if inputs.Valid && inputs.String != "" {
		if err := json.Unmarshal([]byte(inputs.String), &j.Inputs); err != nil {
			return nil, fmt.Errorf("jobs: decode inputs for %s: %w", j.ID, err)
		}
	}
	if payload.Valid && payload.String != "" {
		j.Payload = json.RawMessage(payload.String)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("jobs: decode created_at for %s: %w", j.ID, err)
	}
	j.CreatedAt = t
	return &j, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if opts.Engine != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE engine = ? ORDER BY seq DESC LIMIT ?`, opts.Engine, opts.limit())
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+jobColumns+` FROM jobs ORDER BY seq DESC LIMIT ?`, opts.limit())
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	out := []*Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry LogEntry) error {
	ok, err := s.exists(ctx, entry.JobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_logs (job_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		entry.JobID, entry.Level, entry.Message, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("jobs: append log for %s: %w", entry.JobID, err)
	}
	return nil
}

func (s *SQLiteStore) Logs(ctx context.Context, jobID string) ([]LogEntry, error) {
	ok, err := s.exists(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, level, message, created_at FROM job_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobs: logs for %s: %w", jobID, err)
	}
	defer rows.Close()

	out := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		var createdAt string
		if err := rows.Scan(&e.JobID, &e.Level, &e.Message, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
