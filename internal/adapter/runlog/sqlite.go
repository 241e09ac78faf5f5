// Package runlog journals renderer runs in a SQLite database.
package runlog

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

	"scenetuner/internal/domain"
)

const subsystem = "runlog"

// SQLiteStore records domain.RunRecord rows keyed by session id.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the journal at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewSubSystemError(subsystem, "NewSQLiteStore", domain.ErrPersistence, err.Error())
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate run log: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			script     TEXT NOT NULL,
			scene      TEXT NOT NULL,
			mode       TEXT NOT NULL,
			quality    TEXT NOT NULL,
			argv       TEXT NOT NULL DEFAULT '[]',
			status     TEXT NOT NULL,
			exit_code  INTEGER,
			started_at TEXT NOT NULL,
			ended_at   TEXT
		);
		CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record inserts the run or, when the id is already journaled, updates its
// status, exit code and end time.
func (s *SQLiteStore) Record(ctx context.Context, r domain.RunRecord) error {
	if r.ID == "" {
		return domain.NewSubSystemError(subsystem, "Record", domain.ErrInvalidInput, "run id is empty")
	}
	argv, err := json.Marshal(r.Argv)
	if err != nil {
		return fmt.Errorf("marshal argv: %w", err)
	}
	var code sql.NullInt64
	if r.ExitCode != nil {
		code = sql.NullInt64{Int64: int64(*r.ExitCode), Valid: true}
	}
	var ended sql.NullString
	if r.EndedAt != nil {
		ended = sql.NullString{String: r.EndedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, script, scene, mode, quality, argv, status, exit_code, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			ended_at = excluded.ended_at`,
		r.ID, r.Script, r.Scene, string(r.Mode), string(r.Quality), string(argv),
		string(r.Status), code, r.StartedAt.UTC().Format(time.RFC3339Nano), ended,
	)
	if err != nil {
		return domain.NewSubSystemError(subsystem, "Record", domain.ErrPersistence, err.Error())
	}
	return nil
}

// Get returns one run by session id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, script, scene, mode, quality, argv, status, exit_code, started_at, ended_at FROM runs WHERE id = ?", id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError(subsystem, "Get", domain.ErrNotFound, id)
	}
	return r, err
}

// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, script, scene, mode, quality, argv, status, exit_code, started_at, ended_at FROM runs ORDER BY started_at DESC, id DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.RunRecord, error) {
	var (
		r                     domain.RunRecord
		mode, quality, status string
		argv, started         string
		code                  sql.NullInt64
		ended                 sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Script, &r.Scene, &mode, &quality, &argv, &status, &code, &started, &ended); err != nil {
		return nil, err
	}
	r.Mode = domain.RenderMode(mode)
	r.Quality = domain.Quality(quality)
	r.Status = domain.RenderStatus(status)
	if err := json.Unmarshal([]byte(argv), &r.Argv); err != nil {
		return nil, fmt.Errorf("unmarshal argv: %w", err)
	}
	if code.Valid {
		c := int(code.Int64)
		r.ExitCode = &c
	}
	var err error
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if ended.Valid {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		r.EndedAt = &t
	}
	return &r, nil
}
