package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	rows        INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	params      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
`

// SQLiteStore keeps runs in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range append(pragmas, sqliteSchema) {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: init: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("history: encode params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, duration_ms, rows, success, error, params)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
		run.Rows, run.Success, run.Error, string(params),
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, duration_ms, rows, success, error, params
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			id, params string
			startedAt  int64
			durationMS int64
		)
		if err := rows.Scan(&id, &run.Kind, &startedAt, &durationMS, &run.Rows, &run.Success, &run.Error, &params); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("history: bad run id %q: %w", id, err)
		}
		run.StartedAt = time.Unix(0, startedAt).UTC()
		run.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("history: decode params: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
