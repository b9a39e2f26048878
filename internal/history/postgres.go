package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datafinder_runs (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL,
	rows        INTEGER NOT NULL,
	success     BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	params      JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS datafinder_runs_started_at ON datafinder_runs (started_at);
`

// PostgresStore keeps runs in a shared PostgreSQL database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and ensures the runs table exists.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("history: parse postgres url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: init: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, run Run) error {
	params := run.Params
	if params == nil {
		params = map[string]any{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO datafinder_runs (id, kind, started_at, duration_ms, rows, success, error, params)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Kind, run.StartedAt, run.Duration.Milliseconds(),
		run.Rows, run.Success, run.Error, params,
	)
	if err != nil {
		return fmt.Errorf("history: record run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, started_at, duration_ms, rows, success, error, params
		 FROM datafinder_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			durationMS int64
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &durationMS, &run.Rows, &run.Success, &run.Error, &run.Params); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		run.StartedAt = run.StartedAt.UTC()
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM datafinder_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
