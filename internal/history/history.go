// Package history persists a record of every match and merge run.
//
// Two backends are provided: SQLite through modernc.org/sqlite for the
// single-user desktop setup, and PostgreSQL through pgxpool when several
// operators share one history. Open picks the backend from the DSN.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	KindMatch = "match"
	KindMerge = "merge"
)

// ErrDisabled is returned by Open when no DSN is configured.
var ErrDisabled = errors.New("history disabled")

// Run is one recorded execution.
type Run struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Rows      int            `json:"rows"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// NewRun starts a run record with a fresh id.
func NewRun(kind string, startedAt time.Time, params map[string]any) Run {
	return Run{ID: uuid.New(), Kind: kind, StartedAt: startedAt.UTC(), Params: params}
}

// Finish fills in the outcome of a run.
func (r *Run) Finish(end time.Time, rows int, err error) {
	r.Duration = end.Sub(r.StartedAt)
	r.Rows = rows
	r.Success = err == nil
	if err != nil {
		r.Error = err.Error()
	}
}

// Store persists runs.
type Store interface {
	Record(ctx context.Context, run Run) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	// Prune deletes runs started before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open connects to the store named by dsn. postgres:// and postgresql://
// URLs select PostgreSQL; anything else is treated as a SQLite path, with an
// optional "sqlite:" prefix.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, ErrDisabled
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite:"))
	}
}
