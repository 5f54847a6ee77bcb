// Package store persists pipeline snapshots: run metadata, the raw response
// log, status rows, and the dispatch ledger. The core pipeline never reads
// state back to compute a classification; the store is an audit trail.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/harborlab/cohortwatch/internal/model"
)

// Store defines the snapshot persistence interface.
type Store interface {
	// Runs
	BeginRun(ctx context.Context) (*model.SnapshotRun, error)
	CompleteRun(ctx context.Context, runID string, participants, reminded, severe int) error
	GetRun(ctx context.Context, runID string) (*model.SnapshotRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.SnapshotRun, error)

	// Per-run detail
	SaveRawResponses(ctx context.Context, runID string, records []model.RawResponse) error
	SaveStatusRows(ctx context.Context, runID string, rows []model.ParticipantStatus) error
	GetStatusRows(ctx context.Context, runID string) ([]model.ParticipantStatus, error)
	SaveDispatchOutcomes(ctx context.Context, runID string, outcomes []model.DispatchOutcome) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the Postgres store uses. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}
