package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/harborlab/cohortwatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 5
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ,
	participants INT NOT NULL DEFAULT 0,
	reminded     INT NOT NULL DEFAULT 0,
	severe       INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS raw_responses (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES snapshot_runs(id),
	session    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expired_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS status_rows (
	id                     TEXT PRIMARY KEY,
	run_id                 TEXT NOT NULL REFERENCES snapshot_runs(id),
	session                TEXT NOT NULL,
	email                  TEXT NOT NULL,
	duration               INT NOT NULL,
	current_inactive_weeks INT NOT NULL,
	inactive_streaks       INT NOT NULL,
	severe                 BOOLEAN NOT NULL,
	remind                 BOOLEAN NOT NULL,
	weeks                  JSONB NOT NULL,
	UNIQUE (run_id, session)
);

CREATE TABLE IF NOT EXISTS dispatch_log (
	id      TEXT PRIMARY KEY,
	run_id  TEXT NOT NULL REFERENCES snapshot_runs(id),
	session TEXT NOT NULL,
	email   TEXT NOT NULL,
	severe  BOOLEAN NOT NULL,
	sent    BOOLEAN NOT NULL,
	error   TEXT,
	attempted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_responses_run_id ON raw_responses(run_id);
CREATE INDEX IF NOT EXISTS idx_status_rows_run_id ON status_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_run_id ON dispatch_log(run_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_session ON dispatch_log(session);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) BeginRun(ctx context.Context) (*model.SnapshotRun, error) {
	run := &model.SnapshotRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshot_runs (id, started_at) VALUES ($1, $2)`,
		run.ID, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, participants, reminded, severe int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE snapshot_runs SET finished_at = $1, participants = $2, reminded = $3, severe = $4 WHERE id = $5`,
		time.Now().UTC(), participants, reminded, severe, runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete run")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.SnapshotRun, error) {
	var run model.SnapshotRun
	var finished *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, started_at, finished_at, participants, reminded, severe FROM snapshot_runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.StartedAt, &finished, &run.Participants, &run.Reminded, &run.Severe)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.SnapshotRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, started_at, finished_at, participants, reminded, severe
		 FROM snapshot_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.SnapshotRun
	for rows.Next() {
		var run model.SnapshotRun
		var finished *time.Time
		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Participants, &run.Reminded, &run.Severe); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if finished != nil {
			run.FinishedAt = *finished
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) SaveRawResponses(ctx context.Context, runID string, records []model.RawResponse) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, rec := range records {
		if _, err := tx.Exec(ctx,
			`INSERT INTO raw_responses (id, run_id, session, created_at, expired_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), runID, rec.Session, rec.CreatedAt, rec.ExpiredAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert raw response")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit raw responses")
}

func (s *PostgresStore) SaveStatusRows(ctx context.Context, runID string, statusRows []model.ParticipantStatus) error {
	if len(statusRows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range statusRows {
		weeksJSON, err := json.Marshal(row.Weeks)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal weeks")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO status_rows (id, run_id, session, email, duration, current_inactive_weeks, inactive_streaks, severe, remind, weeks)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New().String(), runID, row.Session, row.Email, row.Duration,
			row.CurrentInactiveWeeks, row.InactiveStreaks, row.Severe, row.Remind, weeksJSON,
		); err != nil {
			return eris.Wrap(err, "postgres: insert status row")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit status rows")
}

func (s *PostgresStore) GetStatusRows(ctx context.Context, runID string) ([]model.ParticipantStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session, email, duration, current_inactive_weeks, inactive_streaks, severe, remind, weeks
		 FROM status_rows WHERE run_id = $1 ORDER BY session`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query status rows")
	}
	defer rows.Close()

	var out []model.ParticipantStatus
	for rows.Next() {
		var row model.ParticipantStatus
		var weeksJSON []byte
		if err := rows.Scan(&row.Session, &row.Email, &row.Duration,
			&row.CurrentInactiveWeeks, &row.InactiveStreaks, &row.Severe, &row.Remind, &weeksJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status row")
		}
		if err := json.Unmarshal(weeksJSON, &row.Weeks); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal weeks")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveDispatchOutcomes(ctx context.Context, runID string, outcomes []model.DispatchOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, o := range outcomes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO dispatch_log (id, run_id, session, email, severe, sent, error, attempted_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, runID, o.Session, o.Email, o.Severe, o.Sent, o.Error, o.AttemptedAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert dispatch outcome")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit dispatch outcomes")
}
