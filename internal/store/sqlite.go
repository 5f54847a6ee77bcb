package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/harborlab/cohortwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME,
	participants INTEGER NOT NULL DEFAULT 0,
	reminded     INTEGER NOT NULL DEFAULT 0,
	severe       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS raw_responses (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES snapshot_runs(id),
	session    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expired_at DATETIME
);

CREATE TABLE IF NOT EXISTS status_rows (
	id                     TEXT PRIMARY KEY,
	run_id                 TEXT NOT NULL REFERENCES snapshot_runs(id),
	session                TEXT NOT NULL,
	email                  TEXT NOT NULL,
	duration               INTEGER NOT NULL,
	current_inactive_weeks INTEGER NOT NULL,
	inactive_streaks       INTEGER NOT NULL,
	severe                 INTEGER NOT NULL,
	remind                 INTEGER NOT NULL,
	weeks                  TEXT NOT NULL,
	UNIQUE (run_id, session)
);

CREATE TABLE IF NOT EXISTS dispatch_log (
	id      TEXT PRIMARY KEY,
	run_id  TEXT NOT NULL REFERENCES snapshot_runs(id),
	session TEXT NOT NULL,
	email   TEXT NOT NULL,
	severe  INTEGER NOT NULL,
	sent    INTEGER NOT NULL,
	error   TEXT,
	attempted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_responses_run_id ON raw_responses(run_id);
CREATE INDEX IF NOT EXISTS idx_status_rows_run_id ON status_rows(run_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_run_id ON dispatch_log(run_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_session ON dispatch_log(session);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) BeginRun(ctx context.Context) (*model.SnapshotRun, error) {
	run := &model.SnapshotRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_runs (id, started_at) VALUES (?, ?)`,
		run.ID, run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, participants, reminded, severe int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE snapshot_runs SET finished_at = ?, participants = ?, reminded = ?, severe = ? WHERE id = ?`,
		time.Now().UTC(), participants, reminded, severe, runID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.SnapshotRun, error) {
	var run model.SnapshotRun
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, participants, reminded, severe FROM snapshot_runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.StartedAt, &finished, &run.Participants, &run.Reminded, &run.Severe)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.SnapshotRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, participants, reminded, severe
		 FROM snapshot_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.SnapshotRun
	for rows.Next() {
		var run model.SnapshotRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Participants, &run.Reminded, &run.Severe); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) SaveRawResponses(ctx context.Context, runID string, records []model.RawResponse) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO raw_responses (id, run_id, session, created_at, expired_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare raw insert")
	}
	defer stmt.Close()

	for _, rec := range records {
		var expired any
		if rec.ExpiredAt != nil {
			expired = *rec.ExpiredAt
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), runID, rec.Session, rec.CreatedAt, expired); err != nil {
			return eris.Wrap(err, "sqlite: insert raw response")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit raw responses")
}

func (s *SQLiteStore) SaveStatusRows(ctx context.Context, runID string, statusRows []model.ParticipantStatus) error {
	if len(statusRows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO status_rows (id, run_id, session, email, duration, current_inactive_weeks, inactive_streaks, severe, remind, weeks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare status insert")
	}
	defer stmt.Close()

	for _, row := range statusRows {
		weeksJSON, err := json.Marshal(row.Weeks)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal weeks")
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), runID, row.Session, row.Email, row.Duration,
			row.CurrentInactiveWeeks, row.InactiveStreaks, row.Severe, row.Remind, string(weeksJSON),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert status row")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit status rows")
}

func (s *SQLiteStore) GetStatusRows(ctx context.Context, runID string) ([]model.ParticipantStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session, email, duration, current_inactive_weeks, inactive_streaks, severe, remind, weeks
		 FROM status_rows WHERE run_id = ? ORDER BY session`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query status rows")
	}
	defer rows.Close()

	var out []model.ParticipantStatus
	for rows.Next() {
		var row model.ParticipantStatus
		var weeksJSON string
		if err := rows.Scan(&row.Session, &row.Email, &row.Duration,
			&row.CurrentInactiveWeeks, &row.InactiveStreaks, &row.Severe, &row.Remind, &weeksJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status row")
		}
		if err := json.Unmarshal([]byte(weeksJSON), &row.Weeks); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal weeks")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveDispatchOutcomes(ctx context.Context, runID string, outcomes []model.DispatchOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dispatch_log (id, run_id, session, email, severe, sent, error, attempted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare dispatch insert")
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx,
			o.ID, runID, o.Session, o.Email, o.Severe, o.Sent, o.Error, o.AttemptedAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert dispatch outcome")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit dispatch outcomes")
}
