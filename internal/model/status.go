package model

import "time"

// Classification is the outcome of the streak analysis for one session.
type Classification struct {
	// CurrentInactiveWeeks is the length of the trailing run if that run is
	// inactive, 0 if the participant was active in their latest week.
	CurrentInactiveWeeks int `json:"current_inactive_weeks" yaml:"current_inactive_weeks"`
	// InactiveStreaks counts inactive runs that reached length 2, the
	// still-growing trailing run included once it reaches 2.
	InactiveStreaks int `json:"inactive_streaks" yaml:"inactive_streaks"`
	// Remind fires on the exact second consecutive missed week, never on
	// the first and never again for the same streak.
	Remind bool `json:"remind" yaml:"remind"`
	// Severe marks participants with at least two qualifying inactive
	// streaks across their whole history.
	Severe bool `json:"severe" yaml:"severe"`
}

// ParticipantStatus is one row of the status table: identity, classification,
// and the dense per-week activity vector. Weeks[i] holds week i+1; weeks
// beyond the participant's observed range are absent from the slice, never
// coerced to false.
type ParticipantStatus struct {
	Session string `json:"session" yaml:"session"`
	Email   string `json:"email" yaml:"email"`
	// Duration is the participant's total observed span in weeks, i.e. the
	// highest individual week index.
	Duration int `json:"duration" yaml:"duration"`
	Classification
	Weeks []bool `json:"weeks" yaml:"weeks"`
}

// SkippedSession records a session that was excluded from the status table
// with the reason, so data-integrity problems surface instead of being
// silently classified.
type SkippedSession struct {
	Session string `json:"session" yaml:"session"`
	Reason  string `json:"reason" yaml:"reason"`
}

// StatusTable is the full pipeline output for one evaluation: one row per
// eligible participant plus the sessions that were skipped and why.
type StatusTable struct {
	Rows []ParticipantStatus `json:"rows" yaml:"rows"`
	// MaxWeeks is the widest Duration across all rows; exports pad week
	// columns up to this width with explicit blanks.
	MaxWeeks int              `json:"max_weeks" yaml:"max_weeks"`
	Skipped  []SkippedSession `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Reminders returns the subset of rows with the remind flag set, in table
// order.
func (t *StatusTable) Reminders() []ParticipantStatus {
	var out []ParticipantStatus
	for _, row := range t.Rows {
		if row.Remind {
			out = append(out, row)
		}
	}
	return out
}

// DispatchOutcome is the per-participant result of one reminder send.
// Failures are collected, never retried and never fatal to the batch.
type DispatchOutcome struct {
	ID          string    `json:"id" yaml:"id"`
	Session     string    `json:"session" yaml:"session"`
	Email       string    `json:"email" yaml:"email"`
	Severe      bool      `json:"severe" yaml:"severe"`
	Sent        bool      `json:"sent" yaml:"sent"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at" yaml:"attempted_at"`
}

// SnapshotRun is the persisted record of one pipeline evaluation.
type SnapshotRun struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Participants int       `json:"participants"`
	Reminded     int       `json:"reminded"`
	Severe       int       `json:"severe"`
}
