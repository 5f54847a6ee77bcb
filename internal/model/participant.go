// Package model defines the domain types shared across the cohortwatch
// pipeline: raw survey responses, normalized weekly observations, per-session
// classifications, and the final status table consumed by exports and the
// reminder dispatcher.
package model

import "time"

// Participant is one enrolled study member. The session key is assigned by
// the survey platform at enrollment and stays stable for the whole study.
type Participant struct {
	Session string `json:"session" yaml:"session"`
	Email   string `json:"email" yaml:"email"`
}

// RawResponse is one row of a weekly survey results export: a single survey
// instance created for a session, answered or not. ExpiredAt is set only
// when the platform closed the instance unanswered.
type RawResponse struct {
	Session   string     `json:"session" yaml:"session"`
	CreatedAt time.Time  `json:"created" yaml:"created"`
	ExpiredAt *time.Time `json:"expired,omitempty" yaml:"expired,omitempty"`
}

// Active reports whether this response counts as engagement. An instance
// that is still open (unanswered but not expired) counts as active; only an
// explicitly expired instance is inactive.
func (r RawResponse) Active() bool {
	return r.ExpiredAt == nil
}

// WeeklyObservation is the collapsed activity value for one session in one
// study week. WeekKey is ISO-year*100 + ISO-week of the shifted response
// time; WeekIndex is the 1-based ordinal of that week within the session's
// own observed weeks, so participants enrolling on different calendar dates
// are aligned to week 1 = their own first week.
type WeeklyObservation struct {
	Session   string `json:"session"`
	WeekKey   int    `json:"week_key"`
	WeekIndex int    `json:"week_index"`
	Active    bool   `json:"active"`
}
