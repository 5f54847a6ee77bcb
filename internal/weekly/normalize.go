// Package weekly converts raw timestamped survey responses into one boolean
// activity value per participant per study week.
package weekly

import (
	"sort"
	"time"

	"github.com/harborlab/cohortwatch/internal/model"
)

// DefaultShift moves the week boundary off the ISO-calendar Monday 00:00.
// Subtracting 3 days and 9 hours before computing the ISO week puts the
// boundary at Thursday 09:00, matching the weekly survey's release schedule.
const DefaultShift = 3*24*time.Hour + 9*time.Hour

// WeekKey returns the sortable calendar week key for a response timestamp:
// ISO-year*100 + ISO-week of the shifted time. Multiplying the year by 100
// keeps year and week in one ordinal that sorts chronologically.
func WeekKey(t time.Time, shift time.Duration) int {
	year, week := t.Add(-shift).ISOWeek()
	return year*100 + week
}

// Normalize collapses raw responses into per-week observations. Multiple
// responses in the same (session, calendar week) merge into one value by
// logical OR: a single non-expired instance makes the week active even if a
// reminder instance in the same week expired. Each session's distinct weeks
// are then ranked ascending to assign the 1-based individual week index.
// Sessions with zero responses simply produce no observations.
//
// The result is sorted by session, then week index, so identical input
// always yields identical output.
func Normalize(records []model.RawResponse, shift time.Duration) []model.WeeklyObservation {
	type weekSet map[int]bool

	bySession := make(map[string]weekSet)
	for _, rec := range records {
		if rec.Session == "" {
			continue
		}
		key := WeekKey(rec.CreatedAt, shift)
		weeks, ok := bySession[rec.Session]
		if !ok {
			weeks = make(weekSet)
			bySession[rec.Session] = weeks
		}
		weeks[key] = weeks[key] || rec.Active()
	}

	sessions := make([]string, 0, len(bySession))
	for session := range bySession {
		sessions = append(sessions, session)
	}
	sort.Strings(sessions)

	var out []model.WeeklyObservation
	for _, session := range sessions {
		weeks := bySession[session]
		keys := make([]int, 0, len(weeks))
		for key := range weeks {
			keys = append(keys, key)
		}
		sort.Ints(keys)

		for i, key := range keys {
			out = append(out, model.WeeklyObservation{
				Session:   session,
				WeekKey:   key,
				WeekIndex: i + 1,
				Active:    weeks[key],
			})
		}
	}
	return out
}

// BySession groups observations by session key, preserving week order.
func BySession(obs []model.WeeklyObservation) map[string][]model.WeeklyObservation {
	out := make(map[string][]model.WeeklyObservation)
	for _, o := range obs {
		out[o.Session] = append(out[o.Session], o)
	}
	return out
}
