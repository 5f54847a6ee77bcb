// Package status joins contact data with streak classifications into the
// per-participant status table.
package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harborlab/cohortwatch/internal/model"
	"github.com/harborlab/cohortwatch/internal/streak"
	"github.com/harborlab/cohortwatch/internal/weekly"
)

// Builder runs the normalize → segment → classify pipeline and assembles
// the status table. Sessions are independent, so classification fans out
// across a bounded worker group and merges at the end.
type Builder struct {
	shift       time.Duration
	concurrency int
}

// NewBuilder creates a Builder. A non-positive concurrency falls back to 4.
func NewBuilder(shift time.Duration, concurrency int) *Builder {
	if shift == 0 {
		shift = weekly.DefaultShift
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{shift: shift, concurrency: concurrency}
}

// Build computes one status row per eligible participant. Contacts maps
// session key to email address; every join is an inner join, so sessions
// missing from either input are excluded. Sessions whose week sequence
// fails the contiguity check are reported in the table's Skipped list and
// logged, never silently classified.
func (b *Builder) Build(ctx context.Context, records []model.RawResponse, contacts map[string]string) (*model.StatusTable, error) {
	return b.FromObservations(ctx, weekly.Normalize(records, b.shift), contacts)
}

// FromObservations assembles the table from already-normalized observations.
func (b *Builder) FromObservations(ctx context.Context, obs []model.WeeklyObservation, contacts map[string]string) (*model.StatusTable, error) {
	grouped := weekly.BySession(obs)

	sessions := make([]string, 0, len(grouped))
	for session := range grouped {
		if contacts[session] == "" {
			continue // no actionable destination
		}
		sessions = append(sessions, session)
	}
	sort.Strings(sessions)

	table := &model.StatusTable{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, session := range sessions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sessionObs := grouped[session]
			classification, err := streak.Evaluate(sessionObs)
			if err != nil {
				zap.L().Warn("skipping session with broken week sequence",
					zap.String("session", session),
					zap.Error(err),
				)
				mu.Lock()
				table.Skipped = append(table.Skipped, model.SkippedSession{
					Session: session,
					Reason:  err.Error(),
				})
				mu.Unlock()
				return nil
			}

			weeks := make([]bool, len(sessionObs))
			for i, o := range sessionObs {
				weeks[i] = o.Active
			}

			mu.Lock()
			table.Rows = append(table.Rows, model.ParticipantStatus{
				Session:        session,
				Email:          contacts[session],
				Duration:       len(sessionObs),
				Classification: classification,
				Weeks:          weeks,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(table.Rows, func(i, j int) bool {
		return table.Rows[i].Session < table.Rows[j].Session
	})
	sort.Slice(table.Skipped, func(i, j int) bool {
		return table.Skipped[i].Session < table.Skipped[j].Session
	})
	for _, row := range table.Rows {
		if row.Duration > table.MaxWeeks {
			table.MaxWeeks = row.Duration
		}
	}
	return table, nil
}
