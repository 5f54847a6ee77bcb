// Package ingest maps survey platform exports onto the pipeline's domain
// types: the enrollment survey yields the session → contact address mapping,
// the recurring survey yields the weekly activity records.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborlab/cohortwatch/internal/model"
	"github.com/harborlab/cohortwatch/pkg/formr"
)

// Source wraps the platform client with the study's survey and field names.
type Source struct {
	client       formr.Client
	startSurvey  string
	weeklySurvey string
	emailField   string
}

// New creates a Source for the given surveys. emailField names the
// enrollment item holding the contact address.
func New(client formr.Client, startSurvey, weeklySurvey, emailField string) *Source {
	return &Source{
		client:       client,
		startSurvey:  startSurvey,
		weeklySurvey: weeklySurvey,
		emailField:   emailField,
	}
}

// Contacts fetches the enrollment survey and returns session → email.
// Sessions without an address are dropped here, which downstream makes them
// ineligible for the status table.
func (s *Source) Contacts(ctx context.Context) (map[string]string, error) {
	rows, err := s.client.Results(ctx, s.startSurvey)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s", s.startSurvey)
	}

	contacts := make(map[string]string, len(rows))
	dropped := 0
	for _, row := range rows {
		if row.Session == "" {
			continue
		}
		email := row.Answer(s.emailField)
		if email == "" {
			dropped++
			continue
		}
		contacts[row.Session] = email
	}
	if dropped > 0 {
		zap.L().Debug("enrollment rows without contact address dropped",
			zap.Int("count", dropped),
		)
	}
	return contacts, nil
}

// WeeklyResponses fetches the recurring survey's raw response log. Rows
// without a creation timestamp cannot be placed in a study week and are
// skipped with a warning.
func (s *Source) WeeklyResponses(ctx context.Context) ([]model.RawResponse, error) {
	rows, err := s.client.Results(ctx, s.weeklySurvey)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s", s.weeklySurvey)
	}

	records := make([]model.RawResponse, 0, len(rows))
	for _, row := range rows {
		if row.Session == "" {
			continue
		}
		if row.Created == nil {
			zap.L().Warn("weekly response without creation timestamp",
				zap.String("session", row.Session),
			)
			continue
		}
		records = append(records, model.RawResponse{
			Session:   row.Session,
			CreatedAt: *row.Created,
			ExpiredAt: row.Expired,
		})
	}
	return records, nil
}
