package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/harborlab/cohortwatch/internal/dispatch"
	"github.com/harborlab/cohortwatch/internal/ingest"
	"github.com/harborlab/cohortwatch/internal/model"
	"github.com/harborlab/cohortwatch/internal/status"
	"github.com/harborlab/cohortwatch/internal/store"
	"github.com/harborlab/cohortwatch/pkg/formr"
	"github.com/harborlab/cohortwatch/pkg/mailgun"
)

// pipelineEnv holds the initialized store, survey source, and status builder
// shared by the status/remind/serve commands.
type pipelineEnv struct {
	Store   store.Store
	Source  *ingest.Source
	Builder *status.Builder
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "cohortwatch.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline validates config for the given mode, opens and migrates the
// store, and wires the survey platform client into a source and builder.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	loc, err := time.LoadLocation(cfg.Platform.Timezone)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Platform.Timezone)
	}

	platform := formr.NewClient(cfg.Platform.ClientID, cfg.Platform.ClientSecret,
		formr.WithBaseURL(cfg.Platform.BaseURL),
		formr.WithLocation(loc),
	)

	source := ingest.New(platform,
		cfg.Platform.SurveyStartID,
		cfg.Platform.SurveyWeeklyID,
		cfg.Platform.EmailFieldName,
	)

	shift := time.Duration(cfg.Pipeline.WeekShiftHours) * time.Hour
	builder := status.NewBuilder(shift, cfg.Pipeline.MaxConcurrentSessions)

	return &pipelineEnv{Store: st, Source: source, Builder: builder}, nil
}

// initRunner wires the mail provider client into a paced dispatch runner.
func initRunner() *dispatch.Runner {
	mail := mailgun.NewClient(cfg.Mailer.Domain, cfg.Mailer.Key,
		mailgun.WithBaseURL(cfg.Mailer.BaseURL),
	)
	dispatcher := dispatch.NewMailDispatcher(mail, cfg.Mailer.SenderAddress)

	return dispatch.NewRunner(dispatcher,
		time.Duration(cfg.Dispatch.MinIntervalSecs)*time.Second,
		time.Duration(cfg.Dispatch.SendTimeoutSecs)*time.Second,
	)
}

// evaluate runs the full fetch-and-classify pipeline once, returning the
// status table and the raw weekly responses that produced it.
func evaluate(ctx context.Context, env *pipelineEnv) (*model.StatusTable, []model.RawResponse, error) {
	contacts, err := env.Source.Contacts(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetch contacts")
	}

	records, err := env.Source.WeeklyResponses(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "fetch weekly responses")
	}

	zap.L().Info("survey data fetched",
		zap.Int("contacts", len(contacts)),
		zap.Int("weekly_responses", len(records)),
	)

	table, err := env.Builder.Build(ctx, records, contacts)
	if err != nil {
		return nil, nil, eris.Wrap(err, "build status table")
	}

	return table, records, nil
}

// persistSnapshot records one evaluation in the store and returns the run.
func persistSnapshot(ctx context.Context, st store.Store, table *model.StatusTable, records []model.RawResponse) (*model.SnapshotRun, error) {
	run, err := st.BeginRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "begin run")
	}

	if err := st.SaveRawResponses(ctx, run.ID, records); err != nil {
		return nil, eris.Wrap(err, "save raw responses")
	}
	if err := st.SaveStatusRows(ctx, run.ID, table.Rows); err != nil {
		return nil, eris.Wrap(err, "save status rows")
	}

	severe := 0
	for _, row := range table.Rows {
		if row.Severe {
			severe++
		}
	}
	if err := st.CompleteRun(ctx, run.ID, len(table.Rows), len(table.Reminders()), severe); err != nil {
		return nil, eris.Wrap(err, "complete run")
	}

	run, err = st.GetRun(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "reload run")
	}
	return run, nil
}
