package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harborlab/cohortwatch/internal/model"
)

// DefaultMinInterval is the mandatory spacing between consecutive sends,
// protecting the mail provider's rate limits.
const DefaultMinInterval = 5 * time.Second

// Runner serializes reminder sends. Dispatch is the pipeline's only
// suspension point: everything upstream is pure computation, so this is
// where spacing, timeouts and failure collection live. A failed send is
// recorded and logged, never retried and never fatal to the batch.
type Runner struct {
	dispatcher  Dispatcher
	limiter     *rate.Limiter
	sendTimeout time.Duration
}

// NewRunner creates a Runner enforcing minInterval between sends.
// Non-positive values fall back to the defaults.
func NewRunner(d Dispatcher, minInterval, sendTimeout time.Duration) *Runner {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	// Burst 1 and no initial token debt: the first send goes out
	// immediately, every later one waits out the interval.
	return &Runner{
		dispatcher:  d,
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
		sendTimeout: sendTimeout,
	}
}

// Run dispatches one reminder per remind-eligible row, in table order, and
// returns one outcome per attempted send. Rows without the remind flag are
// ignored so a caller can hand over the full table. Cancelling ctx stops
// the batch after the in-flight send.
func (r *Runner) Run(ctx context.Context, rows []model.ParticipantStatus) []model.DispatchOutcome {
	var outcomes []model.DispatchOutcome

	for _, row := range rows {
		if !row.Remind {
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			zap.L().Warn("dispatch batch cancelled",
				zap.String("session", row.Session),
				zap.Error(err),
			)
			return outcomes
		}

		outcome := model.DispatchOutcome{
			ID:          uuid.New().String(),
			Session:     row.Session,
			Email:       row.Email,
			Severe:      row.Severe,
			AttemptedAt: time.Now().UTC(),
		}

		sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
		err := r.dispatcher.Dispatch(sendCtx, row.Email, row.Severe)
		cancel()

		if err != nil {
			outcome.Error = err.Error()
			zap.L().Error("reminder send failed",
				zap.String("session", row.Session),
				zap.Bool("severe", row.Severe),
				zap.Error(err),
			)
		} else {
			outcome.Sent = true
			zap.L().Info("reminder sent",
				zap.String("session", row.Session),
				zap.Bool("severe", row.Severe),
			)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}
