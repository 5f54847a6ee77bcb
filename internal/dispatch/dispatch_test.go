package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborlab/cohortwatch/internal/model"
	"github.com/harborlab/cohortwatch/pkg/mailgun"
)

// recordingMail captures sent messages.
type recordingMail struct {
	mu       sync.Mutex
	messages []mailgun.Message
	err      error
}

func (m *recordingMail) Send(_ context.Context, msg mailgun.Message) (*mailgun.SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.messages = append(m.messages, msg)
	return &mailgun.SendResponse{ID: "<queued>"}, nil
}

func TestMailDispatcher_SelectsTemplateBySeverity(t *testing.T) {
	mail := &recordingMail{}
	d := NewMailDispatcher(mail, "study@example.org")

	require.NoError(t, d.Dispatch(context.Background(), "p1@example.org", false))
	require.NoError(t, d.Dispatch(context.Background(), "p2@example.org", true))

	require.Len(t, mail.messages, 2)
	assert.Equal(t, "study@example.org", mail.messages[0].From)
	assert.Equal(t, mildSubject, mail.messages[0].Subject)
	assert.Equal(t, severeSubject, mail.messages[1].Subject)
	assert.NotEqual(t, mail.messages[0].Text, mail.messages[1].Text)
}

func TestMailDispatcher_WrapsSendError(t *testing.T) {
	d := NewMailDispatcher(&recordingMail{err: eris.New("smtp down")}, "study@example.org")
	err := d.Dispatch(context.Background(), "p1@example.org", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p1@example.org")
}

// stubDispatcher records calls and fails for selected addresses.
type stubDispatcher struct {
	mu       sync.Mutex
	calls    []string
	failFor  map[string]bool
	callTime []time.Time
}

func (s *stubDispatcher) Dispatch(_ context.Context, address string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, address)
	s.callTime = append(s.callTime, time.Now())
	if s.failFor[address] {
		return eris.New("delivery refused")
	}
	return nil
}

func row(session, email string, remind, severe bool) model.ParticipantStatus {
	return model.ParticipantStatus{
		Session: session,
		Email:   email,
		Classification: model.Classification{
			Remind: remind,
			Severe: severe,
		},
	}
}

func TestRunner_OneSendPerEligibleRow(t *testing.T) {
	stub := &stubDispatcher{}
	r := NewRunner(stub, time.Millisecond, time.Second)

	outcomes := r.Run(context.Background(), []model.ParticipantStatus{
		row("s1", "a@x.org", true, false),
		row("s2", "b@x.org", false, false),
		row("s3", "c@x.org", true, true),
	})

	assert.Equal(t, []string{"a@x.org", "c@x.org"}, stub.calls)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Sent)
	assert.False(t, outcomes[0].Severe)
	assert.True(t, outcomes[1].Severe)
	assert.NotEmpty(t, outcomes[0].ID)
}

func TestRunner_FailureDoesNotAbortBatch(t *testing.T) {
	stub := &stubDispatcher{failFor: map[string]bool{"a@x.org": true}}
	r := NewRunner(stub, time.Millisecond, time.Second)

	outcomes := r.Run(context.Background(), []model.ParticipantStatus{
		row("s1", "a@x.org", true, false),
		row("s2", "b@x.org", true, false),
	})

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Sent)
	assert.Contains(t, outcomes[0].Error, "delivery refused")
	assert.True(t, outcomes[1].Sent)
	assert.Empty(t, outcomes[1].Error)

	// The ledger records when each attempt happened, failed ones included.
	for _, o := range outcomes {
		assert.False(t, o.AttemptedAt.IsZero())
	}
}

func TestRunner_EnforcesMinimumSpacing(t *testing.T) {
	stub := &stubDispatcher{}
	r := NewRunner(stub, 50*time.Millisecond, time.Second)

	start := time.Now()
	r.Run(context.Background(), []model.ParticipantStatus{
		row("s1", "a@x.org", true, false),
		row("s2", "b@x.org", true, false),
		row("s3", "c@x.org", true, false),
	})

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond,
		"three serialized sends need at least two full intervals")
	require.Len(t, stub.callTime, 3)
	assert.GreaterOrEqual(t, stub.callTime[1].Sub(stub.callTime[0]), 40*time.Millisecond)
}

func TestRunner_CancelStopsBatch(t *testing.T) {
	stub := &stubDispatcher{}
	r := NewRunner(stub, time.Hour, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcomes := r.Run(ctx, []model.ParticipantStatus{
		row("s1", "a@x.org", true, false),
		row("s2", "b@x.org", true, false),
	})

	// First send consumes the initial token; the second would wait an hour
	// and is cut off by cancellation.
	assert.Len(t, outcomes, 1)
	assert.Equal(t, []string{"a@x.org"}, stub.calls)
}

func TestRunner_NoEligibleRows(t *testing.T) {
	stub := &stubDispatcher{}
	r := NewRunner(stub, 0, 0)

	outcomes := r.Run(context.Background(), []model.ParticipantStatus{
		row("s1", "a@x.org", false, false),
	})

	assert.Empty(t, outcomes)
	assert.Empty(t, stub.calls)
}
