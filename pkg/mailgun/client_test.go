package mailgun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v3/mg.example.org/messages", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "key-test", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "study@example.org", r.PostFormValue("from"))
		assert.Equal(t, "p1@example.org", r.PostFormValue("to"))
		assert.Equal(t, "We miss you!", r.PostFormValue("subject"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "<msg-1@mg.example.org>", "message": "Queued. Thank you."}`))
	}))
	defer srv.Close()

	client := NewClient("mg.example.org", "key-test", WithBaseURL(srv.URL))
	resp, err := client.Send(context.Background(), Message{
		From:    "study@example.org",
		To:      "p1@example.org",
		Subject: "We miss you!",
		Text:    "It has been two weeks.",
	})

	require.NoError(t, err)
	assert.Equal(t, "<msg-1@mg.example.org>", resp.ID)
}

func TestSend_EmptyRecipient(t *testing.T) {
	t.Parallel()

	client := NewClient("mg.example.org", "key-test")
	_, err := client.Send(context.Background(), Message{From: "a@x.org"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty recipient")
}

func TestSend_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "p1@example.org", r.PostFormValue("to"), "retried request must carry the body again")
		w.Write([]byte(`{"id": "<msg-2>", "message": "Queued."}`))
	}))
	defer srv.Close()

	client := NewClient("mg.example.org", "key-test", WithBaseURL(srv.URL))
	resp, err := client.Send(context.Background(), Message{From: "a@x.org", To: "p1@example.org"})

	require.NoError(t, err)
	assert.Equal(t, "<msg-2>", resp.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_PermanentFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "Forbidden"}`))
	}))
	defer srv.Close()

	client := NewClient("mg.example.org", "bad-key", WithBaseURL(srv.URL))
	_, err := client.Send(context.Background(), Message{From: "a@x.org", To: "b@x.org"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
