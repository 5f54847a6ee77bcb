// Package mailgun provides a minimal client for the Mailgun messages API,
// used to deliver reminder emails.
package mailgun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the mail-sending operation the dispatcher needs.
type Client interface {
	// Send delivers one message and returns the provider's receipt.
	Send(ctx context.Context, msg Message) (*SendResponse, error)
}

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
}

// SendResponse is the provider's acceptance receipt.
type SendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Option configures the mailgun client.
type Option func(*httpClient)

// WithBaseURL sets a custom API base URL (for testing or the EU region).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	domain  string
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Mailgun client for the given sending domain.
func NewClient(domain, apiKey string, opts ...Option) Client {
	c := &httpClient{
		domain:  domain,
		apiKey:  apiKey,
		baseURL: "https://api.mailgun.net",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

func (c *httpClient) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	if msg.To == "" {
		return nil, eris.New("mailgun: empty recipient")
	}

	form := url.Values{
		"from":    {msg.From},
		"to":      {msg.To},
		"subject": {msg.Subject},
		"text":    {msg.Text},
	}
	reqURL := fmt.Sprintf("%s/v3/%s/messages", c.baseURL, c.domain)

	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, eris.Wrap(err, "mailgun: create request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth("api", c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = eris.Wrap(err, "mailgun: request failed")
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "mailgun: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("mailgun: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("mailgun: unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var result SendResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, eris.Wrap(err, "mailgun: unmarshal response")
		}
		return &result, nil
	}

	return nil, lastErr
}
