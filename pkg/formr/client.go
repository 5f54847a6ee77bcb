// Package formr provides a client for the formr survey platform API:
// client-credentials auth plus per-survey results retrieval.
package formr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the survey platform operations the pipeline needs.
type Client interface {
	// Results fetches all result rows recorded for the named survey.
	Results(ctx context.Context, surveyName string) ([]ResultRow, error)
}

// Option configures the formr client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing or self-hosted formr).
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

// WithLocation sets the timezone used to parse the platform's local
// timestamps. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *httpClient) {
		c.loc = loc
	}
}

type httpClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	http         *http.Client
	loc          *time.Location

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a formr API client authenticating with OAuth client
// credentials.
func NewClient(clientID, clientSecret string, opts ...Option) Client {
	c := &httpClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://api.formr.org",
		loc:          time.UTC,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient failures.
// makeReq builds a fresh request per attempt so POST bodies survive retries.
func (c *httpClient) retryDo(ctx context.Context, makeReq func() (*http.Request, error)) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := makeReq()
		if err != nil {
			return nil, 0, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "formr: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("formr: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached token, refreshing through the OAuth
// client-credentials grant when missing or within a minute of expiry.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.token, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"client_credentials"},
	}

	body, statusCode, err := c.retryDo(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, eris.Wrap(err, "formr: create token request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "formr: token request failed")
	}
	if statusCode != http.StatusOK {
		return "", eris.Errorf("formr: token unexpected status %d: %s", statusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "formr: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("formr: empty access token")
	}

	c.token = tok.AccessToken
	if tok.ExpiresIn > 0 {
		c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	} else {
		c.tokenExpiry = time.Now().Add(time.Hour)
	}
	return c.token, nil
}

func (c *httpClient) Results(ctx context.Context, surveyName string) ([]ResultRow, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/api/get/results?survey_name=%s", c.baseURL, url.QueryEscape(surveyName))

	body, statusCode, err := c.retryDo(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "formr: create results request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "formr: results request failed for %s", surveyName)
	}
	if statusCode != http.StatusOK {
		return nil, eris.Errorf("formr: results unexpected status %d for %s: %s", statusCode, surveyName, string(body))
	}

	rows, err := parseResults(body, c.loc)
	if err != nil {
		return nil, eris.Wrapf(err, "formr: parse results for %s", surveyName)
	}
	return rows, nil
}
