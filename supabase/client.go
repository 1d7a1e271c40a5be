// Package supabase is a small PostgREST client for the Supabase tables the
// service writes to (waitlist_subscribers, jobs, job_logs).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/resilience"
)

// ErrNotConfigured is returned by New when the URL or key is missing.
var ErrNotConfigured = errors.New("supabase: url and key are required")

// APIError is a non-2xx response from PostgREST.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Options tunes a Client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      *resilience.RetryConfig
	Breaker    *resilience.CircuitBreaker
	Logger     *logger.Logger
}

// Client talks to {url}/rest/v1 with a single API key.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	breaker    *resilience.CircuitBreaker
	log        *logger.Logger
}

// New builds a client for baseURL authenticated with key (anon or
// service-role).
func New(baseURL, key string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" || key == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("supabase: bad url %q: %w", baseURL, err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	retry := opts.Retry
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "supabase")

	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:        "supabase",
			MaxFailures: 5,
			Cooldown:    30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				log.Warnf("circuit %s -> %s", from, to)
			},
		})
	}

	return &Client{
		baseURL:    baseURL,
		key:        key,
		httpClient: hc,
		retry:      retry,
		breaker:    breaker,
		log:        log,
	}, nil
}

// Insert posts row to table and decodes the returned representation
// (always a JSON array) into out. out may be nil.
func (c *Client) Insert(ctx context.Context, table string, row interface{}, out interface{}) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("supabase: encode %s row: %w", table, err)
	}
	header := http.Header{}
	header.Set("Prefer", "return=representation")
	return c.do(ctx, http.MethodPost, table, nil, body, header, out)
}

// Select runs GET /rest/v1/{table}?{query} and decodes the rows into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, table, query, nil, nil, out)
}

func (c *Client) endpoint(table string, query url.Values) string {
	u := c.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body []byte, header http.Header, out interface{}) error {
	var payload []byte
	err := resilience.RetryWithConfig(ctx, c.retry, func() error {
		return c.breaker.Execute(func() error {
			var reqBody io.Reader
			if body != nil {
				reqBody = bytes.NewReader(body)
			}
			req, err := http.NewRequestWithContext(ctx, method, c.endpoint(table, query), reqBody)
			if err != nil {
				return resilience.Permanent(err)
			}
			req.Header.Set("apikey", c.key)
			req.Header.Set("Authorization", "Bearer "+c.key)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for k, vs := range header {
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
			if err != nil {
				return err
			}
			if resp.StatusCode/100 != 2 {
				apiErr := &APIError{Status: resp.StatusCode, Body: string(raw)}
				c.log.WithFields(map[string]interface{}{
					"table":  table,
					"method": method,
					"status": resp.StatusCode,
				}).Warn("supabase request failed: " + strings.TrimSpace(string(raw)))
				return apiErr
			}
			payload = raw
			return nil
		})
	})
	if err != nil {
		return unwrapRetry(err)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("supabase: decode %s response: %w", table, err)
	}
	return nil
}

// unwrapRetry surfaces the final APIError so callers can inspect the status
// without knowing about the retry wrapper.
func unwrapRetry(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return err
}
