package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Credentials address one table of the remote store
type Credentials struct {
	APIKey       string
	CollectionID string
	Table        string
}

// Valid reports whether the credentials can be used for a request
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.CollectionID) != ""
}

// Options tune retry, pagination and batching
type Options struct {
	BaseURL         string
	MaxAttempts     int
	BackoffBase     time.Duration
	PageSize        int
	MaxPages        int
	BatchSize       int
	DeleteBatchSize int
	BatchPause      time.Duration
}

// DefaultOptions match the public remote store's documented limits
func DefaultOptions() Options {
	return Options{
		BaseURL:         "https://api.airtable.com/v0",
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		PageSize:        100,
		MaxPages:        1000,
		BatchSize:       10,
		DeleteBatchSize: 5,
		BatchPause:      200 * time.Millisecond,
	}
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real-clock Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Operation is a single request against the table endpoint
type Operation struct {
	Method string
	Query  url.Values
}

// Client talks to one table of the remote store
type Client struct {
	creds      Credentials
	opts       Options
	httpClient *http.Client
	sleep      Sleeper
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient, a nil sleep
// uses the real clock.
func NewClient(creds Credentials, opts Options, httpClient *http.Client, sleep Sleeper) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.PageSize < 1 {
		opts.PageSize = def.PageSize
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = def.MaxPages
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.DeleteBatchSize < 1 {
		opts.DeleteBatchSize = def.DeleteBatchSize
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	return &Client{creds: creds, opts: opts, httpClient: httpClient, sleep: sleep}
}

// Options returns the effective options
func (c *Client) Options() Options {
	return c.opts
}

// Execute performs op with bounded retry and returns the response body.
// A 429 answer waits base*2^attempt, any other failure waits base*attempt.
func (c *Client) Execute(ctx context.Context, op Operation, payload any) ([]byte, error) {
	if !c.creds.Valid() {
		return nil, ErrConfigInvalid
	}

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		status, respBody, err := c.do(ctx, op, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
		} else if status >= 200 && status < 300 {
			return respBody, nil
		} else if status == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			if attempt < c.opts.MaxAttempts {
				wait := c.opts.BackoffBase * time.Duration(1<<attempt)
				log.Printf("⚠️ Rate limited, waiting %v before retry %d/%d", wait, attempt, c.opts.MaxAttempts)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
			}
			continue
		} else {
			statusErr := &StatusError{Code: status, Body: strings.TrimSpace(string(respBody))}
			if status >= 500 {
				lastErr = fmt.Errorf("%w: %w", ErrRemoteUnavailable, statusErr)
			} else {
				lastErr = statusErr
			}
		}

		if attempt < c.opts.MaxAttempts {
			log.Printf("⚠️ Attempt %d/%d failed: %v, retrying...", attempt, c.opts.MaxAttempts, lastErr)
			if err := c.sleep(ctx, c.opts.BackoffBase*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%s %s failed after %d attempts: %w", op.Method, c.creds.Table, c.opts.MaxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, op Operation, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.endpoint(op.Query), reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) endpoint(query url.Values) string {
	u := strings.TrimRight(c.opts.BaseURL, "/") + "/" +
		url.PathEscape(c.creds.CollectionID) + "/" + url.PathEscape(c.creds.Table)
	if len(query) > 0 {
		u += "?" + encodeQuery(query)
	}
	return u
}

// encodeQuery keeps "records[]" brackets literal as the remote store expects
func encodeQuery(query url.Values) string {
	return strings.ReplaceAll(query.Encode(), "records%5B%5D", "records[]")
}

// Ping fetches at most one record to verify credentials and reachability
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, Operation{
		Method: http.MethodGet,
		Query:  url.Values{"maxRecords": {"1"}},
	}, nil)
	return err
}

// ListAll follows the offset token until the table is exhausted. A repeated
// token or more than MaxPages pages fails with ErrRemoteUnavailable.
func (c *Client) ListAll(ctx context.Context) ([]Record, error) {
	var all []Record
	offset := ""
	seen := make(map[string]bool)
	for page := 1; ; page++ {
		if page > c.opts.MaxPages {
			return nil, fmt.Errorf("listing exceeded %d pages: %w", c.opts.MaxPages, ErrRemoteUnavailable)
		}
		query := url.Values{"pageSize": {fmt.Sprint(c.opts.PageSize)}}
		if offset != "" {
			query.Set("offset", offset)
		}

		body, err := c.Execute(ctx, Operation{Method: http.MethodGet, Query: query}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list page %d: %w", page, err)
		}

		var p recordPage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("failed to decode page %d: %w", page, err)
		}
		all = append(all, p.Records...)

		if p.Offset == "" {
			return all, nil
		}
		if seen[p.Offset] {
			return nil, fmt.Errorf("page %d repeated offset %q: %w", page, p.Offset, ErrRemoteUnavailable)
		}
		seen[p.Offset] = true
		offset = p.Offset
	}
}
