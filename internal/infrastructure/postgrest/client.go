// Package postgrest reads flyer price records from a PostgREST endpoint
// such as the one exposed by a hosted Supabase project.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/flyerlens/backend/internal/domain"
	"github.com/flyerlens/backend/internal/logging"
)

const (
	// DefaultPageSize matches the row cap PostgREST applies by default
	DefaultPageSize = 1000

	maxAttempts  = 3
	maxBodyBytes = 32 << 20
	maxLogBytes  = 512
)

// Client pages through a PostgREST table of flyer items
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	table       string
	pageSize    int
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	debug       bool
	logger      zerolog.Logger
}

// NewClient creates a new PostgREST client. requestsPerHour bounds the
// request rate towards the backend.
func NewClient(apiKey, baseURL, table string, requestsPerHour int) *Client {
	if requestsPerHour <= 0 {
		requestsPerHour = 1000
	}
	// rate.Limit is requests per second
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerHour)/3600), 10)

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		table:       table,
		pageSize:    DefaultPageSize,
		rateLimiter: limiter,
		backoff:     exponentialBackoff,
		logger:      logging.Component("postgrest"),
	}
}

// SetPageSize changes how many rows are requested per page
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

// SetDebug enables or disables debug logging
func (c *Client) SetDebug(enabled bool) {
	c.debug = enabled
}

func (c *Client) debugLog(format string, args ...interface{}) {
	if c.debug {
		c.logger.Debug().Msgf(format, args...)
	}
}

// exponentialBackoff returns the wait before retrying after the given attempt
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// FetchRecords downloads every row of the table, newest first
func (c *Client) FetchRecords(ctx context.Context) ([]domain.PriceRecord, error) {
	var records []domain.PriceRecord

	for offset := 0; ; offset += c.pageSize {
		rows, err := c.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, MapRows(rows)...)
		c.debugLog("fetched %d rows at offset %d", len(rows), offset)

		if len(rows) < c.pageSize {
			break
		}
	}

	c.logger.Info().Int("records", len(records)).Str("table", c.table).Msg("records fetched")
	return records, nil
}

func (c *Client) pageURL() string {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("order", "date.desc")
	return fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(c.table), params.Encode())
}

// doRequest executes an HTTP GET request for one page of rows
func (c *Client) doRequest(ctx context.Context, reqURL string, offset int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "FlyerLens/1.0")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+c.pageSize-1))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	return resp, nil
}

// fetchPage retries transient failures (network errors, 5xx, 429) with
// exponential backoff. Other client errors fail immediately.
func (c *Client) fetchPage(ctx context.Context, offset int) ([]map[string]interface{}, error) {
	reqURL := c.pageURL()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("request failed")
			lastErr = err
			continue
		}

		body, err := readLimitedBody(resp.Body, maxBodyBytes)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: reading body: %v", domain.ErrSourceFailure, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
			return decodeRows(body)
		case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
			// offset past the last row
			return nil, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn().
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Str("body", truncate(body, maxLogBytes)).
				Msg("retryable response")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrSourceFailure, resp.StatusCode)
		default:
			c.logger.Error().Int("status", resp.StatusCode).Str("body", truncate(body, maxLogBytes)).Msg("request rejected")
			return nil, fmt.Errorf("%w: status %d", domain.ErrSourceFailure, resp.StatusCode)
		}
	}

	c.logger.Error().Err(lastErr).Int("offset", offset).Msg("all retries failed")
	return nil, lastErr
}

func decodeRows(body []byte) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []map[string]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrSourceFailure, err)
	}
	return rows, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
