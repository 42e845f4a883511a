// Package entsoe implements the HTTP client for the ENTSO-E Transparency
// Platform REST API. Requests are context-aware, respect a shared rate
// limiter, and optionally retry on transient errors (429, 5xx).
package entsoe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/derickschaefer/gridfetch/internal/logger"
)

const (
	DefaultBaseURL = "https://web-api.tp.entsoe.eu/api"
	tokenParam     = "securityToken"
	userAgent      = "gridfetch-cli/1.0"
)

// TransportError reports a request that produced no usable response body.
type TransportError struct {
	URL        string // API key redacted
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: HTTP %d from %s: %v", e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Retries    int
	Log        logger.Logger
}

// Client is the transparency platform HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	log        logger.Logger
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	burst := int(opts.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(opts.RatePerSec)
	if opts.RatePerSec <= 0 {
		limit = rate.Inf
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop{}
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		retries:    retries,
		log:        log,
	}
}

// Fetch issues one GET with params and the API key, returning the raw body.
// Bodies of 4xx responses are returned as-is: the API reports "no data" as
// an acknowledgement document with HTTP 400.
func (c *Client) Fetch(ctx context.Context, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set(tokenParam, c.apiKey)
	reqURL := c.baseURL + "?" + q.Encode()
	safe := c.redact(reqURL)
	c.log.Debugw("entsoe request", map[string]any{"url": safe})

	var lastErr error
	lastStatus := 0
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			c.log.Debugw("retrying after backoff", map[string]any{"attempt": attempt, "backoff": backoff.String()})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/xml, application/zip")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, lastStatus = c.scrub(err), 0
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr, lastStatus = fmt.Errorf("reading body: %w", c.scrub(err)), 0
			continue
		}

		c.log.Debugw("entsoe response", map[string]any{"status": resp.StatusCode, "bytes": len(body)})

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			msg := truncate(strings.TrimSpace(string(body)), 200)
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			lastErr, lastStatus = errors.New(msg), resp.StatusCode
			continue
		}
		return body, nil
	}
	return nil, &TransportError{URL: safe, StatusCode: lastStatus, Err: lastErr}
}

func (c *Client) redact(s string) string {
	if c.apiKey == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(c.apiKey), "REDACTED")
	return strings.ReplaceAll(s, c.apiKey, "REDACTED")
}

// scrub removes the API key from errors that embed the request URL.
func (c *Client) scrub(err error) error {
	msg := err.Error()
	if red := c.redact(msg); red != msg {
		return errors.New(red)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
