// Package gamepress scrapes free quest drop rates from the GamePress
// Fate/Grand Order wiki.
package gamepress

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/lawnchairsociety/dropefficiency/internal/logger"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	defaultConcurrency = 4
	backoffBase        = 500 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	UserAgent string

	// RequestsPerMinute caps the request rate. 0 means unlimited.
	RequestsPerMinute int

	Timeout     time.Duration
	MaxRetries  int
	Concurrency int
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// retryable reports whether the request may succeed if repeated.
func (e *StatusError) retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client downloads wiki pages.
type Client struct {
	baseURL     string
	userAgent   string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	concurrency int
	backoff     time.Duration
}

// NewClient creates a Client. Zero fields of cfg get defaults.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		burst = min(cfg.RequestsPerMinute, concurrency)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		http:        &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(limit, burst),
		maxRetries:  retries,
		concurrency: concurrency,
		backoff:     backoffBase,
	}
}

// Get downloads the page at path, relative to the base URL, and returns it
// with HTML entities decoded. Network errors, 429 and 5xx responses are
// retried with exponential backoff.
func (c *Client) Get(ctx context.Context, path string) (string, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff * time.Duration(1<<uint(attempt-1))
			logger.Debug("Retrying page fetch", "url", url, "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.fetch(ctx, url)
		if err == nil {
			return html.UnescapeString(string(body)), nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}

	return "", fmt.Errorf("failed to fetch %s after %d attempts: %w", url, c.maxRetries, lastErr)
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	// Setting Accept-Encoding by hand turns off the transport's transparent
	// gzip, so both encodings are decoded below.
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	var reader io.Reader
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	default:
		reader = resp.Body
	}

	return io.ReadAll(bufio.NewReaderSize(reader, 64*1024))
}
