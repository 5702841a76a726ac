// Package github reads the GitHub REST API for the data fetcher.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	commonhttp "github-insight/internal/common/http"
	"github-insight/internal/intent"
)

const (
	DefaultBaseURL = "https://api.github.com"

	// maxBodyBytes bounds a single provider response.
	maxBodyBytes = 5 << 20
)

var (
	ErrProviderTimeout = errors.New("PROVIDER_TIMEOUT")
	ErrProviderFailed  = errors.New("PROVIDER_FETCH_FAILED")
)

// StatusError reports a non-2xx provider response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: GET %s returned %d", ErrProviderFailed, e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrProviderFailed }

type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	// Timeout bounds each request; callers may set a shorter context deadline.
	Timeout time.Duration
}

// Client issues read-only requests to the provider.
type Client struct {
	baseURL string
	http    *commonhttp.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "github-insight"
	}

	hc := commonhttp.NewClient(cfg.Timeout).
		WithHeader("Accept", "application/vnd.github+json").
		WithHeader("X-GitHub-Api-Version", "2022-11-28").
		WithHeader("User-Agent", cfg.UserAgent)
	if cfg.Token != "" {
		hc.WithHeader("Authorization", "Bearer "+cfg.Token)
	}

	return &Client{baseURL: cfg.BaseURL, http: hc}
}

// Fetch performs req and returns the raw body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, req intent.Request) ([]byte, error) {
	url := req.URL(c.baseURL)

	status, body, err := c.http.Get(ctx, url, maxBodyBytes)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: GET %s", ErrProviderTimeout, url)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: status, URL: url}
	}
	return body, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
