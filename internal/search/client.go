package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

// Waiter paces calls per key. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// ClientConfig configures the shared provider HTTP client.
type ClientConfig struct {
	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
	// UserAgent is sent on every request.
	UserAgent string
}

// Client performs JSON GET requests against search APIs with pacing and
// retries. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
	retry     RetryPolicy
	limiter   Waiter
	logger    *zap.Logger
}

// NewHTTPClient builds an http.Client tuned for short-lived API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NewClient creates a Client. retry and limiter may be nil to disable retries
// and pacing respectively.
func NewClient(cfg ClientConfig, retry RetryPolicy, limiter Waiter, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      NewHTTPClient(cfg.Timeout),
		userAgent: cfg.UserAgent,
		retry:     retry,
		limiter:   limiter,
		logger:    logger,
	}
}

// GetJSON issues GET endpoint?params and decodes the JSON response into out.
func (c *Client) GetJSON(
	ctx context.Context,
	source Source,
	endpoint string,
	params url.Values,
	header http.Header,
	out any,
) error {
	target, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	target.RawQuery = params.Encode()

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, string(source)); err != nil {
				return err
			}
		}

		err := c.do(ctx, target.String(), header, out)
		if err == nil {
			return nil
		}
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) || ctx.Err() != nil {
			return err
		}

		delay := c.retry.Backoff(attempt)
		c.logger.Debug("retrying search request",
			zap.String("provider", string(source)),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, target string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req) //nolint:gosec // endpoint comes from trusted config
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := statusError(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrBadResponse, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, resp.StatusCode, body)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, resp.StatusCode, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, body)
	default:
		return fmt.Errorf("search: unexpected status %d: %s", resp.StatusCode, body)
	}
}
