package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// UserAgent is the browser user agent sent with every request unless the caller overrides it.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// DefaultMaxRetries is the total number of attempts made by Get.
	DefaultMaxRetries = 3
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 10 * time.Second
	// retryDelay is the fixed backoff after a non-429 failure.
	retryDelay = 1 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxBodySize caps how much of a response body is read.
	maxBodySize = 10 << 20
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// StatusError reports a non-2xx response that survived the retry budget.
// URL carries no query string, since queries may hold credentials such as client IDs.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// StatusCode returns the HTTP status code of the failed response.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Client fetches remote resources with per-origin rate limiting and retry.
type Client struct {
	limiter    *RateLimiter
	http       *http.Client
	logger     *zap.Logger
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a transport client that paces requests through limiter.
func NewClient(limiter *RateLimiter, maxRetries int, logger *zap.Logger) *Client {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRequestsPerSecond)
	}
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		limiter:    limiter,
		http:       newHTTPClient(http.DefaultTransport),
		logger:     logger,
		maxRetries: maxRetries,
		sleep:      sleepContext,
	}
}

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient(rt http.RoundTripper) *http.Client {
	return &http.Client{
		Timeout:   DefaultTimeout,
		Transport: rt,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// Limiter returns the rate limiter shared by this client.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// Get fetches rawURL and returns the response body.
// The limiter is consulted before every attempt. A 429 backs off 2^attempt seconds,
// any other failure backs off one second, and the last attempt's error is returned.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx, rawURL); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, rawURL, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.maxRetries-1 {
			break
		}

		delay := retryDelay
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode() == http.StatusTooManyRequests {
			delay = time.Duration(1<<attempt) * time.Second
		}

		c.logger.Debug("Retrying request",
			zap.String("url", stripQuery(rawURL)),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	c.logger.Warn("Request failed after retries",
		zap.String("url", stripQuery(rawURL)),
		zap.Int("attempts", c.maxRetries),
		zap.Error(lastErr))
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, rawURL string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	setDefaultHeaders(req.Header)
	for key, values := range headers {
		req.Header[http.CanonicalHeaderKey(key)] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &StatusError{Code: resp.StatusCode, URL: stripQuery(rawURL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// HTTPClient returns an *http.Client whose requests go through the same limiter, retry policy
// and default user agent as Get. It is meant for SDKs that want to own request construction.
func (c *Client) HTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return newHTTPClient(&limitedTransport{client: c, base: base})
}

// limitedTransport is an http.RoundTripper gated by the client's RateLimiter and retried like Get.
// Responses below 400 are final; the last attempt's response or error is returned as is.
type limitedTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	c := t.client

	for attempt := 0; ; attempt++ {
		attemptReq, err := t.prepare(req, attempt)
		if err != nil {
			return nil, err
		}
		if err := c.limiter.Acquire(ctx, req.URL.String()); err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err == nil && resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}
		if attempt == c.maxRetries-1 || ctx.Err() != nil || !replayable(req) {
			return resp, err
		}

		delay := retryDelay
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests {
				delay = time.Duration(1<<attempt) * time.Second
			}
			err = &StatusError{Code: resp.StatusCode, URL: stripQuery(req.URL.String())}
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
			_ = resp.Body.Close()
		}

		c.logger.Debug("Retrying request",
			zap.String("url", stripQuery(req.URL.String())),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// prepare returns the request for an attempt: a clone with the default user agent and, on retries, a fresh body.
func (t *limitedTransport) prepare(req *http.Request, attempt int) (*http.Request, error) {
	attemptReq := req.Clone(req.Context())
	if attemptReq.Header.Get("User-Agent") == "" {
		attemptReq.Header.Set("User-Agent", UserAgent)
	}
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attemptReq.Body = body
	}
	return attemptReq, nil
}

// replayable reports whether req can be sent again.
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// stripQuery drops the query and fragment of rawURL.
func stripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		before, _, _ := strings.Cut(rawURL, "?")
		return before
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

func setDefaultHeaders(h http.Header) {
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
