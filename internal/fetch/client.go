package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/project-tktt/avature-crawler/internal/proxy"
)

// FetchError is a failed page fetch. Transient failures (timeouts,
// connection resets, 5xx, rate limiting) are worth retrying with another
// proxy; the rest are surfaced immediately.
type FetchError struct {
	URL       string
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a FetchError worth retrying.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// Client fetches pages through the proxy pool with bounded retries.
// Each retry rotates to the next proxy rather than hammering the one that
// just failed, and every attempt reports the outcome back to the pool.
type Client struct {
	transport  Transport
	pool       *proxy.Pool
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a fetch client. delay paces requests across all sites
// sharing this client; maxRetries bounds attempts per fetch.
func NewClient(transport Transport, pool *proxy.Pool, maxRetries int, delay time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Client{
		transport:  transport,
		pool:       pool,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		limiter:    limiter,
	}
}

// Fetch gets rawURL and returns its body. Transient failures are retried
// up to the retry budget, each attempt through the next proxy in rotation;
// non-transient HTTP errors surface immediately.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &FetchError{URL: rawURL, Transient: true, Err: err}
		}

		entry := c.pool.Acquire()
		proxyURL := ""
		if entry != nil {
			proxyURL = entry.Address
		}

		resp, err := c.transport.Get(ctx, rawURL, proxyURL)
		if err != nil {
			c.pool.Report(entry, false)
			lastErr = &FetchError{URL: rawURL, Transient: true, Err: err}
			if ctx.Err() != nil {
				return "", lastErr
			}
			c.backoff(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.pool.Report(entry, true)
			return resp.Body, nil

		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			c.pool.Report(entry, false)
			lastErr = &FetchError{URL: rawURL, Status: resp.StatusCode, Transient: true}
			c.backoff(ctx, attempt)

		default:
			// The proxy delivered a definitive answer; the server just
			// refused. Retrying a plain 4xx wastes proxy health budget.
			c.pool.Report(entry, true)
			return "", &FetchError{URL: rawURL, Status: resp.StatusCode, Transient: false}
		}
	}

	return "", lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	wait := c.baseDelay * (1 << attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
