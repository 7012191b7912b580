package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Response is the outcome of a single GET: status plus the raw body.
type Response struct {
	StatusCode int
	Body       string
}

// Transport performs one HTTP GET with a browser-like fingerprint through
// an optional proxy. proxyURL == "" means a direct connection.
type Transport interface {
	Get(ctx context.Context, rawURL, proxyURL string) (*Response, error)
}

// HTTPTransport is the net/http implementation of Transport. Clients are
// cached per proxy so connections are reused across requests.
type HTTPTransport struct {
	userAgent string
	timeout   time.Duration

	mu      sync.Mutex
	clients map[string]*http.Client
}

// NewHTTPTransport creates a transport with the given fingerprint and
// per-request timeout.
func NewHTTPTransport(userAgent string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPTransport{
		userAgent: userAgent,
		timeout:   timeout,
		clients:   make(map[string]*http.Client),
	}
}

func (t *HTTPTransport) client(proxyURL string) (*http.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[proxyURL]; ok {
		return c, nil
	}

	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(parsed)
	}

	c := &http.Client{
		Timeout:   t.timeout,
		Transport: transport,
	}
	t.clients[proxyURL] = c
	return c, nil
}

// Get fetches rawURL through the given proxy with browser headers.
func (t *HTTPTransport) Get(ctx context.Context, rawURL, proxyURL string) (*Response, error) {
	client, err := t.client(proxyURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Emulate browser
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
}
