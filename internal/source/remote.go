package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// ErrStatus is wrapped by Remote.Open for non-2xx responses that are not
// retried.
var ErrStatus = errors.New("source: unexpected HTTP status")

// Config configures the HTTP client. Zero values get defaults:
// Timeout 0 (the stream may be long), MaxRetries 3, InitialBackoff 200ms,
// MaxBackoff 5s.
type Config struct {
	// Timeout bounds the whole request including the body read. 0 disables it
	// so large downloads are limited only by the context.
	Timeout time.Duration
	// MaxRetries is the number of attempts after the first one; negative
	// disables retries.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool
	// Headers are added to every request (e.g. Authorization).
	Headers   http.Header
	Transport http.RoundTripper
}

// Client is an http.Client with retry and exponential backoff on transport
// errors, 429 and 5xx.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	headers        http.Header
}

func NewClient(cfg Config) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify} //nolint:gosec // explicitly configurable
		transport = t
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		headers:        cfg.Headers.Clone(),
	}
}

// Get issues a GET with retries. On success the caller closes the body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("source: build request: %w", err)
		}
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case retryable(resp.StatusCode):
			resp.Body.Close()
			lastErr = fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, rawURL)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			resp.Body.Close()
			return nil, fmt.Errorf("%w %d from %s", ErrStatus, resp.StatusCode, rawURL)
		default:
			return resp, nil
		}

		if attempt == c.maxRetries {
			break
		}
		if err := sleepCtx(ctx, backoff(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff is initial * 2^attempt clamped to max.
func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << attempt
	if d <= 0 || d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Remote streams the body of a URL.
type Remote struct {
	url    string
	client *Client
}

func NewRemote(rawURL string, client *Client) *Remote {
	return &Remote{url: rawURL, client: client}
}

func (r *Remote) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := r.client.Get(ctx, r.url)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Name is the last path segment of the URL, or the host when the path is
// empty.
func (r *Remote) Name() string {
	u, err := url.Parse(r.url)
	if err != nil {
		return r.url
	}
	if base := path.Base(u.Path); base != "/" && base != "." {
		return base
	}
	return u.Host
}
