// Package httpx is the shared outbound HTTP client for venue adapters:
// retrying transport, per-host token-bucket rate limiting, and a per-host
// circuit breaker so one flapping venue cannot soak the collector.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	defaultRPS     = 20
	defaultBurst   = 40
)

type Client struct {
	inner *retryablehttp.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker

	rps   float64
	burst int
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit overrides the per-host request budget.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		c.burst = burst
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.inner.HTTPClient.Timeout = d
	}
}

func New(opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetries
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout

	c := &Client{
		inner:    rc,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		rps:      defaultRPS,
		burst:    defaultBurst,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.rps), c.burst)
		c.limiters[host] = l
	}
	return l
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		c.breakers[host] = b
	}
	return b
}

// Do sends a request through the host's rate limiter and circuit breaker.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host
	if err := c.limiter(host).Wait(req.Context()); err != nil {
		return nil, err
	}
	res, err := c.breaker(host).Execute(func() (any, error) {
		rreq, err := retryablehttp.FromRequest(req)
		if err != nil {
			return nil, err
		}
		return c.inner.Do(rreq)
	})
	if err != nil {
		return nil, err
	}
	return res.(*http.Response), nil
}

// Get issues a GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// GetJSON fetches url and decodes the body into v. Non-2xx statuses are
// returned as *StatusError with the full body attached; its Error text
// truncates the body to 200 characters.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	res, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Status: res.StatusCode, Body: string(body)}
	}
	return json.Unmarshal(body, v)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("status %d: %s", e.Status, body)
}
