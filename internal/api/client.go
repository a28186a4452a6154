package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/colthorp/prospect/internal/core"
)

// Observer is notified of every upstream attempt. status is 0 when no
// response was received.
type Observer interface {
	ObserveRequest(endpoint string, status int, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, int, time.Duration) {}

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	APIKey          string
	PlacesBaseURL   string
	InsightsBaseURL string
	GeocodeBaseURL  string

	HTTPClient *http.Client
	MaxRetries int           // attempts per request; default 3
	RetryBase  time.Duration // first back-off; doubles per attempt; default 1s

	RatePerSecond float64 // outbound request rate; 0 disables limiting
	Burst         int

	BreakerFailures uint32        // consecutive failures that open the breaker; default 5
	BreakerTimeout  time.Duration // open-state duration; default 30s

	Logger   *zap.Logger
	Observer Observer
}

// Client is the HTTP wrapper around the places, insights and geocoding APIs.
//
// Retries happen here and only here: 5xx, 429 and connection errors are
// retried with exponential back-off, honouring Retry-After on 429. A
// capacity-exceeded answer is never retried.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	obs     Observer
}

// NewClient creates a new API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.PlacesBaseURL == "" {
		cfg.PlacesBaseURL = core.PlacesBaseURL
	}
	if cfg.InsightsBaseURL == "" {
		cfg.InsightsBaseURL = core.InsightsBaseURL
	}
	if cfg.GeocodeBaseURL == "" {
		cfg.GeocodeBaseURL = core.GeocodeBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}

	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: cfg.Logger.Named("api"),
		obs:    cfg.Observer,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "places",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Only outages count against the breaker; 4xx answers are the
		// caller's problem.
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return !ue.Temporary()
			}
			return err == nil
		},
	})
	return c
}

// request describes one logical call.
type request struct {
	endpoint string // metrics/log label
	method   string
	url      string
	body     []byte
	headers  map[string]string
}

// do performs req with retries and returns the 2xx body.
func (c *Client) do(ctx context.Context, req request) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		var retryAfter time.Duration
		out, err := c.breaker.Execute(func() (any, error) {
			body, wait, err := c.attempt(ctx, req)
			retryAfter = wait
			return body, err
		})
		if err == nil {
			return out.([]byte), nil
		}
		lastErr = err

		if !c.retryable(ctx, err) || attempt == c.cfg.MaxRetries {
			break
		}

		wait := c.cfg.RetryBase * time.Duration(1<<(attempt-1))
		if retryAfter > 0 {
			wait = retryAfter
		}
		c.logger.Debug("retrying upstream request",
			zap.String("endpoint", req.endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Temporary()
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	// Connection-level failure.
	return true
}

// attempt sends one HTTP request. The second return value is the
// server-requested back-off from Retry-After, if any.
func (c *Client) attempt(ctx context.Context, req request) ([]byte, time.Duration, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", core.DefaultUserAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.obs.ObserveRequest(req.endpoint, 0, time.Since(start))
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.obs.ObserveRequest(req.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("upstream response",
		zap.String("endpoint", req.endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 300 {
		var wait time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
		}
		return nil, wait, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	return data, 0, nil
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
