package athena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
)

const (
	userInfoPath = "/api/1/athenahealth/v1/userinfo"
	patientsPath = "/api/1/athenahealth/v1/patients/"

	maxErrorBody = 4 << 10
)

// Config configures the Athena data API client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	MaxRetries int
	// RetryInterval is the first backoff delay; it grows exponentially.
	RetryInterval time.Duration
	HTTPClient    *http.Client
}

// Observer receives per-call latency and breaker state. *telemetry.Metrics
// satisfies it.
type Observer interface {
	ObserveUpstream(endpoint string, status int, d time.Duration)
	SetBreakerState(name string, state float64)
}

// UserInfo is the authenticated Athena user.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Client reads from the Athena API on behalf of a bearer token. Every call
// goes through a rate limiter, a circuit breaker and bounded retries.
type Client struct {
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	maxRetries    int
	retryInterval time.Duration
	observer      Observer
	logger        zerolog.Logger
}

type ClientOption func(*Client)

func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

func NewClient(cfg Config, logger zerolog.Logger, opts ...ClientOption) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		http:          hc,
		limiter:       rate.NewLimiter(limit, burst),
		maxRetries:    cfg.MaxRetries,
		retryInterval: interval,
		logger:        logger.With().Str("component", "athena").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "athena",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors are answers, not outages.
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return !ue.retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			if c.observer != nil {
				c.observer.SetBreakerState(name, float64(to))
			}
		},
	})
	if c.observer != nil {
		c.observer.SetBreakerState("athena", float64(gobreaker.StateClosed))
	}
	return c
}

// GetUserInfo validates token against the userinfo endpoint. Any non-200
// answer is an authentication failure.
func (c *Client) GetUserInfo(ctx context.Context, token string) (*UserInfo, error) {
	var info UserInfo
	if err := c.get(ctx, "userinfo", KindAuth, userInfoPath, token, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Authenticate is GetUserInfo without the payload.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	_, err := c.GetUserInfo(ctx, token)
	return err
}

// GetPatient fetches a patient's molecular, clinical and imaging data.
func (c *Client) GetPatient(ctx context.Context, token, patientID string) (risk.PatientRecord, error) {
	var p risk.PatientRecord
	if err := c.get(ctx, "patient", KindData, patientsPath+url.PathEscape(patientID), token, &p); err != nil {
		return risk.PatientRecord{}, err
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, op string, kind Kind, path, token string, out interface{}) error {
	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&UpstreamError{Kind: KindUnavailable, Op: op, Err: err})
		}
		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.do(ctx, op, kind, path, token, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(&UpstreamError{Kind: KindUnavailable, Op: op, Err: err})
		}
		var ue *UpstreamError
		if errors.As(err, &ue) && !ue.retryable() {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(c.maxRetries, 0))), ctx)

	return backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Str("op", op).Dur("retry_in", wait).Msg("athena request failed, retrying")
	})
}

func (c *Client) do(ctx context.Context, op string, kind Kind, path, token string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, 0, start)
		return &UpstreamError{Kind: KindUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.observe(op, resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("athena returned non-success status")
		return &UpstreamError{Kind: kind, Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Kind: kind, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(op, status, time.Since(start))
	}
}
