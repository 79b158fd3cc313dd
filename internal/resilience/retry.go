// Package resilience provides retry, backoff, and circuit-breaking helpers
// shared by every billing backend adapter.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sony/gobreaker"
)

// RateLimitError signals an upstream 429. RetryAfter carries the
// server-provided wait when present; zero means the server gave none.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// AuthError signals bad credentials or a rejected session. Never retried.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string { return "authorization failed: " + e.Cause.Error() }
func (e *AuthError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is worth another attempt. Authorization
// failures and context cancellation propagate immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

type RetryConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	JitterDelay      time.Duration
	RateLimitDefault time.Duration
	ShouldRetry      func(resp *http.Response, err error) bool
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:       3,
	BaseDelay:        500 * time.Millisecond,
	MaxDelay:         30 * time.Second,
	JitterDelay:      250 * time.Millisecond,
	RateLimitDefault: 2 * time.Second,
	ShouldRetry: func(resp *http.Response, err error) bool {
		if err != nil {
			return IsRetryable(err)
		}
		if resp == nil {
			return false
		}
		return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	},
}

// Do runs fn with bounded retries under the failsafe policy built from
// cfg. Backoff is exponential with jitter; a RateLimitError switches to
// the server-provided wait when present, the configured default
// otherwise, always capped at MaxDelay. The last error is returned when
// retries are exhausted.
func Do[R any](ctx context.Context, cfg RetryConfig, fn func() (R, error)) (R, error) {
	return failsafe.With(NewRetryPolicy[R](cfg)).WithContext(ctx).Get(fn)
}

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	FailureRatio     float64
	MinRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
	IsSuccessful     func(err error) bool
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0.5,
		MinRequests:      10,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Credential problems are the caller's fault and must not
			// trip the breaker for sibling integrations.
			var authErr *AuthError
			return errors.As(err, &authErr)
		},
	}
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful:  cfg.IsSuccessful,
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}

func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

// NewRetryPolicy translates cfg into a failsafe retry policy. Rate-limit
// errors override the backoff delay with the server's Retry-After.
func NewRetryPolicy[R any](cfg RetryConfig) retrypolicy.RetryPolicy[R] {
	builder := retrypolicy.NewBuilder[R]().
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithDelayFunc(func(exec failsafe.ExecutionAttempt[R]) time.Duration {
			var rateErr *RateLimitError
			if errors.As(exec.LastError(), &rateErr) {
				delay := rateErr.RetryAfter
				if delay <= 0 {
					delay = cfg.RateLimitDefault
				}
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
				return delay
			}
			// A negative delay falls back to the configured backoff.
			return -1
		}).
		ReturnLastFailure()
	if cfg.JitterDelay > 0 {
		builder = builder.WithJitter(cfg.JitterDelay)
	}
	builder = builder.HandleIf(func(_ R, err error) bool {
		return IsRetryable(err)
	})
	return builder.Build()
}

// Executor combines a failsafe retry policy with an optional per-provider
// circuit breaker.
type Executor[R any] struct {
	executor failsafe.Executor[R]
	breaker  *CircuitBreaker
}

func NewExecutor[R any](retryConfig RetryConfig, breakerConfig *BreakerConfig) *Executor[R] {
	rp := NewRetryPolicy[R](retryConfig)

	var breaker *CircuitBreaker
	if breakerConfig != nil {
		breaker = NewCircuitBreaker(*breakerConfig)
	}

	return &Executor[R]{
		executor: failsafe.With(rp),
		breaker:  breaker,
	}
}

func (e *Executor[R]) Execute(ctx context.Context, fn func() (R, error)) (R, error) {
	if e.breaker != nil {
		result, err := e.breaker.Execute(func() (any, error) {
			return e.executor.WithContext(ctx).Get(fn)
		})
		if err != nil {
			var zero R
			return zero, err
		}
		return result.(R), nil
	}
	return e.executor.WithContext(ctx).Get(fn)
}

func (e *Executor[R]) CircuitBreaker() *CircuitBreaker {
	return e.breaker
}

// RetryAfterFromResponse extracts a Retry-After duration from resp when the
// server sent one in seconds form.
func RetryAfterFromResponse(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
