package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skewballfox/papermill/ai"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrorClassification tells the executor what to do with a failed attempt.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// Classify treats rate limits, model outages and attempt timeouts as
// retryable. Cancellation by the caller is neither retried nor counted
// against the circuit breaker.
func Classify(err error) ErrorClassification {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorClassification{Retryable: false, RecordFailure: false}
	case ai.IsRetryable(err), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{Retryable: false, RecordFailure: true}
}

// Executor runs collaborator calls under the configured discipline.
// It is safe for concurrent use.
type Executor struct {
	cfg     Config
	pool    *ants.Pool
	limiter *rate.Limiter
	metrics *metrics
	logger  *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// Option configures an Executor.
type Option func(*Executor) error

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		e.logger = logger.With("component", "resilient")
		return nil
	}
}

// WithRegisterer enables prometheus metrics registered on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Executor) error {
		e.metrics = newMetrics(reg)
		return nil
	}
}

// NewExecutor creates an executor. Call Close to release its worker pool.
func NewExecutor(cfg Config, opts ...Option) (*Executor, error) {
	cfg = cfg.normalize()
	pool, err := ants.NewPool(cfg.MaxConcurrency, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("resilient: creating pool: %w", err)
	}

	e := &Executor{
		cfg:      cfg,
		pool:     pool,
		logger:   slog.Default().With("component", "resilient"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			pool.Release()
			return nil, err
		}
	}
	return e, nil
}

// Execute runs fn under the retry policy and the operation's circuit breaker.
// It returns the number of attempts made, which is zero when the breaker
// rejected the call.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error) (int, error) {
	if fn == nil {
		return 0, fmt.Errorf("resilient: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	started := time.Now()
	attempts := 0
	var err error
	if !e.cfg.BreakerEnabled {
		attempts, err = e.executeWithRetry(ctx, op, fn)
	} else {
		_, err = e.circuitBreaker(op).Execute(func() (any, error) {
			var innerErr error
			attempts, innerErr = e.executeWithRetry(ctx, op, fn)
			return nil, innerErr
		})
	}
	e.metrics.observe(op, started, err)
	return attempts, err
}

func (e *Executor) executeWithRetry(ctx context.Context, operation string, fn func(context.Context) error) (int, error) {
	maxAttempts := e.cfg.RetryMaxAttempts
	backoff := e.cfg.RetryInitialBackoff

	var err error
	attempt := 0
	for attempt < maxAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return attempt, err
		}

		attempt++
		err = e.attempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}

		class := Classify(err)
		if !class.Retryable || attempt == maxAttempts || ctx.Err() != nil {
			return attempt, err
		}

		wait := min(backoff, e.cfg.RetryMaxBackoff)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"err", err,
		)
		e.metrics.retried(operation)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, err
			case <-timer.C:
			}
		}

		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
	return attempt, err
}

// attempt runs fn once on the worker pool with the per-call timeout.
// Submit blocks while MaxConcurrency attempts are in flight.
func (e *Executor) attempt(ctx context.Context, fn func(context.Context) error) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	done := make(chan error, 1)
	err := e.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("resilient: collaborator panicked: %v", r)
			}
		}()
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		done <- fn(callCtx)
	})
	if err != nil {
		return err
	}
	return <-done
}

func (e *Executor) circuitBreaker(operation string) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Classify(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

// Close releases the worker pool. In-flight attempts finish first.
func (e *Executor) Close() {
	e.pool.Release()
}

// IsCircuitOpen reports whether err came from an open or saturated breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
