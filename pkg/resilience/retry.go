package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/logging"
)

// RetryPolicy configures retry behavior for operations
type RetryPolicy struct {
	// MaxAttempts is the maximum number of times the operation is invoked
	MaxAttempts int
	// BaseDelay is the delay before the second attempt
	BaseDelay time.Duration
	// MaxDelay caps the computed delay between attempts
	MaxDelay time.Duration
	// BackoffMultiplier grows the delay after each failed attempt
	BackoffMultiplier float64
	// Jitter is the upper bound of the random duration added to each delay
	// to spread out retries from concurrent callers
	Jitter time.Duration
	// TimeoutBudget bounds the total time spent across all attempts.
	// It is checked before each attempt, never mid-attempt, so a running
	// attempt is allowed to finish. Zero means no budget.
	TimeoutBudget time.Duration
	// RetryableFunc decides whether an error is worth another attempt.
	// Defaults to errors.IsRetryable.
	RetryableFunc func(error) bool
	// OnRetry is invoked after a failed attempt and before the delay,
	// with the attempt number that just failed
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns a sensible default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            500 * time.Millisecond,
		TimeoutBudget:     2 * time.Minute,
	}
}

// RetryResult reports the outcome of a retried operation.
//
// Attempts counts operation invocations only. A circuit-open rejection is
// not an invocation, so it never consumes an attempt.
type RetryResult struct {
	Success   bool
	Value     interface{}
	Err       error
	Attempts  int
	TotalTime time.Duration
}

// Unwrap returns the operation value and final error in the usual Go shape
func (r *RetryResult) Unwrap() (interface{}, error) {
	return r.Value, r.Err
}

// BudgetExceededError is returned when the retry loop stops because the
// overall time budget ran out before the next attempt could start.
type BudgetExceededError struct {
	Operation string
	Budget    time.Duration
	Elapsed   time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("operation '%s' exceeded its retry budget of %s after %s", e.Operation, e.Budget, e.Elapsed)
}

// IsBudgetExceededError checks if an error is a retry budget exhaustion
func IsBudgetExceededError(err error) bool {
	var bErr *BudgetExceededError
	return errors.As(err, &bErr)
}

// Retrier executes operations with exponential backoff retry logic
type Retrier struct {
	policy RetryPolicy
	logger *logging.Logger
}

// NewRetrier creates a new retrier, normalizing out-of-range policy values
func NewRetrier(policy RetryPolicy) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = 2.0
	}
	if policy.Jitter < 0 {
		policy.Jitter = 0
	}
	if policy.RetryableFunc == nil {
		policy.RetryableFunc = appErrors.IsRetryable
	}

	return &Retrier{
		policy: policy,
		logger: logging.GetLogger(),
	}
}

// Policy returns a copy of the normalized policy
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Run invokes fn until it succeeds, the error is not retryable, attempts
// run out, the time budget runs out, or the context is done.
func (r *Retrier) Run(ctx context.Context, operation string, fn func(context.Context) (interface{}, error)) *RetryResult {
	start := time.Now()
	result := &RetryResult{}
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		if r.policy.TimeoutBudget > 0 {
			if elapsed := time.Since(start); elapsed >= r.policy.TimeoutBudget {
				result.Err = &BudgetExceededError{
					Operation: operation,
					Budget:    r.policy.TimeoutBudget,
					Elapsed:   elapsed,
				}
				break
			}
		}

		value, err := fn(ctx)
		if err == nil {
			result.Success = true
			result.Value = value
			result.Attempts = attempt
			result.TotalTime = time.Since(start)
			if attempt > 1 {
				r.logger.LogRetryEvent(ctx, "retry_succeeded", operation, attempt, nil)
			}
			return result
		}

		if IsCircuitOpenError(err) {
			// The guarded operation was never invoked, so this does not
			// consume an attempt. Retrying would only hammer an open circuit.
			result.Err = err
			result.Attempts = attempt - 1
			result.TotalTime = time.Since(start)
			r.logger.LogRetryEvent(ctx, "retry_rejected_circuit_open", operation, result.Attempts, nil)
			return result
		}

		lastErr = err
		result.Attempts = attempt

		if !r.policy.RetryableFunc(err) {
			result.Err = err
			result.TotalTime = time.Since(start)
			r.logger.LogRetryEvent(ctx, "retry_abandoned_not_retryable", operation, attempt, map[string]interface{}{
				"error": err.Error(),
			})
			return result
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.delayFor(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, delay, err)
		}
		r.logger.LogRetryEvent(ctx, "retrying", operation, attempt, map[string]interface{}{
			"delay": delay.String(),
			"error": err.Error(),
		})

		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			result.TotalTime = time.Since(start)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalTime = time.Since(start)
	if result.Err == nil {
		result.Err = fmt.Errorf("operation '%s' failed after %d attempts: %w", operation, result.Attempts, lastErr)
		r.logger.LogRetryEvent(ctx, "retry_exhausted", operation, result.Attempts, map[string]interface{}{
			"error": lastErr.Error(),
		})
	}
	return result
}

// Execute is a convenience wrapper around Run for operations without a result value
func (r *Retrier) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	result := r.Run(ctx, operation, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return result.Err
}

// delayFor computes the delay to sleep after the given failed attempt.
// The exponential delay is capped at MaxDelay first, then jitter is added
// and the sum is capped again, so the delay before attempt n+1 always lies
// in [BaseDelay*BackoffMultiplier^(n-1), that+Jitter] clipped to MaxDelay.
func (r *Retrier) delayFor(attempt int) time.Duration {
	delay := float64(r.policy.BaseDelay) * math.Pow(r.policy.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter > 0 {
		delay += rand.Float64() * float64(r.policy.Jitter)
		if delay > float64(r.policy.MaxDelay) {
			delay = float64(r.policy.MaxDelay)
		}
	}
	return time.Duration(delay)
}

// Retry is a convenience function for one-off retries without a result value
func Retry(ctx context.Context, policy RetryPolicy, operation string, fn func(context.Context) error) error {
	return NewRetrier(policy).Execute(ctx, operation, fn)
}

// RetryWithResult is a convenience function for one-off retries that produce a value
func RetryWithResult(ctx context.Context, policy RetryPolicy, operation string, fn func(context.Context) (interface{}, error)) *RetryResult {
	return NewRetrier(policy).Run(ctx, operation, fn)
}

// RetryableOperation combines retry logic with circuit breaker protection.
// The breaker sits inside the retry loop, so an open circuit short-circuits
// the remaining attempts instead of burning them against a dead service.
type RetryableOperation struct {
	name    string
	retrier *Retrier
	breaker *CircuitBreaker
}

// NewRetryableOperation creates an operation guarded by both a retrier and
// a circuit breaker
func NewRetryableOperation(name string, policy RetryPolicy, breakerConfig CircuitBreakerConfig) *RetryableOperation {
	if breakerConfig.Name == "" {
		breakerConfig.Name = name
	}

	return &RetryableOperation{
		name:    name,
		retrier: NewRetrier(policy),
		breaker: NewCircuitBreaker(breakerConfig),
	}
}

// Execute runs fn through the circuit breaker with retries
func (ro *RetryableOperation) Execute(ctx context.Context, fn func(context.Context) (interface{}, error)) *RetryResult {
	return ro.retrier.Run(ctx, ro.name, func(ctx context.Context) (interface{}, error) {
		return ro.breaker.Execute(ctx, fn)
	})
}

// Breaker exposes the underlying circuit breaker
func (ro *RetryableOperation) Breaker() *CircuitBreaker {
	return ro.breaker
}

// Name returns the operation name
func (ro *RetryableOperation) Name() string {
	return ro.name
}
