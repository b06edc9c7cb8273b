package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
}

func TestRetrier_SuccessOnFirstAttempt(t *testing.T) {
	retrier := NewRetrier(fastPolicy())

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return "value", nil
	})

	require.True(t, result.Success)
	require.NoError(t, result.Err)
	assert.Equal(t, "value", result.Value)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_SuccessAfterRetries(t *testing.T) {
	retrier := NewRetrier(fastPolicy())

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, appErrors.NewTimeoutError("svc", "fetch")
		}
		return "recovered", nil
	})

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "recovered", result.Value)
}

func TestRetrier_ReportsAttemptsAndElapsed(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         30 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	}
	retrier := NewRetrier(policy)

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, appErrors.NewNetworkError("svc", "connection reset")
		}
		return nil, nil
	})

	require.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	// Two backoff sleeps happened: 30ms and 60ms.
	assert.GreaterOrEqual(t, result.TotalTime, 90*time.Millisecond)
}

func TestRetrier_FailureAfterMaxAttempts(t *testing.T) {
	retrier := NewRetrier(fastPolicy())

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, result.Err.Error(), "failed after 3 attempts")

	// The final classified error stays reachable through the wrap.
	svcErr, ok := appErrors.AsServiceError(result.Err)
	require.True(t, ok)
	assert.Equal(t, appErrors.KindTimeout, svcErr.Kind)
}

func TestRetrier_NonRetryableError(t *testing.T) {
	retrier := NewRetrier(fastPolicy())

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewValidationError("svc", "validation failed")
	})

	require.False(t, result.Success)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Err.Error(), "validation failed")
}

func TestRetrier_ContextCancellation(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 5
	policy.BaseDelay = 100 * time.Millisecond
	retrier := NewRetrier(policy)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	result := retrier.Run(ctx, "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.False(t, result.Success)
	assert.Equal(t, context.DeadlineExceeded, result.Err)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_TimeoutBudget(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       10,
		BaseDelay:         20 * time.Millisecond,
		MaxDelay:          20 * time.Millisecond,
		BackoffMultiplier: 2.0,
		TimeoutBudget:     50 * time.Millisecond,
	}
	retrier := NewRetrier(policy)

	attempts := 0
	result := retrier.Run(context.Background(), "budgeted-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.False(t, result.Success)
	require.True(t, IsBudgetExceededError(result.Err))
	assert.Less(t, result.Attempts, 10)
	assert.Equal(t, attempts, result.Attempts)

	var bErr *BudgetExceededError
	require.True(t, errors.As(result.Err, &bErr))
	assert.Equal(t, "budgeted-op", bErr.Operation)
	assert.GreaterOrEqual(t, bErr.Elapsed, bErr.Budget)
}

func TestRetrier_BudgetNeverInterruptsRunningAttempt(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         5 * time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		TimeoutBudget:     10 * time.Millisecond,
	}
	retrier := NewRetrier(policy)

	// The only attempt takes far longer than the budget. It still runs to
	// completion because the budget is only checked between attempts.
	result := retrier.Run(context.Background(), "slow-op", func(ctx context.Context) (interface{}, error) {
		time.Sleep(30 * time.Millisecond)
		return "done", nil
	})

	require.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "done", result.Value)
}

func TestRetrier_CircuitOpenRejectionDoesNotConsumeAttempts(t *testing.T) {
	retrier := NewRetrier(fastPolicy())

	invoked := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		invoked++
		return nil, &CircuitOpenError{Name: "test-op", RetryIn: time.Second}
	})

	require.False(t, result.Success)
	require.True(t, IsCircuitOpenError(result.Err))
	assert.Equal(t, 1, invoked)
	assert.Equal(t, 0, result.Attempts)
}

func TestRetrier_CustomRetryableFunc(t *testing.T) {
	policy := fastPolicy()
	policy.RetryableFunc = func(err error) bool {
		return err.Error() == "retryable"
	}
	retrier := NewRetrier(policy)

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("retryable")
		}
		return nil, nil
	})
	require.True(t, result.Success)
	assert.Equal(t, 2, attempts)

	attempts = 0
	result = retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("not retryable")
	})
	require.False(t, result.Success)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_OnRetryCallback(t *testing.T) {
	policy := fastPolicy()

	var retryAttempts []int
	var retryDelays []time.Duration
	var retryErrors []error
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		retryAttempts = append(retryAttempts, attempt)
		retryDelays = append(retryDelays, delay)
		retryErrors = append(retryErrors, err)
	}
	retrier := NewRetrier(policy)

	attempts := 0
	result := retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, appErrors.NewTimeoutError("svc", "fetch")
		}
		return nil, nil
	})

	require.True(t, result.Success)
	assert.Equal(t, []int{1, 2}, retryAttempts)
	assert.Len(t, retryDelays, 2)
	assert.Len(t, retryErrors, 2)
}

func TestRetrier_ExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts:       4,
		BaseDelay:         10 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}
	retrier := NewRetrier(policy)

	retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.Len(t, delays, 3)
	assert.Equal(t, 10*time.Millisecond, delays[0])
	assert.Equal(t, 20*time.Millisecond, delays[1])
	assert.Equal(t, 40*time.Millisecond, delays[2])
}

func TestRetrier_JitterStaysWithinBounds(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts:       4,
		BaseDelay:         20 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            10 * time.Millisecond,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}
	retrier := NewRetrier(policy)

	retrier.Run(context.Background(), "test-op", func(ctx context.Context) (interface{}, error) {
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.Len(t, delays, 3)
	expected := []time.Duration{20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}
	for i, delay := range delays {
		assert.GreaterOrEqual(t, delay, expected[i])
		assert.LessOrEqual(t, delay, expected[i]+10*time.Millisecond)
	}
}

func TestRetrier_MaxDelayCapsJitteredDelay(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts:       5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          150 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            100 * time.Millisecond,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		},
	}
	retrier := NewRetrier(policy)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	retrier.Run(ctx, "test-op", func(ctx context.Context) (interface{}, error) {
		return nil, appErrors.NewTimeoutError("svc", "fetch")
	})

	require.NotEmpty(t, delays)
	for _, delay := range delays {
		assert.LessOrEqual(t, delay, 150*time.Millisecond)
	}
}

func TestNewRetrier_NormalizesPolicy(t *testing.T) {
	retrier := NewRetrier(RetryPolicy{})
	policy := retrier.Policy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 1*time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, 2.0, policy.BackoffMultiplier)
	assert.NotNil(t, policy.RetryableFunc)
}

func TestRetryConvenienceFunctions(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastPolicy(), "test-op", func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return appErrors.NewTimeoutError("svc", "fetch")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	result := RetryWithResult(context.Background(), fastPolicy(), "test-op", func(ctx context.Context) (interface{}, error) {
		return "result", nil
	})
	require.True(t, result.Success)
	assert.Equal(t, "result", result.Value)
}

func TestRetryableOperation_Success(t *testing.T) {
	op := NewRetryableOperation("test-op", fastPolicy(), DefaultCircuitBreakerConfig("test-op"))

	result := op.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})

	require.True(t, result.Success)
	assert.Equal(t, "success", result.Value)
	assert.Equal(t, StateClosed, op.Breaker().State())
}

func TestRetryableOperation_OpenCircuitShortCircuitsRetries(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 5

	breakerConfig := CircuitBreakerConfig{
		Name:             "test-op",
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
	}
	op := NewRetryableOperation("test-op", policy, breakerConfig)

	invoked := 0
	result := op.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		invoked++
		return nil, appErrors.NewServiceUnavailableError("svc", "down for maintenance")
	})

	// Two real invocations trip the breaker, the third attempt is rejected
	// without reaching the service and the remaining attempts are abandoned.
	require.False(t, result.Success)
	assert.Equal(t, 2, invoked)
	assert.Equal(t, 2, result.Attempts)
	assert.True(t, IsCircuitOpenError(result.Err))
	assert.Equal(t, StateOpen, op.Breaker().State())
}
