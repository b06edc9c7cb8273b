// Package resilience provides retry with exponential backoff and circuit
// breaker protection for calls to external services.
//
// # Retry with Exponential Backoff
//
// The retrier invokes an operation until it succeeds, the error is ruled
// non-retryable, the attempt budget runs out, or the overall time budget
// is exhausted. Delays grow exponentially from BaseDelay, get a bounded
// random jitter added, and never exceed MaxDelay.
//
//	retrier := resilience.NewRetrier(resilience.RetryPolicy{
//		MaxAttempts:       3,
//		BaseDelay:         time.Second,
//		MaxDelay:          30 * time.Second,
//		BackoffMultiplier: 2.0,
//		Jitter:            500 * time.Millisecond,
//	})
//
//	result := retrier.Run(ctx, "sync-workspace", func(ctx context.Context) (interface{}, error) {
//		return syncService.Push(ctx, workspace)
//	})
//	if result.Success {
//		use(result.Value)
//	}
//
// The returned RetryResult always reports how many attempts were made and
// how long the whole operation took.
//
// # Circuit Breaker
//
// The circuit breaker counts failures per operation and stops invoking the
// operation once the failure threshold is reached. Rejected calls return a
// CircuitOpenError without touching the underlying service. After a cooldown
// the breaker admits probe requests and closes again once enough of them
// succeed in a row.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:                    "document-service",
//		FailureThreshold:        5,
//		ResetTimeout:            time.Minute,
//		SuccessThresholdToClose: 3,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return documentService.Fetch(ctx, id)
//	})
//	if resilience.IsCircuitOpenError(err) {
//		// back off, the service is known to be down
//	}
//
// A CircuitBreakerRegistry hands out one breaker per operation key so that
// independent operations trip independently.
//
// # Combined Usage
//
// RetryableOperation nests the breaker inside the retry loop. An open
// circuit short-circuits the remaining attempts instead of burning them
// against a service that is known to be down.
//
//	op := resilience.NewRetryableOperation("calendar.sync", policy, breakerConfig)
//	result := op.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return calendar.Sync(ctx)
//	})
//
// All types in this package are safe for concurrent use.
package resilience
