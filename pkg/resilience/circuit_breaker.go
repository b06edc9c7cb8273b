package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tooldock/resilience-core/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected without being invoked
	StateOpen
	// StateHalfOpen - circuit is half-open, probe requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the circuit breaker for logging/metrics, usually the
	// operation key it guards
	Name string
	// FailureThreshold is the number of accumulated failures in the
	// closed state that opens the circuit
	FailureThreshold int
	// ResetTimeout is the period of the open state, after which the
	// next request is allowed through as a half-open probe
	ResetTimeout time.Duration
	// SuccessThresholdToClose is the number of consecutive successes
	// required in the half-open state to close the circuit again
	SuccessThresholdToClose int
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the standard thresholds used when a
// caller does not override them.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                    name,
		FailureThreshold:        5,
		ResetTimeout:            60 * time.Second,
		SuccessThresholdToClose: 3,
	}
}

// Counts holds the failure and success bookkeeping behind the state machine
type Counts struct {
	Failures        int
	HalfOpenSuccess int
	LastFailureTime time.Time
}

// CircuitBreaker is a state machine that stops invoking an operation once
// it has failed enough times in a row, and probes it again after a cooldown.
//
// Transitions: Closed opens once Failures reaches FailureThreshold; Open
// moves to HalfOpen after ResetTimeout has elapsed since the last failure;
// HalfOpen closes after SuccessThresholdToClose consecutive successes and
// reopens on the first failure. Any success in the closed state resets the
// failure count.
type CircuitBreaker struct {
	name                    string
	failureThreshold        int
	resetTimeout            time.Duration
	successThresholdToClose int
	onStateChange           func(name string, from CircuitState, to CircuitState)

	mutex  sync.Mutex
	state  CircuitState
	counts Counts

	logger *logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.SuccessThresholdToClose <= 0 {
		config.SuccessThresholdToClose = 3
	}

	return &CircuitBreaker{
		name:                    config.Name,
		failureThreshold:        config.FailureThreshold,
		resetTimeout:            config.ResetTimeout,
		successThresholdToClose: config.SuccessThresholdToClose,
		onStateChange:           config.OnStateChange,
		state:                   StateClosed,
		logger:                  logging.GetLogger(),
	}
}

// Execute runs the given request if the circuit breaker accepts it.
// When the circuit is open the request function is never invoked and the
// returned error satisfies IsCircuitOpenError.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeRequest(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(false)
			panic(r)
		}
	}()

	result, err := req(ctx)
	cb.afterRequest(err == nil)
	return result, err
}

// Call is a convenience method that wraps Execute for functions that don't need context
func (cb *CircuitBreaker) Call(fn func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return fn()
	})
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.currentState(time.Now())
}

// Counts returns a copy of the current counts
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.counts
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset closes the circuit and clears all counts regardless of state
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.counts = Counts{}
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	if cb.currentState(now) == StateOpen {
		return &CircuitOpenError{
			Name:    cb.name,
			RetryIn: cb.counts.LastFailureTime.Add(cb.resetTimeout).Sub(now),
		}
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state := cb.currentState(now)
	if success {
		cb.onSuccess(state)
	} else {
		cb.onFailure(state, now)
	}
}

func (cb *CircuitBreaker) onSuccess(state CircuitState) {
	switch state {
	case StateClosed:
		cb.counts.Failures = 0
	case StateHalfOpen:
		cb.counts.Failures = 0
		cb.counts.HalfOpenSuccess++
		if cb.counts.HalfOpenSuccess >= cb.successThresholdToClose {
			cb.counts = Counts{}
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) onFailure(state CircuitState, now time.Time) {
	cb.counts.LastFailureTime = now

	switch state {
	case StateClosed:
		cb.counts.Failures++
		if cb.counts.Failures >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		// A single failed probe sends the circuit straight back to open.
		cb.counts.HalfOpenSuccess = 0
		cb.setState(StateOpen)
	}
}

// currentState applies the open-to-half-open transition lazily. Callers must
// hold the mutex.
func (cb *CircuitBreaker) currentState(now time.Time) CircuitState {
	if cb.state == StateOpen && now.Sub(cb.counts.LastFailureTime) > cb.resetTimeout {
		cb.counts.HalfOpenSuccess = 0
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.LogCircuitEvent(context.Background(), cb.name, prev.String(), state.String())
}

// CircuitOpenError is returned when a request is rejected because the
// circuit is open. The guarded operation was not invoked.
type CircuitOpenError struct {
	Name string
	// RetryIn is how long until the breaker will admit a probe request
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

// IsCircuitOpenError checks if an error is a circuit-open rejection
func IsCircuitOpenError(err error) bool {
	var cbErr *CircuitOpenError
	return errors.As(err, &cbErr)
}
