package recovery

import (
	"context"
	"time"

	"github.com/tooldock/resilience-core/internal/checkpoint"
	"github.com/tooldock/resilience-core/internal/connectivity"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/resilience"
)

// Operation is a failed call that a strategy may re-execute
type Operation func(ctx context.Context) (interface{}, error)

// Attempt carries everything a strategy can draw on: the classified
// error, the originating operation when the caller supplied one, and the
// service's recovery context
type Attempt struct {
	Error     *appErrors.ServiceError
	Operation Operation
	Context   *ServiceContext
}

// Result is the outcome of a recovery attempt. Pending marks a result
// that is neither success nor terminal failure: recovery continues after
// RetryAfter.
type Result struct {
	Success      bool                   `json:"success"`
	StrategyUsed string                 `json:"strategyUsed,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	FallbackUsed bool                   `json:"fallbackUsed,omitempty"`
	Pending      bool                   `json:"pending,omitempty"`
	RetryAfter   time.Duration          `json:"retryAfter,omitempty"`
}

// Strategy is one way to recover from an error. Strategies are
// registered once and never mutated; the orchestrator orders them by
// descending priority, registration order breaking ties.
type Strategy interface {
	Name() string
	Priority() int
	CanRecover(ctx context.Context, att *Attempt) bool
	Recover(ctx context.Context, att *Attempt) (*Result, error)
}

// CheckpointRestorer restores the newest checkpoint for a workspace
type CheckpointRestorer interface {
	Latest(ctx context.Context, workspaceID string) (*checkpoint.Checkpoint, error)
}

// NetworkRecoveryStrategy verifies connectivity for network errors and
// falls back to offline mode for services that support it
type NetworkRecoveryStrategy struct {
	probe   connectivity.Probe
	offline *OfflineCapabilities
}

// NewNetworkRecoveryStrategy creates the strategy. A nil probe is
// treated as always online.
func NewNetworkRecoveryStrategy(probe connectivity.Probe, offline *OfflineCapabilities) *NetworkRecoveryStrategy {
	return &NetworkRecoveryStrategy{probe: probe, offline: offline}
}

func (s *NetworkRecoveryStrategy) Name() string  { return "network-recovery" }
func (s *NetworkRecoveryStrategy) Priority() int { return 100 }

func (s *NetworkRecoveryStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	return att.Error.Kind == appErrors.KindNetwork
}

func (s *NetworkRecoveryStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	online := s.probe == nil || s.probe.Online(ctx)
	if online {
		return &Result{
			Success: true,
			Message: "connectivity verified, operation can be retried",
			Data:    map[string]interface{}{"online": true},
		}, nil
	}

	if s.offline != nil && s.offline.IsCapable(att.Error.ServiceID) {
		return &Result{
			Success:      true,
			FallbackUsed: true,
			Message:      "offline detected, switched to local mode",
			Data:         map[string]interface{}{"offlineMode": true},
		}, nil
	}

	return &Result{
		Success: false,
		Message: "offline and the service has no local mode",
	}, nil
}

// AlternativeServiceStrategy redirects to a registered fallback service
type AlternativeServiceStrategy struct {
	alternatives *AlternativeRegistry
}

// NewAlternativeServiceStrategy creates the strategy
func NewAlternativeServiceStrategy(alternatives *AlternativeRegistry) *AlternativeServiceStrategy {
	return &AlternativeServiceStrategy{alternatives: alternatives}
}

func (s *AlternativeServiceStrategy) Name() string  { return "alternative-service" }
func (s *AlternativeServiceStrategy) Priority() int { return 90 }

func (s *AlternativeServiceStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	switch att.Error.Kind {
	case appErrors.KindNetwork, appErrors.KindServiceUnavailable,
		appErrors.KindTimeout, appErrors.KindRateLimited:
	default:
		return false
	}
	return len(s.alternatives.For(att.Error.ServiceID)) > 0
}

func (s *AlternativeServiceStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	alts := s.alternatives.For(att.Error.ServiceID)
	if len(alts) == 0 {
		return &Result{Success: false, Message: "no alternatives registered"}, nil
	}

	return &Result{
		Success:      true,
		FallbackUsed: true,
		Message:      "redirected to alternative service",
		Data: map[string]interface{}{
			"alternativeService": alts[0],
			"alternatives":       alts,
		},
	}, nil
}

// CacheRecoveryStrategy serves stale data attached to the error
type CacheRecoveryStrategy struct{}

// NewCacheRecoveryStrategy creates the strategy
func NewCacheRecoveryStrategy() *CacheRecoveryStrategy {
	return &CacheRecoveryStrategy{}
}

func (s *CacheRecoveryStrategy) Name() string  { return "cache-recovery" }
func (s *CacheRecoveryStrategy) Priority() int { return 85 }

func (s *CacheRecoveryStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	return att.Error.CachedData != nil
}

func (s *CacheRecoveryStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	return &Result{
		Success:      true,
		FallbackUsed: true,
		Message:      "serving cached data",
		Data: map[string]interface{}{
			"cachedData": att.Error.CachedData,
			"fromCache":  true,
		},
	}, nil
}

// DataRecoveryStrategy restores the newest checkpoint of the workspace
// the error relates to
type DataRecoveryStrategy struct {
	checkpoints CheckpointRestorer
}

// NewDataRecoveryStrategy creates the strategy
func NewDataRecoveryStrategy(checkpoints CheckpointRestorer) *DataRecoveryStrategy {
	return &DataRecoveryStrategy{checkpoints: checkpoints}
}

func (s *DataRecoveryStrategy) Name() string  { return "data-recovery" }
func (s *DataRecoveryStrategy) Priority() int { return 80 }

func (s *DataRecoveryStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	return s.checkpoints != nil && att.Error.WorkspaceID != ""
}

func (s *DataRecoveryStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	cp, err := s.checkpoints.Latest(ctx, att.Error.WorkspaceID)
	if err != nil {
		return nil, err
	}

	var snapshot map[string]interface{}
	if err := cp.Unmarshal(&snapshot); err != nil {
		return nil, err
	}

	return &Result{
		Success:      true,
		FallbackUsed: true,
		Message:      "workspace restored from checkpoint",
		Data: map[string]interface{}{
			"workspace":    snapshot,
			"checkpointId": cp.ID,
		},
	}, nil
}

// RetryStrategy re-executes the failed operation with backoff when the
// caller supplied it
type RetryStrategy struct {
	retrier    *resilience.Retrier
	maxRetries int
}

// NewRetryStrategy creates the strategy
func NewRetryStrategy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryStrategy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retrier := resilience.NewRetrier(resilience.RetryPolicy{
		MaxAttempts:       maxRetries,
		BaseDelay:         baseDelay,
		MaxDelay:          maxDelay,
		BackoffMultiplier: 2.0,
	})
	return &RetryStrategy{retrier: retrier, maxRetries: maxRetries}
}

func (s *RetryStrategy) Name() string  { return "retry" }
func (s *RetryStrategy) Priority() int { return 70 }

func (s *RetryStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	return att.Operation != nil &&
		att.Error.Retryable &&
		att.Context.RetryAttempts() <= s.maxRetries
}

func (s *RetryStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	name := att.Error.Operation
	if name == "" {
		name = att.Error.ServiceID
	}

	res := s.retrier.Run(ctx, name, att.Operation)
	if !res.Success {
		return nil, res.Err
	}

	return &Result{
		Success: true,
		Message: "operation succeeded on retry",
		Data: map[string]interface{}{
			"result":   res.Value,
			"attempts": res.Attempts,
		},
	}, nil
}

// GracefulDegradationStrategy always matches and always succeeds,
// guaranteeing the orchestrator terminates with a result
type GracefulDegradationStrategy struct{}

// NewGracefulDegradationStrategy creates the strategy
func NewGracefulDegradationStrategy() *GracefulDegradationStrategy {
	return &GracefulDegradationStrategy{}
}

func (s *GracefulDegradationStrategy) Name() string  { return "graceful-degradation" }
func (s *GracefulDegradationStrategy) Priority() int { return 60 }

func (s *GracefulDegradationStrategy) CanRecover(ctx context.Context, att *Attempt) bool {
	return true
}

func (s *GracefulDegradationStrategy) Recover(ctx context.Context, att *Attempt) (*Result, error) {
	return &Result{
		Success:      true,
		FallbackUsed: true,
		Message:      "operating in degraded mode with reduced functionality",
		Data:         map[string]interface{}{"degradedMode": true},
	}, nil
}
