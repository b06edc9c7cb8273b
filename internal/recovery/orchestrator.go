package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tooldock/resilience-core/internal/connectivity"
	"github.com/tooldock/resilience-core/internal/notifications"
	"github.com/tooldock/resilience-core/pkg/config"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

type registeredStrategy struct {
	Strategy
	seq int
}

// Orchestrator drives registered strategies against incoming errors in
// descending priority order until one succeeds. HandleError never
// returns nil and never propagates a panic.
type Orchestrator struct {
	mutex      sync.RWMutex
	strategies []registeredStrategy

	contexts   *Contexts
	notifier   *notifications.Dispatcher
	metrics    *metrics.Metrics
	logger     *logging.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewOrchestrator creates an orchestrator with no strategies registered.
// The notifier and metrics may be nil.
func NewOrchestrator(cfg config.RecoveryConfig, contexts *Contexts, notifier *notifications.Dispatcher, m *metrics.Metrics) *Orchestrator {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	return &Orchestrator{
		contexts:   contexts,
		notifier:   notifier,
		metrics:    m,
		logger:     logging.GetLogger(),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// RegisterStrategy adds a strategy. Priority ties resolve by
// registration order.
func (o *Orchestrator) RegisterStrategy(s Strategy) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.strategies = append(o.strategies, registeredStrategy{Strategy: s, seq: len(o.strategies)})
	o.logger.Info("Recovery strategy registered",
		"strategy", s.Name(),
		"priority", s.Priority(),
	)
}

// RegisterDefaults wires the standard strategy set. The probe,
// checkpoint restorer, and registries may be nil; strategies that need
// them simply never match.
func (o *Orchestrator) RegisterDefaults(probe connectivity.Probe, alternatives *AlternativeRegistry, offline *OfflineCapabilities, checkpoints CheckpointRestorer) {
	if alternatives == nil {
		alternatives = NewAlternativeRegistry()
	}
	if offline == nil {
		offline = NewOfflineCapabilities()
	}

	o.RegisterStrategy(NewNetworkRecoveryStrategy(probe, offline))
	o.RegisterStrategy(NewAlternativeServiceStrategy(alternatives))
	o.RegisterStrategy(NewCacheRecoveryStrategy())
	o.RegisterStrategy(NewDataRecoveryStrategy(checkpoints))
	o.RegisterStrategy(NewRetryStrategy(o.maxRetries, o.baseDelay, o.maxDelay))
	o.RegisterStrategy(NewGracefulDegradationStrategy())
}

// StrategyNames lists registered strategies in priority order
func (o *Orchestrator) StrategyNames() []string {
	ordered := o.ordered()
	names := make([]string, 0, len(ordered))
	for _, s := range ordered {
		names = append(names, s.Name())
	}
	return names
}

// HandleOption customizes one HandleError call
type HandleOption func(*Attempt)

// WithOperation supplies the failed operation so the retry strategy can
// re-execute it
func WithOperation(op Operation) HandleOption {
	return func(att *Attempt) {
		att.Operation = op
	}
}

// HandleError recovers from err by trying matching strategies in
// priority order. The first success wins; a strategy panic counts as a
// failed attempt. The returned result is never nil.
func (o *Orchestrator) HandleError(ctx context.Context, err error, opts ...HandleOption) *Result {
	if err == nil {
		return &Result{Success: true, Message: "nothing to recover"}
	}
	start := time.Now()
	serr := appErrors.Classify(err, "unknown")

	svcCtx := o.contexts.Get(serr.ServiceID)
	svcCtx.RecordError(serr)
	attempts := svcCtx.IncrementRetry()
	if o.metrics != nil {
		o.metrics.RecordErrorHandled(serr.ServiceID, string(serr.Kind))
	}

	att := &Attempt{Error: serr, Context: svcCtx}
	for _, opt := range opts {
		opt(att)
	}

	candidates := o.candidates(ctx, att)
	if len(candidates) == 0 {
		o.logger.Warn("No recovery strategy matched",
			"service_id", serr.ServiceID,
			"kind", string(serr.Kind),
		)
		o.notify(notifications.Notification{
			Type:       notifications.TypeError,
			Source:     serr.ServiceID,
			Title:      "Operation failed",
			Message:    serr.Message,
			Persistent: true,
			Actions: []notifications.Action{
				{Label: "Retry", Action: "retry", Primary: true},
			},
		})
		o.recordRecovery(serr.ServiceID, "none", "unrecoverable", time.Since(start))
		o.updateHealth(svcCtx)
		return &Result{Success: false, Message: "no recovery strategy available"}
	}

	for _, candidate := range candidates {
		strategyStart := time.Now()
		res, recoverErr := o.safeRecover(ctx, candidate, att)
		if recoverErr != nil || res == nil || !res.Success {
			o.logger.LogRecoveryEvent(ctx, "strategy_failed", serr.ServiceID, candidate.Name(), logrus.Fields{
				"error": fmt.Sprintf("%v", recoverErr),
			})
			o.recordRecovery(serr.ServiceID, candidate.Name(), "failure", time.Since(strategyStart))
			continue
		}

		res.StrategyUsed = candidate.Name()
		svcCtx.MarkSuccess()
		o.recordRecovery(serr.ServiceID, candidate.Name(), "success", time.Since(strategyStart))
		o.logger.LogRecoveryEvent(ctx, "recovery_succeeded", serr.ServiceID, candidate.Name(), logrus.Fields{
			"fallback_used": res.FallbackUsed,
			"total_time":    time.Since(start).String(),
		})

		if res.FallbackUsed {
			o.notify(notifications.Notification{
				Type:    notifications.TypeWarning,
				Source:  serr.ServiceID,
				Title:   "Recovered via fallback",
				Message: res.Message,
			})
		}
		o.updateHealth(svcCtx)
		return res
	}

	// Every matching strategy failed.
	if attempts >= o.maxRetries {
		o.logger.Error("Recovery exhausted",
			"service_id", serr.ServiceID,
			"attempts", attempts,
		)
		o.notify(notifications.Notification{
			Type:       notifications.TypeError,
			Source:     serr.ServiceID,
			Title:      "Service recovery failed",
			Message:    fmt.Sprintf("could not recover %s after %d attempts", serr.ServiceID, attempts),
			Persistent: true,
			Actions: []notifications.Action{
				{Label: "Reset", Action: "reset_service", Primary: true},
			},
		})
		o.updateHealth(svcCtx)
		return &Result{
			Success: false,
			Message: fmt.Sprintf("recovery failed after %d attempts", attempts),
		}
	}

	delay := backoffDelay(o.baseDelay, o.maxDelay, attempts)
	o.notify(notifications.Notification{
		Type:    notifications.TypeInfo,
		Source:  serr.ServiceID,
		Title:   "Retrying",
		Message: fmt.Sprintf("next recovery attempt in %s", delay),
	})
	o.updateHealth(svcCtx)
	return &Result{
		Success:    false,
		Pending:    true,
		RetryAfter: delay,
		Message:    "recovery in progress",
	}
}

// GetServiceHealth reports the status of every tracked service
func (o *Orchestrator) GetServiceHealth() map[string]Status {
	health := make(map[string]Status)
	for _, id := range o.contexts.ServiceIDs() {
		health[id] = o.contexts.Get(id).Status(o.maxRetries)
	}
	return health
}

// ServiceStatus reports the status of one service
func (o *Orchestrator) ServiceStatus(serviceID string) Status {
	return o.contexts.Get(serviceID).Status(o.maxRetries)
}

// ResetService clears a service's error history and retry progress
func (o *Orchestrator) ResetService(serviceID string) {
	o.contexts.Reset(serviceID)
	if o.metrics != nil {
		o.metrics.UpdateServiceHealth(serviceID, HealthValue(StatusHealthy))
	}
	o.logger.Info("Service recovery state reset", "service_id", serviceID)
}

// candidates returns matching strategies in priority order. CanRecover
// panics disqualify the strategy.
func (o *Orchestrator) candidates(ctx context.Context, att *Attempt) []registeredStrategy {
	matched := make([]registeredStrategy, 0)
	for _, s := range o.ordered() {
		if o.safeCanRecover(ctx, s, att) {
			matched = append(matched, s)
		}
	}
	return matched
}

func (o *Orchestrator) ordered() []registeredStrategy {
	o.mutex.RLock()
	ordered := make([]registeredStrategy, len(o.strategies))
	copy(ordered, o.strategies)
	o.mutex.RUnlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority() != ordered[j].Priority() {
			return ordered[i].Priority() > ordered[j].Priority()
		}
		return ordered[i].seq < ordered[j].seq
	})
	return ordered
}

func (o *Orchestrator) safeCanRecover(ctx context.Context, s registeredStrategy, att *Attempt) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.recordStrategyPanic(s.Name(), r)
			ok = false
		}
	}()
	return s.CanRecover(ctx, att)
}

func (o *Orchestrator) safeRecover(ctx context.Context, s registeredStrategy, att *Attempt) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.recordStrategyPanic(s.Name(), r)
			res = nil
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Recover(ctx, att)
}

func (o *Orchestrator) recordStrategyPanic(strategy string, value interface{}) {
	o.logger.Error("Recovery strategy panicked",
		"strategy", strategy,
		"panic", fmt.Sprintf("%v", value),
	)
	if o.metrics != nil {
		o.metrics.RecordPanic("recovery")
	}
}

func (o *Orchestrator) notify(n notifications.Notification) {
	if o.notifier == nil {
		return
	}
	o.notifier.Post(n)
}

func (o *Orchestrator) recordRecovery(service, strategy, outcome string, duration time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordRecovery(service, strategy, outcome, duration)
	}
}

func (o *Orchestrator) updateHealth(svcCtx *ServiceContext) {
	if o.metrics != nil {
		o.metrics.UpdateServiceHealth(svcCtx.ServiceID(), HealthValue(svcCtx.Status(o.maxRetries)))
	}
}
