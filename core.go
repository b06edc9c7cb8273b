// Package core assembles the resilience subsystem behind one facade:
// retries with per-operation circuit breaking, error classification and
// resolution, prioritized recovery strategies, workspace validation, and
// checksum-verified checkpoints.
//
// New wires every component from a single Config; collaborators that the
// embedding application already owns (store, workspace repository,
// connectivity probe, notification sinks) are injected through Options
// and default to working in-process implementations when absent.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tooldock/resilience-core/internal/checkpoint"
	"github.com/tooldock/resilience-core/internal/connectivity"
	"github.com/tooldock/resilience-core/internal/notifications"
	"github.com/tooldock/resilience-core/internal/recovery"
	"github.com/tooldock/resilience-core/internal/store"
	"github.com/tooldock/resilience-core/internal/validation"
	"github.com/tooldock/resilience-core/internal/workspace"
	"github.com/tooldock/resilience-core/pkg/config"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
	"github.com/tooldock/resilience-core/pkg/resilience"
	"github.com/tooldock/resilience-core/pkg/tracing"
)

// Re-exported types so callers outside this module can name what the
// facade returns without reaching into internal packages.
type (
	Workspace        = workspace.Workspace
	FileReference    = workspace.FileReference
	FileType         = workspace.FileType
	Checkpoint       = checkpoint.Checkpoint
	ValidationResult = validation.Result
	Resolution       = recovery.Resolution
	Action           = recovery.Action
	RecoveryResult   = recovery.Result
	ServiceStatus    = recovery.Status
	Strategy         = recovery.Strategy
	Notification     = notifications.Notification
	NotificationType = notifications.Type
	NotificationSink = notifications.Sink
	Probe            = connectivity.Probe
	Store            = store.Store
	ServiceError     = appErrors.ServiceError
)

// Resolution actions
const (
	ActionRetry                = recovery.ActionRetry
	ActionRetryWithAlternative = recovery.ActionRetryWithAlternative
	ActionSwitchToOffline      = recovery.ActionSwitchToOffline
	ActionQueueForRetry        = recovery.ActionQueueForRetry
	ActionShowError            = recovery.ActionShowError
	ActionFallback             = recovery.ActionFallback
)

// Service statuses
const (
	StatusHealthy    = recovery.StatusHealthy
	StatusDegraded   = recovery.StatusDegraded
	StatusRecovering = recovery.StatusRecovering
	StatusFailed     = recovery.StatusFailed
)

// Notification types
const (
	TypeError   = notifications.TypeError
	TypeWarning = notifications.TypeWarning
	TypeInfo    = notifications.TypeInfo
	TypeSuccess = notifications.TypeSuccess
)

// File types
const (
	FileTypeImage    = workspace.FileTypeImage
	FileTypeDocument = workspace.FileTypeDocument
	FileTypeCode     = workspace.FileTypeCode
	FileTypeText     = workspace.FileTypeText
	FileTypeAudio    = workspace.FileTypeAudio
	FileTypeVideo    = workspace.FileTypeVideo
	FileTypeMedia    = workspace.FileTypeMedia
)

// ErrNotFound marks lookups of checkpoints or workspaces that do not
// exist. Test with errors.Is.
var ErrNotFound = store.ErrNotFound

// HandleOption customizes one HandleError call
type HandleOption = recovery.HandleOption

// WithOperation supplies the failed operation to HandleError so the
// retry strategy can re-execute it
func WithOperation(op func(ctx context.Context) (interface{}, error)) HandleOption {
	return recovery.WithOperation(op)
}

// Options injects collaborators the embedding application already owns.
// Every field may be left nil; New then builds a default from the Config:
// an in-memory store, a store-backed workspace repository, an HTTP
// connectivity probe, a log sink, and freshly constructed logging,
// metrics, and tracing services.
type Options struct {
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Tracer     *tracing.TracingService
	Store      store.Store
	Workspaces workspace.Repository
	Probe      connectivity.Probe
	Sinks      []notifications.Sink

	// URLCheck enables best-effort reachability warnings for file URLs
	// during workspace validation. Nil skips reachability checks.
	URLCheck validation.URLChecker
}

// Core is the assembled resilience subsystem
type Core struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  *tracing.TracingService

	store      store.Store
	ownedStore bool
	workspaces workspace.Repository

	checkpoints  *checkpoint.Manager
	schemas      *validation.Registry
	validator    *validation.WorkspaceValidator
	contexts     *recovery.Contexts
	alternatives *recovery.AlternativeRegistry
	offline      *recovery.OfflineCapabilities
	resolver     *recovery.Resolver
	orchestrator *recovery.Orchestrator
	dispatcher   *notifications.Dispatcher
	monitor      *connectivity.Monitor
	retrier      *resilience.Retrier
	breakers     *resilience.CircuitBreakerRegistry
	collector    *metrics.BreakerStateCollector

	startOnce sync.Once
	closeOnce sync.Once
}

// New builds the subsystem from cfg, honoring any collaborators supplied
// in opts. A nil cfg uses the built-in defaults. The logger becomes the
// process-wide default so every component logs through it.
func New(cfg *config.Config, opts Options) (*Core, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(&logging.Config{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Output:      cfg.Logging.Output,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	logging.SetGlobalLogger(logger)

	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics(&metrics.Config{
			Namespace: cfg.Metrics.Namespace,
			Enabled:   cfg.Metrics.Enabled,
		})
	}

	tracer := opts.Tracer
	if tracer == nil && cfg.Tracing.Enabled {
		var err error
		tracer, err = tracing.NewTracingService(&tracing.Config{
			ServiceName:    cfg.App.Name,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
			JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
			SamplingRate:   cfg.Tracing.SamplingRate,
			Enabled:        true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	st := opts.Store
	ownedStore := false
	if st == nil {
		st = store.NewMemoryStore()
		ownedStore = true
	}

	workspaces := opts.Workspaces
	if workspaces == nil {
		workspaces = workspace.NewStoreRepository(st)
	}

	probe := opts.Probe
	if probe == nil {
		if cfg.Connectivity.ProbeURL == "" {
			probe = connectivity.NewStaticProbe(true)
		} else {
			httpProbe := connectivity.NewHTTPProbe(cfg.Connectivity.ProbeURL, cfg.Connectivity.Timeout)
			if tracer != nil {
				httpProbe = httpProbe.WithClient(tracer.InstrumentHTTPClient(&http.Client{
					Timeout: cfg.Connectivity.Timeout,
				}))
			}
			probe = httpProbe
		}
	}
	monitor := connectivity.NewMonitor(probe, cfg.Connectivity.Interval, m)

	dispatcher := notifications.NewDispatcher(notifications.Config{
		MaxPerSourcePerHour: cfg.Notifications.MaxPerSourcePerHour,
		QueueSize:           cfg.Notifications.QueueSize,
	}, m)
	sinks := opts.Sinks
	if len(sinks) == 0 {
		sinks = []notifications.Sink{notifications.NewLogSink()}
	}
	for _, sink := range sinks {
		dispatcher.AddSink(sink)
	}

	checkpoints := checkpoint.NewManager(st, checkpoint.Config{
		MaxCheckpoints: cfg.Checkpoint.MaxCheckpoints,
		KeyPrefix:      cfg.Checkpoint.KeyPrefix,
	}, m)

	contexts := recovery.NewContexts(cfg.Recovery.HealthWindow)
	alternatives := recovery.NewAlternativeRegistry()
	offline := recovery.NewOfflineCapabilities()

	resolver := recovery.NewResolver(cfg.Recovery, contexts, alternatives, offline, monitor, m)

	orchestrator := recovery.NewOrchestrator(cfg.Recovery, contexts, dispatcher, m)
	orchestrator.RegisterDefaults(monitor, alternatives, offline, checkpoints)

	breakers := resilience.NewCircuitBreakerRegistry(resilience.CircuitBreakerConfig{
		FailureThreshold:        cfg.Breaker.FailureThreshold,
		ResetTimeout:            cfg.Breaker.ResetTimeout,
		SuccessThresholdToClose: cfg.Breaker.SuccessThresholdToClose,
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			logger.LogCircuitEvent(context.Background(), name, from.String(), to.String())
			m.RecordBreakerTransition(name, from.String(), to.String(), int(to))
		},
	})

	c := &Core{
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		tracer:       tracer,
		store:        st,
		ownedStore:   ownedStore,
		workspaces:   workspaces,
		checkpoints:  checkpoints,
		schemas:      validation.DefaultRegistry(),
		validator:    validation.NewWorkspaceValidator(m).WithURLChecker(opts.URLCheck),
		contexts:     contexts,
		alternatives: alternatives,
		offline:      offline,
		resolver:     resolver,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		monitor:      monitor,
		retrier:      resilience.NewRetrier(retryPolicyFromConfig(cfg.Retry)),
		breakers:     breakers,
	}
	c.collector = metrics.NewBreakerStateCollector(m, 15*time.Second, c.breakerStateValues)

	monitor.OnChange(c.onConnectivityChange)

	logger.Info("Resilience core initialized",
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
		"strategies", len(orchestrator.StrategyNames()),
	)
	return c, nil
}

// Start launches the background workers: notification delivery, the
// connectivity monitor, and the breaker state collector. It returns
// immediately; the workers run until ctx is done or Close is called.
func (c *Core) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		go c.dispatcher.Start(ctx)
		go c.monitor.Start(ctx)
		go c.collector.Start(ctx)
	})
}

// Close stops the background workers, flushes tracing, and closes the
// store if this Core created it. Safe to call more than once.
func (c *Core) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.monitor.Stop()
		c.dispatcher.Stop()
		c.collector.Stop()

		if c.tracer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if terr := c.tracer.Shutdown(ctx); terr != nil {
				c.logger.WithError(terr).Warn("Tracing shutdown failed")
			}
		}
		if c.ownedStore {
			err = c.store.Close()
		}
	})
	return err
}

// ExecuteWithRetry runs fn under the named operation's circuit breaker
// with bounded retries and exponential backoff. A nil policy uses the
// configured defaults. Circuit-open rejections are returned immediately
// and never consume a retry attempt.
func (c *Core) ExecuteWithRetry(ctx context.Context, operation string, policy *resilience.RetryPolicy, fn func(ctx context.Context) (interface{}, error)) *resilience.RetryResult {
	retrier := c.retrier
	if policy != nil {
		retrier = resilience.NewRetrier(*policy)
	}
	breaker := c.breakers.ForOperation(operation)

	result := retrier.Run(ctx, operation, func(ctx context.Context) (interface{}, error) {
		return breaker.Execute(ctx, fn)
	})

	c.metrics.RecordRetryRun(operation, result.Success, result.Attempts, result.TotalTime)
	if !result.Success {
		if resilience.IsCircuitOpenError(result.Err) {
			c.metrics.RecordBreakerRejection(operation)
		} else if result.Attempts >= retrier.Policy().MaxAttempts {
			c.metrics.RecordRetryExhausted(operation)
		}
	}
	return result
}

// HandleServiceError classifies err and returns the resolver's advice:
// retry, switch to an alternative service, go offline, queue for later,
// or surface the error. It does not attempt recovery by itself.
func (c *Core) HandleServiceError(ctx context.Context, err error) *recovery.Resolution {
	return c.resolver.Resolve(ctx, err)
}

// HandleError drives the registered recovery strategies against err in
// descending priority order and returns the first success. The result is
// never nil; graceful degradation matches every error.
func (c *Core) HandleError(ctx context.Context, err error, opts ...HandleOption) *recovery.Result {
	return c.orchestrator.HandleError(ctx, err, opts...)
}

// CreateCheckpoint snapshots the workspace's current state into a
// checksummed checkpoint, evicting the oldest one past the configured
// limit.
func (c *Core) CreateCheckpoint(ctx context.Context, workspaceID, description string) (*checkpoint.Checkpoint, error) {
	ws, err := c.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace %q: %w", workspaceID, err)
	}

	snapshot, err := workspaceSnapshot(ws)
	if err != nil {
		return nil, err
	}
	return c.checkpoints.Create(ctx, workspaceID, snapshot, description)
}

// RestoreCheckpoint loads a checkpoint, verifies its checksum, and
// returns the workspace snapshot it holds. A checksum mismatch fails
// with an integrity error and nothing is returned.
func (c *Core) RestoreCheckpoint(ctx context.Context, checkpointID string) (*workspace.Workspace, error) {
	cp, err := c.checkpoints.Restore(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	var ws workspace.Workspace
	if err := cp.Unmarshal(&ws); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %q: %w", checkpointID, err)
	}
	return &ws, nil
}

// ListCheckpoints returns the workspace's checkpoints, newest first
func (c *Core) ListCheckpoints(ctx context.Context, workspaceID string) ([]*checkpoint.Checkpoint, error) {
	return c.checkpoints.List(ctx, workspaceID)
}

// DeleteCheckpoint removes one checkpoint
func (c *Core) DeleteCheckpoint(ctx context.Context, checkpointID string) error {
	return c.checkpoints.Delete(ctx, checkpointID)
}

// ValidateWorkspaceData checks the workspace's structural integrity:
// required fields, file references, duplicate IDs, and URL reachability.
// Oversized files warn; negative sizes are errors.
func (c *Core) ValidateWorkspaceData(ctx context.Context, ws *workspace.Workspace) *validation.Result {
	return c.validator.ValidateWorkspace(ctx, ws)
}

// ValidateTransformation checks whether data of sourceKind can become
// targetKind, flagging source fields the target schema cannot hold as
// data-loss warnings. Unknown kinds fail validation.
func (c *Core) ValidateTransformation(data map[string]interface{}, sourceKind, targetKind string) *validation.Result {
	return validation.ValidateTransformation(data, c.schemas.Get(sourceKind), c.schemas.Get(targetKind))
}

// GetServiceHealth reports the derived status of every service that has
// passed through error handling
func (c *Core) GetServiceHealth() map[string]recovery.Status {
	return c.orchestrator.GetServiceHealth()
}

// ResetService clears a service's error history and retry progress
func (c *Core) ResetService(serviceID string) {
	c.orchestrator.ResetService(serviceID)
}

// RegisterAlternatives declares fallback services for serviceID, in
// preference order
func (c *Core) RegisterAlternatives(serviceID string, alternatives ...string) {
	c.alternatives.Register(serviceID, alternatives...)
}

// MarkOfflineCapable declares that the given services keep working
// without connectivity
func (c *Core) MarkOfflineCapable(serviceIDs ...string) {
	c.offline.Mark(serviceIDs...)
}

// RegisterStrategy adds a custom recovery strategy alongside the default
// set
func (c *Core) RegisterStrategy(s recovery.Strategy) {
	c.orchestrator.RegisterStrategy(s)
}

// AddNotificationSink registers an additional delivery sink
func (c *Core) AddNotificationSink(sink notifications.Sink) {
	c.dispatcher.AddSink(sink)
}

// Notifications exposes the dispatcher for direct sends
func (c *Core) Notifications() *notifications.Dispatcher {
	return c.dispatcher
}

// Workspaces exposes the workspace repository checkpoints read from
func (c *Core) Workspaces() workspace.Repository {
	return c.workspaces
}

// Breakers exposes the circuit breaker registry for per-operation
// configuration and inspection
func (c *Core) Breakers() *resilience.CircuitBreakerRegistry {
	return c.breakers
}

// IsOnline returns the monitor's last known connectivity state
func (c *Core) IsOnline() bool {
	return c.monitor.IsOnline()
}

// Schemas exposes the data schema registry
func (c *Core) Schemas() *validation.Registry {
	return c.schemas
}

// MetricsHandler returns the Prometheus scrape handler
func (c *Core) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

func (c *Core) onConnectivityChange(online bool) {
	if online {
		c.dispatcher.Post(notifications.Notification{
			Type:    notifications.TypeSuccess,
			Title:   "Connection restored",
			Message: "Back online; queued work will resume.",
			Source:  "connectivity",
		})
		return
	}
	c.dispatcher.Post(notifications.Notification{
		Type:       notifications.TypeWarning,
		Title:      "Working offline",
		Message:    "Connection lost; changes will sync when you are back online.",
		Source:     "connectivity",
		Persistent: true,
	})
}

func (c *Core) breakerStateValues() map[string]int {
	states := c.breakers.States()
	values := make(map[string]int, len(states))
	for operation, state := range states {
		values[operation] = int(state)
	}
	return values
}

func retryPolicyFromConfig(cfg config.RetryConfig) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.BaseDelay,
		MaxDelay:          cfg.MaxDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
		Jitter:            cfg.Jitter,
		TimeoutBudget:     cfg.TimeoutBudget,
	}
}

// workspaceSnapshot converts a workspace into the generic map form the
// checkpoint manager canonicalizes
func workspaceSnapshot(ws *workspace.Workspace) (map[string]interface{}, error) {
	raw, err := json.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workspace %q: %w", ws.ID, err)
	}
	var snapshot map[string]interface{}
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to build workspace snapshot: %w", err)
	}
	return snapshot, nil
}
