package recovery

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tooldock/resilience-core/internal/connectivity"
	"github.com/tooldock/resilience-core/pkg/config"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
	"github.com/tooldock/resilience-core/pkg/logging"
	"github.com/tooldock/resilience-core/pkg/metrics"
)

// Action tells the caller what to do about a failed service call
type Action string

const (
	ActionRetry                Action = "retry"
	ActionRetryWithAlternative Action = "retry_with_alternative"
	ActionSwitchToOffline      Action = "switch_to_offline"
	ActionQueueForRetry        Action = "queue_for_retry"
	ActionShowError            Action = "show_error"
	ActionFallback             Action = "fallback"
)

// Resolution is the resolver's advice for one error. RetryAfter is
// advisory scheduling information, not a scheduled callback.
type Resolution struct {
	Action       Action                 `json:"action"`
	ServiceID    string                 `json:"serviceId"`
	Alternatives []string               `json:"alternatives,omitempty"`
	RetryAfter   time.Duration          `json:"retryAfter,omitempty"`
	Message      string                 `json:"message,omitempty"`
	FallbackData map[string]interface{} `json:"fallbackData,omitempty"`
}

// Requeue delays per error kind
const (
	shortRequeueDelay       = 5 * time.Second
	unavailableRequeueDelay = 2 * time.Minute
	defaultRateLimitDelay   = 60 * time.Second
)

// Resolver maps classified errors to resolutions, consulting the
// alternative-service registry, the offline-capability set, and the
// connectivity probe
type Resolver struct {
	contexts     *Contexts
	alternatives *AlternativeRegistry
	offline      *OfflineCapabilities
	probe        connectivity.Probe
	logger       *logging.Logger
	metrics      *metrics.Metrics
	baseDelay    time.Duration
	maxDelay     time.Duration
}

// NewResolver creates a resolver. The probe and metrics may be nil; a
// nil probe is treated as always online.
func NewResolver(cfg config.RecoveryConfig, contexts *Contexts, alternatives *AlternativeRegistry, offline *OfflineCapabilities, probe connectivity.Probe, m *metrics.Metrics) *Resolver {
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	return &Resolver{
		contexts:     contexts,
		alternatives: alternatives,
		offline:      offline,
		probe:        probe,
		logger:       logging.GetLogger(),
		metrics:      m,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
	}
}

// Resolve classifies err and dispatches on its kind. It records the
// error into the service's health history.
func (r *Resolver) Resolve(ctx context.Context, err error) *Resolution {
	serr := appErrors.Classify(err, "unknown")
	if serr == nil {
		return &Resolution{Action: ActionRetry, Message: "no error to resolve"}
	}

	svcCtx := r.contexts.Get(serr.ServiceID)
	svcCtx.RecordError(serr)
	if r.metrics != nil {
		r.metrics.RecordErrorHandled(serr.ServiceID, string(serr.Kind))
	}

	resolution := r.dispatch(ctx, serr, svcCtx)
	resolution.ServiceID = serr.ServiceID

	r.logger.LogRecoveryEvent(ctx, "error_resolved", serr.ServiceID, string(resolution.Action), logrus.Fields{
		"kind":        string(serr.Kind),
		"retry_after": resolution.RetryAfter.String(),
	})
	return resolution
}

func (r *Resolver) dispatch(ctx context.Context, serr *appErrors.ServiceError, svcCtx *ServiceContext) *Resolution {
	alts := r.alternatives.For(serr.ServiceID)
	capable := r.offline.IsCapable(serr.ServiceID)

	switch serr.Kind {
	case appErrors.KindNetwork:
		online := r.online(ctx)
		switch {
		case !online && capable:
			return &Resolution{
				Action:       ActionSwitchToOffline,
				Message:      "offline detected, switching to local mode",
				FallbackData: map[string]interface{}{"offlineMode": true},
			}
		case !online:
			return &Resolution{
				Action:     ActionQueueForRetry,
				RetryAfter: shortRequeueDelay,
				Message:    "offline and no local mode available, queueing",
			}
		case len(alts) > 0:
			return &Resolution{
				Action:       ActionRetryWithAlternative,
				Alternatives: alts,
				Message:      "network error with alternatives available",
			}
		default:
			return &Resolution{
				Action:     ActionQueueForRetry,
				RetryAfter: r.backoff(svcCtx.RetryAttempts()),
				Message:    "transient network error, queueing with backoff",
			}
		}

	case appErrors.KindServiceUnavailable:
		switch {
		case len(alts) > 0:
			return &Resolution{
				Action:       ActionRetryWithAlternative,
				Alternatives: alts,
				Message:      "service unavailable, alternatives available",
			}
		case capable:
			return &Resolution{
				Action:       ActionSwitchToOffline,
				Message:      "service unavailable, switching to local mode",
				FallbackData: map[string]interface{}{"offlineMode": true},
			}
		default:
			return &Resolution{
				Action:     ActionQueueForRetry,
				RetryAfter: unavailableRequeueDelay,
				Message:    "service unavailable, retrying later",
			}
		}

	case appErrors.KindRateLimited:
		retryAfter := defaultRateLimitDelay
		if hint, ok := appErrors.RetryAfterHint(serr); ok {
			retryAfter = hint
		}
		if len(alts) > 0 {
			return &Resolution{
				Action:       ActionRetryWithAlternative,
				Alternatives: alts,
				RetryAfter:   retryAfter,
				Message:      "rate limited, alternatives available",
			}
		}
		return &Resolution{
			Action:     ActionQueueForRetry,
			RetryAfter: retryAfter,
			Message:    "rate limited, honoring cool-down",
		}

	case appErrors.KindTimeout:
		if len(alts) > 0 {
			return &Resolution{
				Action:       ActionRetryWithAlternative,
				Alternatives: alts,
				Message:      "timeout, trying a faster alternative",
			}
		}
		return &Resolution{
			Action:     ActionRetry,
			RetryAfter: r.backoff(svcCtx.RetryAttempts()),
			Message:    "timeout, retrying with backoff",
		}

	case appErrors.KindValidation, appErrors.KindSchema, appErrors.KindIntegrity:
		return &Resolution{
			Action:  ActionShowError,
			Message: serr.Message,
		}

	default:
		if serr.Retryable {
			return &Resolution{
				Action:     ActionQueueForRetry,
				RetryAfter: r.backoff(svcCtx.RetryAttempts()),
				Message:    "unclassified retryable error, queueing",
			}
		}
		return &Resolution{
			Action:  ActionShowError,
			Message: serr.Message,
		}
	}
}

// Health returns the windowed health classification for one service
func (r *Resolver) Health(serviceID string) Health {
	return r.contexts.Get(serviceID).Health()
}

func (r *Resolver) online(ctx context.Context) bool {
	if r.probe == nil {
		return true
	}
	return r.probe.Online(ctx)
}

func (r *Resolver) backoff(attempts int) time.Duration {
	return backoffDelay(r.baseDelay, r.maxDelay, attempts)
}

// backoffDelay doubles base per attempt, capped at max
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
