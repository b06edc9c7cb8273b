package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/resilience-core/internal/connectivity"
	"github.com/tooldock/resilience-core/pkg/config"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
)

type resolverFixture struct {
	resolver     *Resolver
	contexts     *Contexts
	alternatives *AlternativeRegistry
	offline      *OfflineCapabilities
	probe        *connectivity.StaticProbe
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		contexts:     NewContexts(0),
		alternatives: NewAlternativeRegistry(),
		offline:      NewOfflineCapabilities(),
		probe:        connectivity.NewStaticProbe(true),
	}
	f.resolver = NewResolver(config.RecoveryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
	}, f.contexts, f.alternatives, f.offline, f.probe, nil)
	return f
}

func TestResolver_NetworkOfflineWithCapability(t *testing.T) {
	f := newResolverFixture()
	f.probe.SetOnline(false)
	f.offline.Mark("notes-service")

	res := f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("notes-service", "connection lost"))

	assert.Equal(t, ActionSwitchToOffline, res.Action)
	assert.Equal(t, "notes-service", res.ServiceID)
	assert.Equal(t, true, res.FallbackData["offlineMode"])
}

func TestResolver_NetworkOfflineWithoutCapability(t *testing.T) {
	f := newResolverFixture()
	f.probe.SetOnline(false)

	res := f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "connection lost"))

	assert.Equal(t, ActionQueueForRetry, res.Action)
	assert.Equal(t, 5*time.Second, res.RetryAfter)
}

func TestResolver_NetworkOnlineWithAlternatives(t *testing.T) {
	f := newResolverFixture()
	f.alternatives.Register("sync-service", "sync-mirror", "sync-backup")

	res := f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "connection reset"))

	assert.Equal(t, ActionRetryWithAlternative, res.Action)
	assert.Equal(t, []string{"sync-mirror", "sync-backup"}, res.Alternatives)
}

func TestResolver_NetworkOnlineNoAlternatives(t *testing.T) {
	f := newResolverFixture()

	res := f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "connection reset"))

	assert.Equal(t, ActionQueueForRetry, res.Action)
	assert.Equal(t, 100*time.Millisecond, res.RetryAfter)
}

func TestResolver_ServiceUnavailable(t *testing.T) {
	f := newResolverFixture()

	// No alternatives, no offline capability: long requeue.
	res := f.resolver.Resolve(context.Background(), appErrors.NewServiceUnavailableError("ai-service", "503"))
	assert.Equal(t, ActionQueueForRetry, res.Action)
	assert.Equal(t, 2*time.Minute, res.RetryAfter)

	// Offline capability beats queueing.
	f.offline.Mark("ai-service")
	res = f.resolver.Resolve(context.Background(), appErrors.NewServiceUnavailableError("ai-service", "503"))
	assert.Equal(t, ActionSwitchToOffline, res.Action)

	// Alternatives beat the offline fallback.
	f.alternatives.Register("ai-service", "ai-fallback")
	res = f.resolver.Resolve(context.Background(), appErrors.NewServiceUnavailableError("ai-service", "503"))
	assert.Equal(t, ActionRetryWithAlternative, res.Action)
	assert.Equal(t, []string{"ai-fallback"}, res.Alternatives)
}

func TestResolver_RateLimited(t *testing.T) {
	f := newResolverFixture()

	res := f.resolver.Resolve(context.Background(), appErrors.NewRateLimitedError("api", "429"))
	assert.Equal(t, ActionQueueForRetry, res.Action)
	assert.Equal(t, 60*time.Second, res.RetryAfter)

	hinted := appErrors.NewRateLimitedError("api", "429").WithRetryAfterHint(30 * time.Second)
	res = f.resolver.Resolve(context.Background(), hinted)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	f.alternatives.Register("api", "api-secondary")
	res = f.resolver.Resolve(context.Background(), hinted)
	assert.Equal(t, ActionRetryWithAlternative, res.Action)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
}

func TestResolver_Timeout(t *testing.T) {
	f := newResolverFixture()

	res := f.resolver.Resolve(context.Background(), appErrors.NewTimeoutError("search", "query"))
	assert.Equal(t, ActionRetry, res.Action)
	assert.Equal(t, 100*time.Millisecond, res.RetryAfter)

	f.alternatives.Register("search", "search-replica")
	res = f.resolver.Resolve(context.Background(), appErrors.NewTimeoutError("search", "query"))
	assert.Equal(t, ActionRetryWithAlternative, res.Action)
}

func TestResolver_ValidationNeverRetried(t *testing.T) {
	f := newResolverFixture()
	f.alternatives.Register("form", "form-backup")

	res := f.resolver.Resolve(context.Background(), appErrors.NewValidationError("form", "name is required"))
	assert.Equal(t, ActionShowError, res.Action)
	assert.Equal(t, "name is required", res.Message)

	res = f.resolver.Resolve(context.Background(), appErrors.NewSchemaError("form", "field type mismatch"))
	assert.Equal(t, ActionShowError, res.Action)

	res = f.resolver.Resolve(context.Background(), appErrors.NewIntegrityError("cp-1", "checksum mismatch"))
	assert.Equal(t, ActionShowError, res.Action)
}

func TestResolver_Unknown(t *testing.T) {
	f := newResolverFixture()

	retryable := appErrors.NewUnknownError("svc", "weirdness").WithRetryable(true)
	res := f.resolver.Resolve(context.Background(), retryable)
	assert.Equal(t, ActionQueueForRetry, res.Action)

	terminal := appErrors.NewUnknownError("svc", "weirdness").WithRetryable(false)
	res = f.resolver.Resolve(context.Background(), terminal)
	assert.Equal(t, ActionShowError, res.Action)
}

func TestResolver_ClassifiesForeignErrors(t *testing.T) {
	f := newResolverFixture()
	f.probe.SetOnline(false)
	f.offline.Mark("unknown")

	// A plain error classifies as a network failure and dispatches
	// accordingly; the classifier assigns it to the unknown service.
	res := f.resolver.Resolve(context.Background(), errors.New("connection refused"))
	assert.Equal(t, ActionSwitchToOffline, res.Action)
}

func TestResolver_RecordsHealthHistory(t *testing.T) {
	f := newResolverFixture()

	require.Equal(t, HealthHealthy, f.resolver.Health("sync-service"))

	f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "down"))
	assert.Equal(t, HealthDegraded, f.resolver.Health("sync-service"))

	for i := 0; i < 2; i++ {
		f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "down"))
	}
	assert.Equal(t, HealthUnavailable, f.resolver.Health("sync-service"))
}

func TestResolver_BackoffGrowsWithRetryAttempts(t *testing.T) {
	f := newResolverFixture()
	f.contexts.Get("sync-service").IncrementRetry()
	f.contexts.Get("sync-service").IncrementRetry()

	res := f.resolver.Resolve(context.Background(), appErrors.NewNetworkError("sync-service", "connection reset"))

	// Two prior attempts double the base delay twice.
	assert.Equal(t, 400*time.Millisecond, res.RetryAfter)
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(time.Second, 30*time.Second, 0))
	assert.Equal(t, 8*time.Second, backoffDelay(time.Second, 30*time.Second, 3))
	assert.Equal(t, 30*time.Second, backoffDelay(time.Second, 30*time.Second, 10))
}
