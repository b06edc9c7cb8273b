package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tooldock/resilience-core/internal/checkpoint"
	"github.com/tooldock/resilience-core/internal/connectivity"
	"github.com/tooldock/resilience-core/internal/store"
	appErrors "github.com/tooldock/resilience-core/pkg/errors"
)

func attemptFor(serr *appErrors.ServiceError) *Attempt {
	return &Attempt{
		Error:   serr,
		Context: NewContexts(0).Get(serr.ServiceID),
	}
}

func TestNetworkRecoveryStrategy_OnlineVerified(t *testing.T) {
	s := NewNetworkRecoveryStrategy(connectivity.NewStaticProbe(true), NewOfflineCapabilities())
	att := attemptFor(appErrors.NewNetworkError("sync", "connection lost"))

	require.True(t, s.CanRecover(context.Background(), att))
	res, err := s.Recover(context.Background(), att)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.FallbackUsed)
	assert.Equal(t, true, res.Data["online"])
}

func TestNetworkRecoveryStrategy_OfflineFallback(t *testing.T) {
	offline := NewOfflineCapabilities()
	offline.Mark("notes")
	s := NewNetworkRecoveryStrategy(connectivity.NewStaticProbe(false), offline)
	att := attemptFor(appErrors.NewNetworkError("notes", "connection lost"))

	res, err := s.Recover(context.Background(), att)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, true, res.Data["offlineMode"])
}

func TestNetworkRecoveryStrategy_OfflineNoFallback(t *testing.T) {
	s := NewNetworkRecoveryStrategy(connectivity.NewStaticProbe(false), NewOfflineCapabilities())
	att := attemptFor(appErrors.NewNetworkError("sync", "connection lost"))

	res, err := s.Recover(context.Background(), att)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestNetworkRecoveryStrategy_OnlyMatchesNetworkErrors(t *testing.T) {
	s := NewNetworkRecoveryStrategy(nil, NewOfflineCapabilities())

	assert.True(t, s.CanRecover(context.Background(), attemptFor(appErrors.NewNetworkError("x", "down"))))
	assert.False(t, s.CanRecover(context.Background(), attemptFor(appErrors.NewTimeoutError("x", "op"))))
	assert.False(t, s.CanRecover(context.Background(), attemptFor(appErrors.NewValidationError("x", "bad"))))
}

func TestAlternativeServiceStrategy(t *testing.T) {
	alts := NewAlternativeRegistry()
	s := NewAlternativeServiceStrategy(alts)
	att := attemptFor(appErrors.NewServiceUnavailableError("ai", "503"))

	assert.False(t, s.CanRecover(context.Background(), att))

	alts.Register("ai", "ai-mirror", "ai-backup")
	require.True(t, s.CanRecover(context.Background(), att))

	res, err := s.Recover(context.Background(), att)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, "ai-mirror", res.Data["alternativeService"])
	assert.Equal(t, []string{"ai-mirror", "ai-backup"}, res.Data["alternatives"])

	// Validation errors never reroute.
	assert.False(t, s.CanRecover(context.Background(), attemptFor(appErrors.NewValidationError("ai", "bad"))))
}

func TestCacheRecoveryStrategy(t *testing.T) {
	s := NewCacheRecoveryStrategy()

	bare := attemptFor(appErrors.NewNetworkError("feed", "down"))
	assert.False(t, s.CanRecover(context.Background(), bare))

	cached := attemptFor(appErrors.NewNetworkError("feed", "down").
		WithCachedData(map[string]interface{}{"items": 3}))
	require.True(t, s.CanRecover(context.Background(), cached))

	res, err := s.Recover(context.Background(), cached)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, true, res.Data["fromCache"])
	assert.NotNil(t, res.Data["cachedData"])
}

func TestDataRecoveryStrategy(t *testing.T) {
	mgr := checkpoint.NewManager(store.NewMemoryStore(), checkpoint.DefaultConfig(), nil)
	s := NewDataRecoveryStrategy(mgr)
	ctx := context.Background()

	_, err := mgr.Create(ctx, "ws-1", map[string]interface{}{
		"id":    "ws-1",
		"name":  "Drafts",
		"files": []interface{}{},
	}, "")
	require.NoError(t, err)

	att := attemptFor(appErrors.NewUnknownError("editor", "state corrupted").WithWorkspaceID("ws-1"))
	require.True(t, s.CanRecover(ctx, att))

	res, err := s.Recover(ctx, att)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.FallbackUsed)
	assert.NotEmpty(t, res.Data["checkpointId"])
	snapshot, ok := res.Data["workspace"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Drafts", snapshot["name"])
}

func TestDataRecoveryStrategy_RequiresWorkspaceAndCheckpoint(t *testing.T) {
	mgr := checkpoint.NewManager(store.NewMemoryStore(), checkpoint.DefaultConfig(), nil)
	s := NewDataRecoveryStrategy(mgr)
	ctx := context.Background()

	noWorkspace := attemptFor(appErrors.NewUnknownError("editor", "corrupted"))
	assert.False(t, s.CanRecover(ctx, noWorkspace))

	noCheckpoints := attemptFor(appErrors.NewUnknownError("editor", "corrupted").WithWorkspaceID("empty-ws"))
	require.True(t, s.CanRecover(ctx, noCheckpoints))
	_, err := s.Recover(ctx, noCheckpoints)
	assert.Error(t, err)
}

func TestRetryStrategy_ReexecutesOperation(t *testing.T) {
	s := NewRetryStrategy(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	att := attemptFor(appErrors.NewTimeoutError("search", "query"))
	att.Operation = func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 2 {
			return nil, appErrors.NewTimeoutError("search", "query")
		}
		return "results", nil
	}

	require.True(t, s.CanRecover(context.Background(), att))
	res, err := s.Recover(context.Background(), att)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "results", res.Data["result"])
	assert.Equal(t, 2, res.Data["attempts"])
}

func TestRetryStrategy_CanRecoverGuards(t *testing.T) {
	s := NewRetryStrategy(2, time.Millisecond, 10*time.Millisecond)
	op := func(ctx context.Context) (interface{}, error) { return nil, errors.New("nope") }

	noOp := attemptFor(appErrors.NewTimeoutError("search", "query"))
	assert.False(t, s.CanRecover(context.Background(), noOp))

	notRetryable := attemptFor(appErrors.NewValidationError("search", "bad input"))
	notRetryable.Operation = op
	assert.False(t, s.CanRecover(context.Background(), notRetryable))

	exhausted := attemptFor(appErrors.NewTimeoutError("search", "query"))
	exhausted.Operation = op
	for i := 0; i < 3; i++ {
		exhausted.Context.IncrementRetry()
	}
	assert.False(t, s.CanRecover(context.Background(), exhausted))
}

func TestRetryStrategy_FailureReportsError(t *testing.T) {
	s := NewRetryStrategy(2, time.Millisecond, 10*time.Millisecond)

	att := attemptFor(appErrors.NewTimeoutError("search", "query"))
	att.Operation = func(ctx context.Context) (interface{}, error) {
		return nil, appErrors.NewTimeoutError("search", "query")
	}

	res, err := s.Recover(context.Background(), att)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestGracefulDegradationStrategy_AlwaysMatches(t *testing.T) {
	s := NewGracefulDegradationStrategy()

	for _, serr := range []*appErrors.ServiceError{
		appErrors.NewNetworkError("a", "down"),
		appErrors.NewValidationError("b", "bad"),
		appErrors.NewUnknownError("c", "???"),
	} {
		att := attemptFor(serr)
		require.True(t, s.CanRecover(context.Background(), att))
		res, err := s.Recover(context.Background(), att)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.FallbackUsed)
		assert.Equal(t, true, res.Data["degradedMode"])
	}
}

func TestStrategyPriorities(t *testing.T) {
	assert.Equal(t, 100, NewNetworkRecoveryStrategy(nil, nil).Priority())
	assert.Equal(t, 90, NewAlternativeServiceStrategy(NewAlternativeRegistry()).Priority())
	assert.Equal(t, 85, NewCacheRecoveryStrategy().Priority())
	assert.Equal(t, 80, NewDataRecoveryStrategy(nil).Priority())
	assert.Equal(t, 70, NewRetryStrategy(3, time.Second, time.Minute).Priority())
	assert.Equal(t, 60, NewGracefulDegradationStrategy().Priority())
}
