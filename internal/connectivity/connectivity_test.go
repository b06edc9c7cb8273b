package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe_Online(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	probe := NewHTTPProbe(server.URL, time.Second)
	assert.True(t, probe.Online(context.Background()))
}

func TestHTTPProbe_ErrorStatusStillOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// A 500 response proves the network path works.
	probe := NewHTTPProbe(server.URL, time.Second)
	assert.True(t, probe.Online(context.Background()))
}

func TestHTTPProbe_OfflineOnTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	probe := NewHTTPProbe(server.URL, 200*time.Millisecond)
	assert.False(t, probe.Online(context.Background()))
}

func TestStaticProbe(t *testing.T) {
	probe := NewStaticProbe(true)
	ctx := context.Background()

	assert.True(t, probe.Online(ctx))
	probe.SetOnline(false)
	assert.False(t, probe.Online(ctx))
}

func TestMonitor_TracksStateAndNotifies(t *testing.T) {
	probe := NewStaticProbe(true)
	monitor := NewMonitor(probe, 10*time.Millisecond, nil)

	var mu sync.Mutex
	var flips []bool
	monitor.OnChange(func(online bool) {
		mu.Lock()
		flips = append(flips, online)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)
	defer monitor.Stop()

	require.Eventually(t, monitor.IsOnline, time.Second, 5*time.Millisecond)

	probe.SetOnline(false)
	require.Eventually(t, func() bool { return !monitor.IsOnline() }, time.Second, 5*time.Millisecond)

	probe.SetOnline(true)
	require.Eventually(t, monitor.IsOnline, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true}, flips)
}

func TestMonitor_UsableAsProbe(t *testing.T) {
	probe := NewStaticProbe(false)
	monitor := NewMonitor(probe, 10*time.Millisecond, nil)

	// Before the first poll the monitor optimistically reports online.
	var asProbe Probe = monitor
	assert.True(t, asProbe.Online(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)
	defer monitor.Stop()

	require.Eventually(t, func() bool { return !asProbe.Online(context.Background()) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "monitor(static)", asProbe.Name())
}

func TestMonitor_StopIsIdempotent(t *testing.T) {
	monitor := NewMonitor(NewStaticProbe(true), 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		monitor.Start(context.Background())
		close(done)
	}()

	monitor.Stop()
	monitor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
