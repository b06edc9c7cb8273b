// Package connectivity decides whether the network path to backing services
// is up, and watches for changes.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Probe answers whether the backend is currently reachable
type Probe interface {
	Name() string
	Online(ctx context.Context) bool
}

// HTTPProbe checks connectivity by issuing a GET against a well-known
// endpoint. Any HTTP response counts as online; only transport failures
// (DNS, dial, timeout) count as offline, since even an error status proves
// the network path works.
type HTTPProbe struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against the given URL
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		name: "http",
		url:  url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithClient replaces the probe's HTTP client, e.g. with a traced one
func (p *HTTPProbe) WithClient(client *http.Client) *HTTPProbe {
	p.client = client
	return p
}

// Name identifies the probe
func (p *HTTPProbe) Name() string {
	return p.name
}

// Online performs the connectivity check
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// StaticProbe reports a fixed, switchable state. Used in tests and in
// deployments that track connectivity through an external signal.
type StaticProbe struct {
	mu     sync.RWMutex
	online bool
}

// NewStaticProbe creates a probe with the given initial state
func NewStaticProbe(online bool) *StaticProbe {
	return &StaticProbe{online: online}
}

// Name identifies the probe
func (p *StaticProbe) Name() string {
	return "static"
}

// Online returns the configured state
func (p *StaticProbe) Online(ctx context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

// SetOnline switches the reported state
func (p *StaticProbe) SetOnline(online bool) {
	p.mu.Lock()
	p.online = online
	p.mu.Unlock()
}
