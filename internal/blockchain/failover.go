package blockchain

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const unhealthyDuration = 5 * time.Minute // Cooldown before an endpoint is preferred again

type endpointStatus struct {
	url           string
	healthy       bool
	lastError     error
	lastErrorTime time.Time
}

// FailoverClient tracks the health of multiple RPC endpoints and picks the
// one the next request should use
type FailoverClient struct {
	endpoints    []*endpointStatus
	currentIndex int
	clock        clockwork.Clock
	mu           sync.Mutex
}

// NewFailoverClient creates a new failover client. A nil clock uses wall time.
func NewFailoverClient(urls []string, clock clockwork.Clock) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	fc := &FailoverClient{
		endpoints: make([]*endpointStatus, 0, len(urls)),
		clock:     clock,
	}
	for _, url := range urls {
		if url == "" {
			return nil, fmt.Errorf("empty RPC URL")
		}
		fc.endpoints = append(fc.endpoints, &endpointStatus{url: url, healthy: true})
	}

	return fc, nil
}

// GetEndpoint returns the endpoint to use for the next request.
//
// Healthy endpoints are tried round-robin from the current one. An unhealthy
// endpoint becomes eligible again once its cooldown expires. When every
// endpoint is unhealthy the least recently failed one is returned, so a
// request is always attempted.
func (fc *FailoverClient) GetEndpoint() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	now := fc.clock.Now()
	for i := range len(fc.endpoints) {
		idx := (fc.currentIndex + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]

		if !ep.healthy && now.Sub(ep.lastErrorTime) >= unhealthyDuration {
			slog.Info("RPC endpoint cooldown expired, retrying", "rpc_url", ep.url)
			ep.healthy = true
		}
		if ep.healthy {
			fc.currentIndex = idx
			return ep.url
		}
	}

	oldest := 0
	for i, ep := range fc.endpoints {
		if ep.lastErrorTime.Before(fc.endpoints[oldest].lastErrorTime) {
			oldest = i
		}
	}
	fc.currentIndex = oldest
	return fc.endpoints[oldest].url
}

// MarkUnhealthy records a failed request against an endpoint
func (fc *FailoverClient) MarkUnhealthy(url string, err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}
		wasHealthy := ep.healthy
		ep.healthy = false
		ep.lastError = err
		ep.lastErrorTime = fc.clock.Now()

		if wasHealthy {
			slog.Warn("Marked RPC endpoint as unhealthy",
				"rpc_url", url,
				"error", err,
				"retry_after", unhealthyDuration)
		}
		return
	}
}

// MarkHealthy records a successful request against an endpoint
func (fc *FailoverClient) MarkHealthy(url string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}
		if !ep.healthy {
			slog.Info("RPC endpoint recovered", "rpc_url", url)
		}
		ep.healthy = true
		ep.lastError = nil
		return
	}
}

// EndpointsHealth returns a snapshot of endpoint health keyed by URL
func (fc *FailoverClient) EndpointsHealth() map[string]bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	out := make(map[string]bool, len(fc.endpoints))
	for _, ep := range fc.endpoints {
		out[ep.url] = ep.healthy
	}
	return out
}

// URLs returns the configured endpoints in priority order
func (fc *FailoverClient) URLs() []string {
	urls := make([]string, len(fc.endpoints))
	for i, ep := range fc.endpoints {
		urls[i] = ep.url
	}
	return urls
}
