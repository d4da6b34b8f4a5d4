package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/matrixise/balance-poller/internal/poller"
)

// EndpointHealth reports the failover state of every RPC endpoint
type EndpointHealth interface {
	EndpointsHealth() map[string]bool
}

// Checker reports on RPC endpoint state and poll progress
type Checker struct {
	endpoints EndpointHealth
	interval  time.Duration
	clock     clockwork.Clock
	startTime time.Time

	mu       sync.RWMutex
	last     poller.Reading
	observed bool
}

// NewChecker creates a new health checker. interval is the expected spacing
// between polls. A nil clock uses the wall clock.
func NewChecker(endpoints EndpointHealth, interval time.Duration, clock clockwork.Clock) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{
		endpoints: endpoints,
		interval:  interval,
		clock:     clock,
		startTime: clock.Now(),
	}
}

// Observe implements poller.Observer
func (c *Checker) Observe(r poller.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = r
	c.observed = true
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Check performs all health checks and returns the aggregated status
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overallStatus := StatusOK

	rpcCheck := c.checkRPC()
	checks["rpc_endpoints"] = rpcCheck
	if rpcCheck.Status == StatusError {
		overallStatus = StatusError
	} else if rpcCheck.Status == StatusDegraded {
		overallStatus = StatusDegraded
	}

	pollerCheck := c.checkPoller()
	checks["poller"] = pollerCheck
	if pollerCheck.Status != StatusOK && overallStatus == StatusOK {
		overallStatus = StatusDegraded
	}

	now := c.clock.Now()
	return HealthResponse{
		Status:    overallStatus,
		Timestamp: now,
		Checks:    checks,
		Uptime:    now.Sub(c.startTime).Round(time.Second).String(),
	}
}

// checkRPC summarizes failover state without issuing any request
func (c *Checker) checkRPC() CheckDetail {
	healthStatus := c.endpoints.EndpointsHealth()
	healthyCount := 0
	totalCount := len(healthStatus)

	for _, healthy := range healthStatus {
		if healthy {
			healthyCount++
		}
	}

	switch {
	case totalCount == 0 || healthyCount == 0:
		return CheckDetail{
			Status:  StatusError,
			Message: "no healthy RPC endpoints available",
		}
	case healthyCount == totalCount:
		return CheckDetail{
			Status:  StatusOK,
			Message: "all RPC endpoints healthy",
		}
	default:
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d/%d RPC endpoints healthy", healthyCount, totalCount),
		}
	}
}

// checkPoller verifies polls succeed and run at the expected interval
func (c *Checker) checkPoller() CheckDetail {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.observed {
		return CheckDetail{
			Status:  StatusOK,
			Message: "no poll yet (startup)",
		}
	}

	if c.last.Outcome != poller.OutcomeSuccess {
		msg := "last poll " + c.last.Outcome.String()
		if c.last.Err != nil {
			msg += ": " + c.last.Err.Error()
		}
		return CheckDetail{
			Status:  StatusDegraded,
			Message: msg,
		}
	}

	sinceLast := c.clock.Since(c.last.Time)
	if c.interval > 0 && sinceLast > 2*c.interval {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no poll in %s (expected every %s)", sinceLast.Round(time.Second), c.interval),
		}
	}

	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last polled %s ago", sinceLast.Round(time.Second)),
	}
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
