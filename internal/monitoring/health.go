package monitoring

import (
	"context"
	"sync"
	"time"
)

// Health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc checks one dependency
type CheckFunc func(ctx context.Context) error

type component struct {
	check    CheckFunc
	critical bool
	timeout  time.Duration
}

// HealthStatus is the aggregated result of all checks
type HealthStatus struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Uptime     string                      `json:"uptime"`
	Version    string                      `json:"version"`
	Components map[string]*ComponentHealth `json:"components"`
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status   string        `json:"status"`
	Critical bool          `json:"critical"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// HealthChecker runs the registered dependency checks. A failing critical
// component makes the service unhealthy; any other failure degrades it.
type HealthChecker struct {
	startTime time.Time
	version   string

	mu         sync.RWMutex
	components map[string]component
}

// NewHealthChecker creates an empty checker
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		version:    version,
		components: make(map[string]component),
	}
}

// Register adds a named check
func (h *HealthChecker) Register(name string, critical bool, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	h.components[name] = component{check: check, critical: critical, timeout: timeout}
}

// Check runs every check concurrently
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	components := make(map[string]component, len(h.components))
	for name, c := range h.components {
		components[name] = c
	}
	h.mu.RUnlock()

	status := &HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Version:    h.version,
		Components: make(map[string]*ComponentHealth, len(components)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, c := range components {
		wg.Add(1)
		go func(name string, c component) {
			defer wg.Done()
			result := runCheck(ctx, c)

			mu.Lock()
			status.Components[name] = result
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	for _, result := range status.Components {
		if result.Status == StatusHealthy {
			continue
		}
		if result.Critical {
			status.Status = StatusUnhealthy
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

func runCheck(ctx context.Context, c component) *ComponentHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.check(checkCtx)
	result := &ComponentHealth{
		Status:   StatusHealthy,
		Critical: c.critical,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	return result
}
