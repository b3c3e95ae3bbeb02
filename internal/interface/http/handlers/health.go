package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports service health for the /health endpoints.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc performs one dependency check and returns an error when
// the dependency is unusable.
type HealthCheckFunc func(ctx context.Context) error

// DetailedCheckFunc is a HealthCheckFunc that also reports figures about the
// dependency, such as connection pool statistics.
type DetailedCheckFunc func(ctx context.Context) (map[string]any, error)

// HealthStatus is the aggregated result of all checks.
type HealthStatus struct {
	// Healthy is false when a critical check failed.
	Healthy bool `json:"healthy"`

	// Ready mirrors Healthy. Admissions need the database, so a service
	// without it must not receive traffic.
	Ready bool `json:"ready"`

	// Degraded is true when only non-critical checks failed.
	Degraded bool `json:"degraded,omitempty"`

	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Healthy  bool           `json:"healthy"`
	Critical bool           `json:"critical"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

type registeredCheck struct {
	fn       DetailedCheckFunc
	critical bool
}

// CompositeHealthChecker runs registered checks in parallel, each under its
// own timeout.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]registeredCheck
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker returns a checker with a 3s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]registeredCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   3 * time.Second,
	}
}

// SetTimeout sets the per-check timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// AddCheck registers a check whose failure makes the service unhealthy.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, withoutDetails(check), true)
}

// AddDetailedCheck registers a critical check whose details are shown on
// /health.
func (c *CompositeHealthChecker) AddDetailedCheck(name string, check DetailedCheckFunc) {
	c.add(name, check, true)
}

// AddNonCriticalCheck registers a check whose failure only degrades the
// service, such as the read cache.
func (c *CompositeHealthChecker) AddNonCriticalCheck(name string, check HealthCheckFunc) {
	c.add(name, withoutDetails(check), false)
}

func withoutDetails(check HealthCheckFunc) DetailedCheckFunc {
	return func(ctx context.Context) (map[string]any, error) {
		return nil, check(ctx)
	}
}

func (c *CompositeHealthChecker) add(name string, check DetailedCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: check, critical: critical}
}

// RemoveCheck unregisters a check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs every registered check and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "no checks registered"
		return status
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.run(ctx, check)

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failedCritical, failedOptional []string
	for name, result := range status.Checks {
		switch {
		case result.Healthy:
		case result.Critical:
			failedCritical = append(failedCritical, name)
		default:
			failedOptional = append(failedOptional, name)
		}
	}
	sort.Strings(failedCritical)
	sort.Strings(failedOptional)

	switch {
	case len(failedCritical) > 0:
		status.Healthy = false
		status.Ready = false
		status.Message = "failing: " + strings.Join(append(failedCritical, failedOptional...), ", ")
	case len(failedOptional) > 0:
		status.Degraded = true
		status.Message = "degraded: " + strings.Join(failedOptional, ", ")
	default:
		status.Message = "all checks passed"
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, check registeredCheck) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	details, err := check.fn(ctx)

	result := CheckResult{
		Healthy:  err == nil,
		Critical: check.critical,
		Duration: time.Since(start).Round(time.Millisecond).String(),
		Message:  "ok",
		Details:  details,
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is anything that can be pinged: the PostgreSQL pool, the Redis
// client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck adapts a Pinger to a HealthCheckFunc.
func NewPingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}
