// Package observability also tracks per-operation health.
//
// The tracker keeps a sliding window of latency and success
// observations per operation and grades them against a target. The
// health tool reads these statuses to report whether the server is
// keeping up with Canvas.
package observability

import (
	"sort"
	"sync"
	"time"
)

// maxObservationsPerOp bounds the per-operation window so a chatty
// client cannot grow memory without limit.
const maxObservationsPerOp = 2048

// OpTarget defines acceptable behavior for one operation.
type OpTarget struct {
	LatencyP99  time.Duration `json:"latency_p99"`
	SuccessRate float64       `json:"success_rate"`
	Window      time.Duration `json:"window"`
}

// DefaultTarget is applied to operations without an explicit target.
func DefaultTarget() OpTarget {
	return OpTarget{
		LatencyP99:  2 * time.Second,
		SuccessRate: 0.95,
		Window:      time.Hour,
	}
}

// Observation is one recorded operation outcome.
type Observation struct {
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// OpStatus reports the current health of one operation.
type OpStatus struct {
	Operation       string  `json:"operation"`
	P99Ms           float64 `json:"p99_ms"`
	SuccessRate     float64 `json:"success_rate"`
	Healthy         bool    `json:"healthy"`
	BurnRate        float64 `json:"burn_rate"`
	ErrorBudgetLeft float64 `json:"error_budget_left"`
	Observations    int     `json:"observations"`
}

// HealthTracker monitors operations against their targets.
type HealthTracker struct {
	mu           sync.Mutex
	defaultTgt   OpTarget
	targets      map[string]OpTarget
	observations map[string][]Observation
	clock        func() time.Time
}

// NewHealthTracker creates a tracker with the default target.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		defaultTgt:   DefaultTarget(),
		targets:      make(map[string]OpTarget),
		observations: make(map[string][]Observation),
		clock:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *HealthTracker) WithClock(clock func() time.Time) *HealthTracker {
	t.clock = clock
	return t
}

// SetTarget overrides the target for one operation.
func (t *HealthTracker) SetTarget(operation string, target OpTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if target.Window <= 0 {
		target.Window = t.defaultTgt.Window
	}
	t.targets[operation] = target
}

// Record adds one observation for an operation.
func (t *HealthTracker) Record(operation string, latency time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obs := append(t.observations[operation], Observation{
		Latency:   latency,
		Success:   success,
		Timestamp: t.clock(),
	})
	if len(obs) > maxObservationsPerOp {
		obs = append(obs[:0], obs[len(obs)-maxObservationsPerOp:]...)
	}
	t.observations[operation] = obs
}

// Status computes the current health of one operation. Operations with
// no observations inside the window report healthy with a full error
// budget.
func (t *HealthTracker) Status(operation string) OpStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(operation)
}

// All returns the status of every tracked operation, sorted by name.
func (t *HealthTracker) All() []OpStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.observations))
	for op := range t.observations {
		names = append(names, op)
	}
	sort.Strings(names)

	out := make([]OpStatus, 0, len(names))
	for _, op := range names {
		out = append(out, t.statusLocked(op))
	}
	return out
}

func (t *HealthTracker) statusLocked(operation string) OpStatus {
	target, ok := t.targets[operation]
	if !ok {
		target = t.defaultTgt
	}

	windowStart := t.clock().Add(-target.Window)
	var windowed []Observation
	for _, obs := range t.observations[operation] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return OpStatus{
			Operation:       operation,
			Healthy:         true,
			ErrorBudgetLeft: 100.0,
		}
	}

	successCount := 0
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		if obs.Success {
			successCount++
		}
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	successRate := float64(successCount) / float64(len(windowed))

	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	latencyOK := p99 <= float64(target.LatencyP99.Milliseconds())
	successOK := successRate >= target.SuccessRate

	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate, budgetLeft float64
	switch {
	case errorBudget > 0:
		burnRate = errorRate / errorBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
		if budgetLeft < 0 {
			budgetLeft = 0
		}
	case errorRate > 0:
		burnRate = 1.0
		budgetLeft = 0
	default:
		budgetLeft = 100.0
	}

	return OpStatus{
		Operation:       operation,
		P99Ms:           p99,
		SuccessRate:     successRate,
		Healthy:         latencyOK && successOK,
		BurnRate:        burnRate,
		ErrorBudgetLeft: budgetLeft,
		Observations:    len(windowed),
	}
}
