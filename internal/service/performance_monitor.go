package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amm-analytics/internal/types"
)

// SlowEventThreshold is the apply latency above which an event counts as slow
const SlowEventThreshold = 250 * time.Millisecond

// PerformanceMonitor tracks event apply latency
type PerformanceMonitor struct {
	mu          sync.RWMutex
	samples     map[types.EventKind][]time.Duration
	counts      map[types.EventKind]int64
	slowEvents  int64
	totalEvents int64
	maxSamples  int
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		samples:    make(map[types.EventKind][]time.Duration),
		counts:     make(map[types.EventKind]int64),
		maxSamples: 1000, // per kind
	}
}

// RecordEvent records how long one event took to apply
func (pm *PerformanceMonitor) RecordEvent(kind types.EventKind, duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.totalEvents++
	pm.counts[kind]++

	samples := append(pm.samples[kind], duration)
	if len(samples) > pm.maxSamples {
		samples = samples[len(samples)-pm.maxSamples:]
	}
	pm.samples[kind] = samples

	if duration > SlowEventThreshold {
		pm.slowEvents++
	}
}

// GetStats returns current latency statistics
func (pm *PerformanceMonitor) GetStats() *PerformanceStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := &PerformanceStats{
		TotalEvents: pm.totalEvents,
		SlowEvents:  pm.slowEvents,
		ByKind:      make(map[types.EventKind]KindStats, len(pm.samples)),
	}

	for kind, samples := range pm.samples {
		if len(samples) == 0 {
			continue
		}
		sorted := make([]time.Duration, len(samples))
		copy(sorted, samples)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}

		ks := KindStats{
			Count: pm.counts[kind],
			AvgMs: float64(total.Microseconds()) / 1000 / float64(len(sorted)),
		}
		if i := int(float64(len(sorted)) * 0.95); i < len(sorted) {
			ks.P95Ms = float64(sorted[i].Microseconds()) / 1000
		}
		if i := int(float64(len(sorted)) * 0.99); i < len(sorted) {
			ks.P99Ms = float64(sorted[i].Microseconds()) / 1000
		}
		stats.ByKind[kind] = ks
	}

	return stats
}

// Reset resets all metrics
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples = make(map[types.EventKind][]time.Duration)
	pm.counts = make(map[types.EventKind]int64)
	pm.slowEvents = 0
	pm.totalEvents = 0
}

// CheckPerformance reports event kinds whose p95 latency exceeds the slow threshold
func (pm *PerformanceMonitor) CheckPerformance() *PerformanceCheck {
	stats := pm.GetStats()

	check := &PerformanceCheck{
		Passed: true,
		Issues: make([]string, 0),
	}

	limit := float64(SlowEventThreshold.Milliseconds())
	kinds := make([]string, 0, len(stats.ByKind))
	for kind := range stats.ByKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		ks := stats.ByKind[types.EventKind(kind)]
		if ks.P95Ms > limit {
			check.Passed = false
			check.Issues = append(check.Issues,
				fmt.Sprintf("P95 %s apply time (%.2fms) exceeds %.0fms", kind, ks.P95Ms, limit))
		}
	}

	return check
}

// KindStats is the latency summary of one event kind
type KindStats struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avgMs"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
}

// PerformanceStats contains latency statistics
type PerformanceStats struct {
	TotalEvents int64                         `json:"totalEvents"`
	SlowEvents  int64                         `json:"slowEvents"`
	ByKind      map[types.EventKind]KindStats `json:"byKind"`
}

// PerformanceCheck contains performance check results
type PerformanceCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}
