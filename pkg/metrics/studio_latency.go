// Package metrics tracks provider call latencies with percentile summaries.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker
// =============================================================================

// LatencyTracker keeps a sliding window of samples for one operation.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
	failures   int64
}

func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 500
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record adds one call. Failed calls count toward the latency window too.
func (lt *LatencyTracker) Record(d time.Duration, failed bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// drop the oldest tenth at once to avoid shifting on every call
		drop := lt.maxSamples / 10
		if drop < 1 {
			drop = 1
		}
		lt.samples = append(lt.samples[:0], lt.samples[drop:]...)
	}
	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
	if failed {
		lt.failures++
	}
}

func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{Failures: lt.failures}
	}
	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}
	return LatencyStats{
		Count:    int64(n),
		Failures: lt.failures,
		Min:      micros(lt.samples[0]),
		Max:      micros(lt.samples[n-1]),
		Avg:      micros(sum / int64(n)),
		P50:      micros(lt.percentile(0.50)),
		P95:      micros(lt.percentile(0.95)),
		P99:      micros(lt.percentile(0.99)),
	}
}

// percentile expects the lock held and samples sorted.
func (lt *LatencyTracker) percentile(p float64) int64 {
	idx := int(float64(len(lt.samples)-1) * p)
	return lt.samples[idx]
}

func micros(v int64) time.Duration { return time.Duration(v) * time.Microsecond }

type LatencyStats struct {
	Count    int64
	Failures int64
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
}

// ToMap renders the stats in milliseconds for JSON responses.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":    s.Count,
		"failures": s.Failures,
		"min_ms":   ms(s.Min),
		"max_ms":   ms(s.Max),
		"avg_ms":   ms(s.Avg),
		"p50_ms":   ms(s.P50),
		"p95_ms":   ms(s.P95),
		"p99_ms":   ms(s.P99),
	}
}

// =============================================================================
// Registry
// =============================================================================

// LatencyRegistry holds one tracker per operation name ("analyze", "generate", ...).
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

func (r *LatencyRegistry) Record(op string, d time.Duration, failed bool) {
	r.mu.RLock()
	tracker, ok := r.trackers[op]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[op]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[op] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(d, failed)
}

// Observe times fn and records it under op.
func (r *LatencyRegistry) Observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.Record(op, time.Since(start), err != nil)
	return err
}

func (r *LatencyRegistry) Stats(op string) LatencyStats {
	r.mu.RLock()
	tracker, ok := r.trackers[op]
	r.mu.RUnlock()
	if !ok {
		return LatencyStats{}
	}
	return tracker.Stats()
}

// Snapshot returns every operation's stats as JSON-ready maps.
func (r *LatencyRegistry) Snapshot() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]map[string]any, len(r.trackers))
	for op, tracker := range r.trackers {
		out[op] = tracker.Stats().ToMap()
	}
	return out
}
