package telemetry

import (
	"sort"
	"sync"
	"time"
)

// LatencySnapshot summarizes recent search latencies for `loreleaf
// status`.
type LatencySnapshot struct {
	Count int
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// latencyWindow is a fixed-size ring of recent latencies. Percentiles
// are computed on demand; recording is O(1).
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 1024
	}
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = d
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	n := w.next
	if w.filled {
		n = len(w.samples)
	}
	sorted := make([]time.Duration, n)
	copy(sorted, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencySnapshot{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return LatencySnapshot{
		Count: n,
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
	}
}

// percentile picks from a sorted slice by nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
