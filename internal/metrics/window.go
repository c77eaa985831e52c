package metrics

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	timestamp time.Time
	value     float64
}

// Snapshot is a point-in-time aggregate of the samples in a Window.
type Snapshot struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Window tracks recent samples, bounded by count and optionally by age.
type Window struct {
	mu      sync.Mutex
	samples []sample
	size    int
	maxAge  time.Duration
	now     func() time.Time
}

// NewWindow keeps at most size samples. A maxAge of zero keeps samples
// regardless of age.
func NewWindow(size int, maxAge time.Duration) *Window {
	if size <= 0 {
		size = 1000
	}
	return &Window{
		samples: make([]sample, 0, min(size, 256)),
		size:    size,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (w *Window) Record(v float64) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, sample{timestamp: now, value: v})
}

func (w *Window) Snapshot() Snapshot {
	if w == nil {
		return Snapshot{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(w.now())
	if len(w.samples) == 0 {
		return Snapshot{}
	}

	values := make([]float64, 0, len(w.samples))
	var sum float64
	for _, s := range w.samples {
		values = append(values, s.value)
		sum += s.value
	}
	sort.Float64s(values)

	return Snapshot{
		Count: len(values),
		Min:   values[0],
		Max:   values[len(values)-1],
		Avg:   sum / float64(len(values)),
		P50:   percentile(values, 50),
		P95:   percentile(values, 95),
		P99:   percentile(values, 99),
	}
}

func (w *Window) pruneLocked(now time.Time) {
	if w.maxAge <= 0 {
		return
	}
	cutoff := now.Add(-w.maxAge)
	writeIdx := 0
	for _, s := range w.samples {
		if !s.timestamp.Before(cutoff) {
			w.samples[writeIdx] = s
			writeIdx++
		}
	}
	w.samples = w.samples[:writeIdx]
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}

	index := (float64(len(sorted)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
