package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Histogram is a fixed-bucket latency histogram safe for concurrent use.
// Bounds are bucket upper limits in microseconds, ascending; the last one
// should be math.MaxInt64 so every observation lands somewhere.
type Histogram struct {
	bounds []int64
	counts []atomic.Int64
	total  atomic.Int64
	sum    atomic.Int64 // microseconds
}

// NewHistogram creates a Histogram over the given bucket bounds (microseconds).
func NewHistogram(boundsMicros []int64) *Histogram {
	h := &Histogram{
		bounds: append([]int64(nil), boundsMicros...),
		counts: make([]atomic.Int64, len(boundsMicros)),
	}
	return h
}

// Observe records one duration.
func (h *Histogram) Observe(d time.Duration) {
	micros := d.Microseconds()
	i := sort.Search(len(h.bounds), func(i int) bool { return micros <= h.bounds[i] })
	if i == len(h.bounds) {
		i = len(h.bounds) - 1
	}
	h.counts[i].Add(1)
	h.sum.Add(micros)
	h.total.Add(1)
}

// Since records the time elapsed since start.
func (h *Histogram) Since(start time.Time) {
	h.Observe(time.Since(start))
}

// Snapshot is a point-in-time summary of a Histogram.
type Snapshot struct {
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Mean  time.Duration `json:"mean"`
	Total int64         `json:"total"`
}

// Snapshot summarises the histogram. Percentiles resolve to bucket upper bounds.
func (h *Histogram) Snapshot() Snapshot {
	total := h.total.Load()
	if total == 0 {
		return Snapshot{}
	}

	counts := make([]int64, len(h.counts))
	for i := range h.counts {
		counts[i] = h.counts[i].Load()
	}

	return Snapshot{
		P50:   h.percentile(counts, total, 50),
		P95:   h.percentile(counts, total, 95),
		P99:   h.percentile(counts, total, 99),
		Mean:  time.Duration(h.sum.Load()/total) * time.Microsecond,
		Total: total,
	}
}

func (h *Histogram) percentile(counts []int64, total int64, p int) time.Duration {
	target := int64(math.Ceil(float64(total) * float64(p) / 100.0))
	var cumulative int64
	for i, c := range counts {
		cumulative += c
		if cumulative < target {
			continue
		}
		bound := h.bounds[i]
		if bound == math.MaxInt64 {
			// Open-ended bucket: report the last finite bound.
			bound = 0
			if i > 0 {
				bound = h.bounds[i-1]
			}
		}
		return time.Duration(bound) * time.Microsecond
	}
	return 0
}

// Registry is a named set of histograms.
type Registry struct {
	mu    sync.RWMutex
	hists map[string]*Histogram
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hists: make(map[string]*Histogram)}
}

// Register returns the histogram called name, creating it with bounds on first use.
func (r *Registry) Register(name string, bounds []int64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.hists[name]; ok {
		return h
	}
	h := NewHistogram(bounds)
	r.hists[name] = h
	return h
}

// Snapshot returns every registered histogram's snapshot keyed by name.
func (r *Registry) Snapshot() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.hists))
	for name, h := range r.hists {
		out[name] = h.Snapshot()
	}
	return out
}

// Bucket sets, upper bounds in microseconds.

// BucketsStore suits local Pebble/Bleve operations.
var BucketsStore = []int64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 50000, math.MaxInt64}

// BucketsFetch suits the remote catalog download.
var BucketsFetch = []int64{10000, 50000, 100000, 250000, 500000, 1000000, 2500000, 5000000, 15000000, math.MaxInt64}
