package metrics

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestHistogram_Empty(t *testing.T) {
	snap := NewHistogram(BucketsStore).Snapshot()
	if snap != (Snapshot{}) {
		t.Errorf("empty histogram snapshot = %+v; want zero value", snap)
	}
}

func TestHistogram_Percentiles(t *testing.T) {
	h := NewHistogram([]int64{100, 200, 500, math.MaxInt64})

	// 50 in ≤100, 30 in ≤200, 15 in ≤500, 5 overflow.
	observe := func(n int, d time.Duration) {
		for i := 0; i < n; i++ {
			h.Observe(d)
		}
	}
	observe(50, 50*time.Microsecond)
	observe(30, 150*time.Microsecond)
	observe(15, 300*time.Microsecond)
	observe(5, 600*time.Microsecond)

	snap := h.Snapshot()
	if snap.Total != 100 {
		t.Fatalf("Total = %d; want 100", snap.Total)
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"p50", snap.P50, 100 * time.Microsecond},
		{"p95", snap.P95, 500 * time.Microsecond},
		{"p99 overflow", snap.P99, 500 * time.Microsecond},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s = %v; want %v", tc.name, tc.got, tc.want)
		}
	}

	// (50*50 + 30*150 + 15*300 + 5*600) / 100 = 145µs
	if snap.Mean != 145*time.Microsecond {
		t.Errorf("Mean = %v; want 145µs", snap.Mean)
	}
}

func TestHistogram_ConcurrentObserve(t *testing.T) {
	h := NewHistogram(BucketsFetch)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Observe(time.Duration(i) * time.Millisecond)
			}
		}()
	}
	wg.Wait()
	if got := h.Snapshot().Total; got != 8000 {
		t.Errorf("Total = %d; want 8000", got)
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry()
	fetch := reg.Register("catalog_fetch", BucketsFetch)
	insert := reg.Register("store_insert", BucketsStore)

	fetch.Observe(80 * time.Millisecond)
	insert.Since(time.Now())

	if again := reg.Register("catalog_fetch", BucketsStore); again != fetch {
		t.Error("Register with an existing name should return the existing histogram")
	}

	snap := reg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries; want 2", len(snap))
	}
	if snap["catalog_fetch"].Total != 1 || snap["store_insert"].Total != 1 {
		t.Errorf("unexpected totals: %+v", snap)
	}
	if snap["catalog_fetch"].P50 != 100*time.Millisecond {
		t.Errorf("catalog_fetch P50 = %v; want 100ms", snap["catalog_fetch"].P50)
	}
}
