package goGuard

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLogin)

	if got := m.Value(MetricLogin); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogin)
	nilMetrics.Observe(MetricCheckLatency, time.Millisecond)
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricCheckAllowed)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricCheckAllowed); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		m.Observe(MetricCheckLatency, d)
	}
	// Counters have no histogram.
	m.Observe(MetricLogin, time.Second)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricCheckLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}
	if got, want := snap.HistogramSums[MetricCheckLatency], 1640*time.Millisecond; got != want {
		t.Fatalf("expected latency sum %s, got %s", want, got)
	}
	if _, ok := snap.Histograms[MetricLogin]; ok {
		t.Fatal("counter metric must not expose a histogram")
	}
}

func TestMetricsSnapshotOmitsLatencyWhenDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)
	m.Observe(MetricCheckLatency, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("expected logout counter 1, got %d", snap.Counters[MetricLogout])
	}
	if len(snap.Histograms) != 0 {
		t.Fatalf("expected no histograms, got %v", snap.Histograms)
	}
	if _, ok := snap.Counters[MetricCheckLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
}
