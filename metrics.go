package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	MetricLogin MetricID = iota
	MetricLogout
	MetricSessionWriteFailed
	MetricSessionDangling
	MetricSessionExpired
	MetricSessionLoadFailed
	MetricCheckAllowed
	MetricCheckDenied
	MetricBanCheck
	MetricBanCacheHit
	MetricBanEnforced
	MetricReauthSuccess
	MetricReauthFailure
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricOAuthFound
	MetricOAuthLinked
	MetricOAuthCreated
	MetricOAuthFailed
	MetricCSRFRejected
	MetricHookFailed
	// MetricCheckLatency is the only histogram: requirement evaluation time.
	MetricCheckLatency
	metricIDCount
)

// checkLatencyBounds are the inclusive upper bounds of every histogram bucket
// but the last, which is unbounded.
var checkLatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(checkLatencyBounds) + 1

// counter sits alone on its cache line so hot counters updated from many
// cores do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNS   atomic.Int64
}

func (h *latencyHistogram) observe(d time.Duration) {
	i := 0
	for i < len(checkLatencyBounds) && d > checkLatencyBounds[i] {
		i++
	}
	h.buckets[i].Add(1)
	h.sumNS.Add(int64(d))
}

// Metrics is a fixed set of lock-free counters plus the check latency
// histogram. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counter
	latency       latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter. Histogram buckets
// are per-bucket counts, not cumulative; HistogramSums holds the total
// observed duration per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id == MetricCheckLatency {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d. Only MetricCheckLatency is a histogram; other IDs are
// ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricCheckLatency {
		return
	}
	m.latency.observe(d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricCheckLatency {
			s.Counters[id] = m.counters[id].Load()
		}
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.latency.buckets[i].Load()
		}
		s.Histograms[MetricCheckLatency] = buckets
		s.HistogramSums[MetricCheckLatency] = time.Duration(m.latency.sumNS.Load())
	}
	return s
}
