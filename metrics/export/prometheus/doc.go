// Package prometheus exports goGuard engine metrics as a prometheus.Collector.
//
// Register [NewCollector] with any registry, or mount [Handler] for a
// self-contained /metrics endpoint. Counters are named goguard_*_total and
// the single histogram is goguard_check_latency_seconds.
package prometheus
