// Package otel exports goGuard engine counters through OpenTelemetry
// observable instruments.
//
// The caller owns the MeterProvider and passes a Meter to [NewExporter].
// The latency histogram is flattened into one gauge per cumulative bucket.
package otel
