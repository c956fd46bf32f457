// Package otel binds goGuard engine counters to OpenTelemetry metrics.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per latency bucket, all fed by a single callback
// that reads [goGuard.Engine.MetricsSnapshot].
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
