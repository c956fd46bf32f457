// Package prometheus exposes goGuard engine counters as a
// client_golang [prometheus.Collector].
//
// The collector reads [goGuard.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so engine counters stay lock-free atomics and the
// registry never holds engine state. Counter names are goguard_*_total; the
// single histogram is goguard_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry. Callers choose the
//     registry, or use [Handler] for a private one.
//   - Mutate engine state.
package prometheus
