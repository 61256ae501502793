// Package metrics aggregates counts and timings across orchestrated
// operations.
//
// A Collector keeps running totals (operations, successes, failures by
// category, cache hits and misses, executor invocations) and a rolling
// average duration per operation kind. Snapshot returns a consistent deep
// copy. The same observations are mirrored into Prometheus collectors on the
// Collector's own registry, which the serve command exposes at /metrics.
//
// The collector is purely observational; nothing reads it to make decisions.
package metrics
