// Package prometheus exposes goMFA engine metrics through a
// client_golang Collector.
//
// [NewPrometheusExporter] wraps a [goMFA.Engine]. The exporter owns a private
// registry and serves it through [PrometheusExporter.Handler]. Counter
// names are prefixed gomfa_*_total; the single histogram is
// gomfa_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
