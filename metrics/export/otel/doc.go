// Package otel reports goMFA engine metrics through an OpenTelemetry meter.
//
// Counters become Int64ObservableCounter instruments. Each latency histogram
// becomes a family of Int64ObservableGauge instruments, one per bucket bound
// ("_bucket_le_<bound>") and one for the sample total ("_count"). All of them
// are filled from one snapshot per collection.
package otel
