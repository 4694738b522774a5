// Package prometheus exposes engine counters and latency histograms through a
// client_golang [prometheus.Collector]. Series are named eduauth_*_total and
// eduauth_*_latency_seconds.
//
// Callers either register the [Collector] on their own registry or mount
// [Collector.Handler], which uses a private registry.
package prometheus
