// Package otel mirrors engine metrics onto an OpenTelemetry Meter using
// observable instruments. Latency histograms become a bucket gauge keyed by
// an "le" attribute plus a count gauge, since the engine keeps fixed
// buckets rather than raw samples.
package otel
