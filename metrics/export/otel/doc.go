// Package otel observes profileauth metrics through an OpenTelemetry Meter.
//
// Three instruments are registered: a counter for every engine outcome
// (attribute "event"), a gauge of cumulative Authenticate latency buckets
// (attribute "le"), and a counter of dropped audit events. The caller owns
// the MeterProvider and its readers.
package otel
