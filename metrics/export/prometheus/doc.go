// Package prometheus writes profileauth metrics in the Prometheus text
// exposition format. Mount [PrometheusExporter.Handler] on a scrape path;
// nothing is registered globally.
package prometheus
