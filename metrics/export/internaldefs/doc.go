// Package internaldefs holds the metric families and latency buckets both
// exporters render, so their names cannot drift apart.
package internaldefs
