// Package httpserver exposes the operational HTTP surface of an insight
// instance: health, stream publish and CEL-filtered search, pending and
// dead-letter inspection, post aggregation status, and Prometheus metrics.
package httpserver
