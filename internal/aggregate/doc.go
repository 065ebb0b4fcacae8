// Package aggregate implements the post aggregation engine: it correlates
// per-media analysis events by post in a persistent accumulator, waits a
// bounded window for completeness, computes a deterministic aggregate and
// publishes it exactly once per post per cycle.
package aggregate
