// Package stream implements durable append-only streams with consumer-group
// delivery on top of Pebble.
//
// A stream is an ordered log of records. Consumer groups read through a
// durable delivery cursor; every delivery is tracked in a per-group pending
// list until it is acknowledged or dead-lettered. Deliveries held past the
// claim timeout become eligible for reclaim by any consumer in the group,
// which gives at-least-once semantics across consumer crashes.
package stream
