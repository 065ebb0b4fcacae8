// Package pebblestore wraps an embedded Pebble database behind a small
// surface: point ops, batches, snapshots, prefix iterators, and a
// configurable fsync policy. Stream logs, consumer-group state, and post
// accumulators all share one DB through this package, so keyspaces are
// prefix-partitioned by the callers (see internal/stream and
// internal/aggregate for the layouts).
//
// Durability is chosen at Open time via Options.Fsync: FsyncModeAlways
// syncs the WAL per commit, FsyncModeInterval lets Pebble coalesce syncs
// on a timer, FsyncModeNever leaves syncing to the OS (tests use this).
// Get returns a private copy of the value, safe to hold after the call.
package pebblestore
