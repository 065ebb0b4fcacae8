// Package run exposes a shared Run entrypoint used by the CLI to start the
// aggregation engine, the search-sync worker and the ops HTTP server,
// handling lifecycle and shutdown.
//
// Example:
//
//	opts := run.Options{DataDir: "./data", HTTPAddr: ":8080", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = run.Run(ctx, opts)
package run
