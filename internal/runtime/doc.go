// Package runtime wires storage, config, the stream transport and the post
// accumulator store into a single-node Kaleidoscope insight instance. It
// exposes Open/Close, basic health checks, and accessors used by the
// workers and the ops HTTP server.
package runtime
