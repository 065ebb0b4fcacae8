// Package search implements the synchronization worker that propagates
// completed state into the search index: it decodes sync tasks, converts
// wire-encoded vectors to native arrays, and performs idempotent upserts
// and deletes with bounded retry and dead-lettering.
package search
