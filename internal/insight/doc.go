// Package insight defines the message shapes exchanged between the backend,
// the analysis producers, the aggregation engine and the search-sync worker,
// along with their validating decoders. Per-service result payloads are
// modeled as a tagged union keyed by the service field.
package insight
