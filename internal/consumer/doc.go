// Package consumer provides the worker loop that drives message handlers
// over a stream consumer group with at-least-once delivery: acknowledged
// messages are removed, retried messages are redelivered up to a delivery
// cap, and exhausted or fatal messages are dead-lettered.
package consumer
