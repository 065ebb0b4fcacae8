// Package client implements the CLI subcommands that talk to a running
// insightd daemon over its HTTP ops API.
//
// The commands are registered under the binary's root command and pick up
// the daemon address from the KLD_HTTP environment variable:
//
//	insightd stream publish insight.results '{"postId":"p1","mediaId":"m1"}'
//	insightd stream search insight.aggregated --filter 'json.postId == "p1"'
//	insightd stream pending insight.results aggregator
//	insightd dlq list insight.results aggregator
//	insightd post status p1
//	insightd post trigger p1
//
// Publish attaches a generated correlationId header when the caller does
// not supply one, so every message can be traced through aggregation.
package client
