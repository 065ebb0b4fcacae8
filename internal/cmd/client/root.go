package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc resolves the daemon's HTTP base URL at command run time,
// after flags and environment have been parsed.
type BaseURLFunc func() string

// NewRoot builds the client command tree. Every subcommand talks to the
// daemon's ops API over HTTP.
func NewRoot(baseURL BaseURLFunc) []*cobra.Command {
	return []*cobra.Command{
		newStreamCommand(baseURL),
		newDLQCommand(baseURL),
		newPostCommand(baseURL),
	}
}
