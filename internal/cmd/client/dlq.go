package client

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newDLQCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect dead-letter streams",
	}
	cmd.AddCommand(newDLQListCommand(baseURL))
	return cmd
}

func newDLQListCommand(baseURL BaseURLFunc) *cobra.Command {
	var (
		after uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list <stream> <group>",
		Short: "List dead-lettered messages for a stream and group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("stream", args[0])
			q.Set("group", args[1])
			if after > 0 {
				q.Set("after", fmt.Sprintf("%d", after))
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			var resp struct {
				Items []streamItem `json:"items"`
			}
			if err := getJSON(cmd.Context(), baseURL()+"/v1/dlq?"+q.Encode(), &resp); err != nil {
				return err
			}
			items := make([]map[string]any, 0, len(resp.Items))
			for _, it := range resp.Items {
				items = append(items, decodedMessage(it.Seq, it.TsMs, it.Headers, it.Payload))
			}
			return printJSON(cmd, map[string]any{"items": items})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "only return entries after this sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to return")
	return cmd
}
