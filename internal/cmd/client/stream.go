package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type streamItem struct {
	Seq     uint64            `json:"seq"`
	TsMs    int64             `json:"tsMs"`
	Headers map[string]string `json:"headers"`
	Payload json.RawMessage   `json:"payload"`
}

func newStreamCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Publish to and inspect streams",
	}
	cmd.AddCommand(
		newStreamPublishCommand(baseURL),
		newStreamSearchCommand(baseURL),
		newStreamPendingCommand(baseURL),
	)
	return cmd
}

func newStreamPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	var headers []string
	cmd := &cobra.Command{
		Use:   "publish <stream> <payload>",
		Short: "Append a JSON payload to a stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage(args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("payload must be valid JSON")
			}
			hdrs := make(map[string]string, len(headers)+1)
			for _, h := range headers {
				k, v, ok := strings.Cut(h, "=")
				if !ok {
					return fmt.Errorf("invalid header %q, want key=value", h)
				}
				hdrs[k] = v
			}
			if _, ok := hdrs["correlationId"]; !ok {
				hdrs["correlationId"] = uuid.NewString()
			}
			body := map[string]any{"stream": args[0], "payload": payload, "headers": hdrs}
			var out map[string]uint64
			if err := postJSON(cmd.Context(), baseURL()+"/v1/streams/publish", body, &out); err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"seq": out["seq"], "correlationId": hdrs["correlationId"]})
		},
	}
	cmd.Flags().StringArrayVar(&headers, "header", nil, "message header as key=value, repeatable")
	return cmd
}

func newStreamSearchCommand(baseURL BaseURLFunc) *cobra.Command {
	var (
		filter string
		after  uint64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <stream>",
		Short: "Read stream entries, optionally filtered by a CEL expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("stream", args[0])
			if filter != "" {
				q.Set("filter", filter)
			}
			if after > 0 {
				q.Set("after", fmt.Sprintf("%d", after))
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			var resp struct {
				Items  []streamItem `json:"items"`
				Cursor uint64       `json:"cursor"`
			}
			if err := getJSON(cmd.Context(), baseURL()+"/v1/streams/search?"+q.Encode(), &resp); err != nil {
				return err
			}
			items := make([]map[string]any, 0, len(resp.Items))
			for _, it := range resp.Items {
				items = append(items, decodedMessage(it.Seq, it.TsMs, it.Headers, it.Payload))
			}
			return printJSON(cmd, map[string]any{"items": items, "cursor": resp.Cursor})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter expression")
	cmd.Flags().Uint64Var(&after, "after", 0, "only return entries after this sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum entries to return")
	return cmd
}

func newStreamPendingCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending <stream> <group>",
		Short: "List unacknowledged deliveries for a consumer group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("stream", args[0])
			q.Set("group", args[1])
			var resp map[string]any
			if err := getJSON(cmd.Context(), baseURL()+"/v1/streams/pending?"+q.Encode(), &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	return cmd
}
