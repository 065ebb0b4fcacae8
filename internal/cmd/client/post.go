package client

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newPostCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Inspect and control per-post aggregation",
	}
	cmd.AddCommand(
		newPostStatusCommand(baseURL),
		newPostTriggerCommand(baseURL),
	)
	return cmd
}

func newPostStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <postId>",
		Short: "Show aggregation state for a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("postId", args[0])
			var resp map[string]any
			if err := getJSON(cmd.Context(), baseURL()+"/v1/posts/status?"+q.Encode(), &resp); err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	return cmd
}

func newPostTriggerCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <postId>",
		Short: "Re-evaluate a post's aggregation immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"postId": args[0]}
			if err := postJSON(cmd.Context(), baseURL()+"/v1/aggregate/trigger", body, nil); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"status": "triggered"})
		},
	}
	return cmd
}
