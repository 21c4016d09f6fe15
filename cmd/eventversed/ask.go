package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/sdk/go/eventverse"
)

func newAskCmd() *cobra.Command {
	var (
		baseURL string
		history int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send a message to a running agent over REST",
		Example: `  eventversed ask "What events are coming up?"
  eventversed ask --url http://127.0.0.1:8000 "pay for event ev123"
  eventversed ask --history 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = os.Getenv("EVENTVERSE_URL")
			}
			if baseURL == "" {
				baseURL = "http://127.0.0.1:8001"
			}
			client, err := eventverse.NewClient(baseURL, nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				resp, err := client.Chat(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if resp.Status != "success" {
					fmt.Fprintf(out, "[%s] ", resp.Status)
				}
				fmt.Fprintln(out, resp.Message)
			}

			if history > 0 {
				exchanges, err := client.Exchanges(ctx, history)
				if err != nil {
					return err
				}
				for _, ex := range exchanges {
					fmt.Fprintf(out, "%s  %-8s %-7s %q -> %q\n",
						time.Unix(ex.CreatedAt, 0).Format(time.RFC3339), ex.Outcome, ex.Channel, ex.Query, ex.Answer)
				}
			}
			if len(args) == 0 && history <= 0 {
				return cmd.Help()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "agent REST endpoint, defaults to $EVENTVERSE_URL or http://127.0.0.1:8001")
	cmd.Flags().IntVar(&history, "history", 0, "also print the N most recent exchanges")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")
	return cmd
}
