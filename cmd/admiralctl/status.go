package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Session.GetStatus(ctx, &rpc.GetStatusRequest{})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Session:   %s\n", resp.Session)
			fmt.Printf("Status:    %s\n", resp.Status)
			fmt.Printf("Member:    %s (%s)\n", resp.MemberName, resp.MemberID)
			fmt.Printf("Polling:   %v (failures: %d)\n", resp.Polling, resp.PollFailures)
			fmt.Printf("Channel:   %s\n", valueOr(resp.ActiveChannelID, "-"))
			fmt.Printf("Unread:    %d\n", resp.UnreadTotal)
			fmt.Printf("Cached:    %d channels, %d messages\n", resp.ChannelCount, resp.MessageCount)
			fmt.Printf("Pending:   %d operations\n", resp.PendingOps)
			fmt.Printf("Cursor:    %s\n", valueOr(resp.PollCursor, "-"))
			fmt.Printf("Uptime:    %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
			return nil
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll the server for updates now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Session.PollNow(ctx, &rpc.PollNowRequest{})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			switch {
			case !resp.Polled:
				fmt.Println("A poll is already in progress.")
			case resp.Error != "":
				fmt.Printf("Poll failed: %s\n", resp.Error)
			default:
				fmt.Println("Poll completed.")
			}
			return nil
		})
	},
}

var pollingCmd = &cobra.Command{
	Use:       "polling <on|off>",
	Short:     "Enable or disable background polling",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Session.SetPolling(ctx, &rpc.SetPollingRequest{Enabled: enabled})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Polling: %v (status %s)\n", resp.Polling, resp.Status)
			return nil
		})
	},
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	rootCmd.AddCommand(statusCmd, pollCmd, pollingCmd)
}
