package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/spf13/cobra"
)

var (
	channelsRefresh bool

	messagesLimit  int
	messagesFetch  bool
	messagesBefore int64

	sendChannel string
	sendReplyTo string

	membersRefresh bool

	searchChannel string
	searchLimit   int
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List cached channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.ListChannels(ctx, &rpc.ListChannelsRequest{Refresh: channelsRefresh})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tID\tNAME\tTYPE\tUNREAD\tLAST\tPREVIEW")
			for _, ch := range resp.Channels {
				marker := ""
				if ch.ID == resp.ActiveChannelID {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					marker, ch.ID, ch.Name, ch.Type, ch.UnreadCount, formatTime(ch.LastMessageAt), ch.LastMessagePreview)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d unread\n", resp.UnreadTotal)
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages [channel-id]",
	Short: "Show messages of a channel (default: active channel)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &rpc.ListMessagesRequest{Limit: messagesLimit, Fetch: messagesFetch, Before: messagesBefore}
		if len(args) == 1 {
			req.ChannelID = args[0]
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.ListMessages(ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			if resp.Error != "" {
				fmt.Fprintf(os.Stderr, "warning: could not refresh %s: %s\n", resp.ChannelID, resp.Error)
			}
			printMessages(os.Stdout, resp.Messages)
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a message (default: active channel)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &rpc.SendRequest{
			ChannelID: sendChannel,
			Content:   strings.Join(args, " "),
			ReplyTo:   sendReplyTo,
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.Send(ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Queued %s in %s\n", resp.Message.ID, resp.Message.ChannelID)
			return nil
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <message-id>",
	Short: "Retry a failed message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.Retry(ctx, &rpc.RetryRequest{MessageID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Retrying as %s\n", resp.Message.ID)
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <channel-id>",
	Short: "Make a channel active, fetch its history and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.SetActiveChannel(ctx, &rpc.SetActiveChannelRequest{ChannelID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			if resp.Error != "" {
				fmt.Fprintf(os.Stderr, "warning: showing cached history: %s\n", resp.Error)
			}
			printMessages(os.Stdout, resp.Messages)
			return nil
		})
	},
}

var olderCmd = &cobra.Command{
	Use:   "older",
	Short: "Load older history of the active channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.LoadOlder(ctx, &rpc.LoadOlderRequest{})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			printMessages(os.Stdout, resp.Messages)
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read [channel-id]",
	Short: "Mark a channel read (default: active channel)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &rpc.MarkAsReadRequest{}
		if len(args) == 1 {
			req.ChannelID = args[0]
		}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			if _, err := c.Chat.MarkAsRead(ctx, req); err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Println("Marked read.")
			}
			return nil
		})
	},
}

var dmCmd = &cobra.Command{
	Use:   "dm <member-id>",
	Short: "Open the direct channel with a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.StartDirect(ctx, &rpc.StartDirectRequest{MemberID: args[0]})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Direct channel %s (%s) is now active\n", resp.Channel.ID, resp.Channel.Name)
			return nil
		})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List workspace members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.ListMembers(ctx, &rpc.ListMembersRequest{Refresh: membersRefresh})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL")
			for _, m := range resp.Members {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Email)
			}
			return w.Flush()
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Full-text search over cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &rpc.SearchRequest{Query: strings.Join(args, " "), ChannelID: searchChannel, Limit: searchLimit}
		return withClient(func(ctx context.Context, c *rpc.Client) error {
			resp, err := c.Chat.Search(ctx, req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			for _, r := range resp.Results {
				fmt.Printf("%s  %-12s %s\n", formatTime(r.Message.CreatedAt), r.Message.ChannelID, r.Snippet)
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream change events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := dial()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		stream, err := c.Chat.Watch(cmd.Context(), &rpc.WatchRequest{})
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if errors.Is(err, io.EOF) || cmd.Context().Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := outputJSON(evt); err != nil {
					return err
				}
				continue
			}
			ts := time.Now()
			if evt.Timestamp > 0 {
				ts = time.UnixMilli(evt.Timestamp)
			}
			fmt.Printf("%s %-8s %s\n", ts.Format("15:04:05"), evt.Kind, describeEvent(evt))
		}
	},
}

func describeEvent(evt *rpc.Event) string {
	switch evt.Kind {
	case rpc.EventStatus:
		return evt.Status
	case rpc.EventPoll:
		if evt.Error != "" {
			return "failed: " + evt.Error
		}
		return "ok"
	case rpc.EventMessages:
		if evt.ReplacedID != "" {
			return fmt.Sprintf("%s %s -> %s", evt.ChannelID, evt.ReplacedID, evt.MessageID)
		}
		return strings.TrimSpace(evt.ChannelID + " " + evt.MessageID)
	case rpc.EventResync:
		return "events dropped, re-read state"
	default:
		return evt.ChannelID
	}
}

func printMessages(w io.Writer, msgs []rpc.Message) {
	for _, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		mark := ""
		switch m.Status {
		case "pending":
			mark = " (sending)"
		case "failed":
			mark = fmt.Sprintf(" (failed, retry with: admiralctl retry %s)", m.ID)
		}
		fmt.Fprintf(w, "%s  %s: %s%s\n", formatTime(m.CreatedAt), sender, m.Body, mark)
	}
}

func init() {
	channelsCmd.Flags().BoolVar(&channelsRefresh, "refresh", false, "refresh from the server first")

	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 50, "maximum number of messages")
	messagesCmd.Flags().BoolVar(&messagesFetch, "fetch", false, "fetch from the server first")
	messagesCmd.Flags().Int64Var(&messagesBefore, "before", 0, "only messages older than this unix ms timestamp")

	sendCmd.Flags().StringVar(&sendChannel, "channel", "", "target channel id (default: active channel)")
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "id of the message being answered")

	membersCmd.Flags().BoolVar(&membersRefresh, "refresh", false, "refresh from the server first")

	searchCmd.Flags().StringVar(&searchChannel, "channel", "", "restrict to one channel")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum number of results")

	rootCmd.AddCommand(channelsCmd, messagesCmd, sendCmd, retryCmd, openCmd, olderCmd,
		readCmd, dmCmd, membersCmd, searchCmd, watchCmd)
}
