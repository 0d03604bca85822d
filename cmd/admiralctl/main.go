package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/session"
	"github.com/spf13/cobra"
)

var (
	sessionFlag string
	jsonOutput  bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "admiralctl",
	Short:         "Control an admiral chat daemon",
	Long:          "Command-line interface for a running admirald session: inspect status, read and send messages, and control polling.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "request timeout")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// dial connects to the daemon of the resolved session.
func dial() (*rpc.Client, string, error) {
	name, err := session.Resolve(sessionFlag)
	if err != nil {
		return nil, "", err
	}
	c, err := rpc.Dial(session.SocketPath(name))
	if err != nil {
		return nil, "", fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, name, nil
}

// withClient runs fn with a connected client and a request timeout.
func withClient(fn func(ctx context.Context, c *rpc.Client) error) error {
	c, _, err := dial()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}
