package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/session"
	"github.com/matheus3301/admiral/internal/tui"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	noStart := flag.Bool("no-start", false, "do not start the daemon when it is not running")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fail("%v", err)
	}

	socketPath := session.SocketPath(sessionName)

	if !probeDaemon(socketPath) {
		if *noStart {
			fail("daemon not running for session %q", sessionName)
		}
		fmt.Fprintf(os.Stderr, "daemon not running for session %q, starting...\n", sessionName)
		if err := startDaemon(sessionName); err != nil {
			fail("failed to start daemon: %v", err)
		}
		if !waitForDaemon(socketPath, 10*time.Second) {
			fail("daemon did not become ready, see %s", session.LogPath(sessionName))
		}
	}

	c, err := rpc.Dial(socketPath)
	if err != nil {
		fail("connect to daemon: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := tui.NewApp(c, sessionName).Run(); err != nil {
		fail("%v", err)
	}
}

// probeDaemon reports whether a daemon answers GetStatus on the socket.
func probeDaemon(socketPath string) bool {
	c, err := rpc.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Session.GetStatus(ctx, &rpc.GetStatusRequest{})
	return err == nil
}

// startDaemon launches admirald next to this binary, or from PATH.
func startDaemon(sessionName string) error {
	daemon := "admirald"
	if executable, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(executable), "admirald")
		if _, err := os.Stat(sibling); err == nil {
			daemon = sibling
		}
	}

	cmd := exec.Command(daemon, "--session", sessionName)
	// Startup errors stay visible; the daemon logs to its own file afterwards.
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
