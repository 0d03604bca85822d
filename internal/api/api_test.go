package api

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/chat"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/gateway/gatewaytest"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/rpc"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type harness struct {
	remote   *gatewaytest.Server
	session  *chat.Session
	watchers *Watchers
	client   *rpc.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "admiral-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	db, err := store.Open(filepath.Join(tmpDir, "admiral.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	remote := gatewaytest.NewServer(t)
	remote.AddChannel(gateway.Channel{ID: "ch-general", Type: "public", Name: "General", Slug: "general"})
	remote.AddChannel(gateway.Channel{ID: "ch-random", Type: "public", Name: "Random", Slug: "random"})
	remote.AddMember(gateway.Member{ID: "u-ana", Name: "Ana"})
	remote.Post("ch-general", "u-ana", "welcome aboard")

	logger := zap.NewNop()
	m := metrics.New(nil)
	b := bus.New()
	machine := status.NewMachine(b)
	identity := gateway.Identity{MemberID: "u-me", MemberName: "Me"}
	gw := gateway.New(remote.URL, identity, gateway.WithMetrics(m), gateway.WithTimeout(2*time.Second))
	watchers := NewWatchers(m)
	session := chat.NewSession(db, gw, identity, b, machine, m, logger, chat.Config{}, watchers)
	if err := session.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { session.Stop(context.Background()) })

	srv := grpc.NewServer()
	rpc.RegisterSessionServiceServer(srv, NewSessionService("test", machine, session, db, logger))
	rpc.RegisterChatServiceServer(srv, NewChatService(session, db, b, machine, watchers, logger))

	socketPath := filepath.Join(tmpDir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(srv.Stop)

	client, err := rpc.Dial(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return &harness{remote: remote, session: session, watchers: watchers, client: client}
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Session.GetStatus(context.Background(), &rpc.GetStatusRequest{})
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if resp.Session != "test" || resp.MemberID != "u-me" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Status != string(status.Paused) || resp.Polling {
		t.Errorf("status = %s polling = %v, want PAUSED", resp.Status, resp.Polling)
	}
	if resp.ActiveChannelID != "ch-general" || resp.ChannelCount != 2 || resp.MessageCount != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListChannelsAndMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	channels, err := h.client.Chat.ListChannels(ctx, &rpc.ListChannelsRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(channels.Channels) != 2 || channels.ActiveChannelID != "ch-general" {
		t.Errorf("channels = %+v", channels)
	}

	msgs, err := h.client.Chat.ListMessages(ctx, &rpc.ListMessagesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if msgs.ChannelID != "ch-general" || len(msgs.Messages) != 1 || msgs.Messages[0].Body != "welcome aboard" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSendReconcilesThroughWatch(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := h.client.Chat.Watch(ctx, &rpc.WatchRequest{})
	if err != nil {
		t.Fatal(err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if first.Kind != rpc.EventStatus {
		t.Errorf("first event = %+v, want status", first)
	}
	if !h.watchers.Active() {
		t.Error("an attached watcher should make the session active")
	}

	sent, err := h.client.Chat.Send(ctx, &rpc.SendRequest{Content: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(sent.Message.ID, store.TempIDPrefix) || sent.Message.Status != string(store.StatusPending) {
		t.Errorf("optimistic message = %+v", sent.Message)
	}

	for {
		evt, err := stream.Recv()
		if err != nil {
			t.Fatalf("watch ended before reconcile: %v", err)
		}
		if evt.Kind == rpc.EventMessages && evt.ReplacedID == sent.Message.ID {
			break
		}
	}

	msgs, err := h.client.Chat.ListMessages(ctx, &rpc.ListMessagesRequest{ChannelID: "ch-general"})
	if err != nil {
		t.Fatal(err)
	}
	var bodies []string
	for _, m := range msgs.Messages {
		if store.IsTempID(m.ID) {
			t.Errorf("temporary record left behind: %+v", m)
		}
		bodies = append(bodies, m.Body)
	}
	if strings.Join(bodies, ",") != "welcome aboard,hello" {
		t.Errorf("bodies = %v", bodies)
	}
	if n := len(h.remote.Messages("ch-general")); n != 2 {
		t.Errorf("server messages = %d, want 2", n)
	}
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"empty content", func() error {
			_, err := h.client.Chat.Send(ctx, &rpc.SendRequest{Content: "  "})
			return err
		}, codes.InvalidArgument},
		{"unknown channel", func() error {
			_, err := h.client.Chat.SetActiveChannel(ctx, &rpc.SetActiveChannelRequest{ChannelID: "nope"})
			return err
		}, codes.NotFound},
		{"retry unknown message", func() error {
			_, err := h.client.Chat.Retry(ctx, &rpc.RetryRequest{MessageID: "tmp-missing"})
			return err
		}, codes.NotFound},
		{"empty search", func() error {
			_, err := h.client.Chat.Search(ctx, &rpc.SearchRequest{})
			return err
		}, codes.InvalidArgument},
		{"dm without member", func() error {
			_, err := h.client.Chat.StartDirect(ctx, &rpc.StartDirectRequest{})
			return err
		}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := grpcstatus.Code(tt.call()); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSetActiveChannelOfflineServesCache(t *testing.T) {
	h := newHarness(t)
	h.remote.SetOffline(true)

	resp, err := h.client.Chat.SetActiveChannel(context.Background(), &rpc.SetActiveChannelRequest{ChannelID: "ch-general"})
	if err != nil {
		t.Fatalf("SetActiveChannel error = %v", err)
	}
	if resp.Error == "" {
		t.Error("expected a scoped fetch error")
	}
	if len(resp.Messages) != 1 {
		t.Errorf("cached messages = %d, want 1", len(resp.Messages))
	}
}

func TestStartDirectAndMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	members, err := h.client.Chat.ListMembers(ctx, &rpc.ListMembersRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(members.Members) != 1 || members.Members[0].Name != "Ana" {
		t.Fatalf("members = %+v", members.Members)
	}

	dm, err := h.client.Chat.StartDirect(ctx, &rpc.StartDirectRequest{MemberID: "u-ana"})
	if err != nil {
		t.Fatal(err)
	}
	if dm.Channel.Type != string(store.ChannelDirect) || dm.Channel.Name != "Ana" {
		t.Errorf("dm = %+v", dm.Channel)
	}
	again, err := h.client.Chat.StartDirect(ctx, &rpc.StartDirectRequest{MemberID: "u-ana"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Channel.ID != dm.Channel.ID {
		t.Errorf("second dm = %q, want %q", again.Channel.ID, dm.Channel.ID)
	}
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Chat.Search(context.Background(), &rpc.SearchRequest{Query: "aboard"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || !strings.Contains(resp.Results[0].Snippet, "<<aboard>>") {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestPollNowAndSetPolling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.remote.Post("ch-random", "u-ana", "psst")

	resp, err := h.client.Session.PollNow(ctx, &rpc.PollNowRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Polled || resp.Error != "" {
		t.Errorf("PollNow = %+v", resp)
	}
	channels, _ := h.client.Chat.ListChannels(ctx, &rpc.ListChannelsRequest{})
	if channels.UnreadTotal != 1 {
		t.Errorf("unread total = %d, want 1", channels.UnreadTotal)
	}

	polling, err := h.client.Session.SetPolling(ctx, &rpc.SetPollingRequest{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	// Enabling polls right away, so READY may already have been reached.
	if !polling.Polling || (polling.Status != string(status.Syncing) && polling.Status != string(status.Ready)) {
		t.Errorf("SetPolling = %+v", polling)
	}
}
