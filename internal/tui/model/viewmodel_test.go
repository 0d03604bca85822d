package model

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
)

type fakeBackend struct {
	mu       sync.Mutex
	channels []rpc.Channel
	messages map[string][]rpc.Message
	active   string
	retried  []string
	sent     []string
	events   chan *rpc.Event
	fetchErr string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		channels: []rpc.Channel{
			{ID: "c1", Name: "general", UnreadCount: 2},
			{ID: "c2", Name: "random"},
		},
		messages: map[string][]rpc.Message{
			"c1": {{ID: "m1", ChannelID: "c1", Body: "hi", Status: "sent"}},
			"c2": {
				{ID: "m2", ChannelID: "c2", Body: "one", Status: "failed"},
				{ID: "m3", ChannelID: "c2", Body: "two", Status: "sent"},
			},
		},
		active: "c1",
		events: make(chan *rpc.Event, 8),
	}
}

func (f *fakeBackend) GetStatus(context.Context) (*rpc.GetStatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.GetStatusResponse{Status: "READY", ActiveChannelID: f.active}, nil
}

func (f *fakeBackend) SetPolling(_ context.Context, enabled bool) (*rpc.SetPollingResponse, error) {
	return &rpc.SetPollingResponse{Polling: enabled}, nil
}

func (f *fakeBackend) PollNow(context.Context) (*rpc.PollNowResponse, error) {
	return &rpc.PollNowResponse{Polled: true}, nil
}

func (f *fakeBackend) ListChannels(context.Context, bool) (*rpc.ListChannelsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.channels {
		total += c.UnreadCount
	}
	return &rpc.ListChannelsResponse{Channels: f.channels, ActiveChannelID: f.active, UnreadTotal: total}, nil
}

func (f *fakeBackend) ListMessages(_ context.Context, channelID string, _ int) (*rpc.ListMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.ListMessagesResponse{ChannelID: channelID, Messages: f.messages[channelID]}, nil
}

func (f *fakeBackend) SetActiveChannel(_ context.Context, channelID string) (*rpc.SetActiveChannelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = channelID
	return &rpc.SetActiveChannelResponse{ChannelID: channelID, Messages: f.messages[channelID], Error: f.fetchErr}, nil
}

func (f *fakeBackend) LoadOlder(context.Context) (*rpc.LoadOlderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	older := rpc.Message{ID: "m0", ChannelID: f.active, Body: "old", Status: "sent"}
	f.messages[f.active] = append([]rpc.Message{older}, f.messages[f.active]...)
	return &rpc.LoadOlderResponse{ChannelID: f.active, Messages: f.messages[f.active]}, nil
}

func (f *fakeBackend) Send(_ context.Context, channelID, content string) (*rpc.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+":"+content)
	return &rpc.SendResponse{}, nil
}

func (f *fakeBackend) Retry(_ context.Context, messageID string) (*rpc.RetryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, messageID)
	return &rpc.RetryResponse{}, nil
}

func (f *fakeBackend) MarkAsRead(context.Context, string) error { return nil }

func (f *fakeBackend) StartDirect(_ context.Context, memberID string) (*rpc.StartDirectResponse, error) {
	ch := rpc.Channel{ID: "dm-" + memberID, Type: "dm", Name: memberID}
	f.mu.Lock()
	f.channels = append(f.channels, ch)
	f.mu.Unlock()
	return &rpc.StartDirectResponse{Channel: ch}, nil
}

func (f *fakeBackend) ListMembers(context.Context, bool) (*rpc.ListMembersResponse, error) {
	return &rpc.ListMembersResponse{Members: []rpc.Member{{ID: "u2", Name: "Ana"}}}, nil
}

func (f *fakeBackend) Search(context.Context, string, int) (*rpc.SearchResponse, error) {
	return &rpc.SearchResponse{Results: []rpc.SearchResult{{Snippet: "<<hi>>"}}}, nil
}

func (f *fakeBackend) Watch(ctx context.Context) (EventStream, error) {
	return &fakeStream{ctx: ctx, events: f.events}, nil
}

type fakeStream struct {
	ctx    context.Context
	events chan *rpc.Event
}

func (s *fakeStream) Recv() (*rpc.Event, error) {
	select {
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case evt, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		return evt, nil
	}
}

func TestLoadChannelsAndMessages(t *testing.T) {
	vm := New(newFakeBackend())
	ctx := context.Background()

	if err := vm.LoadChannels(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := vm.LoadMessages(ctx); err != nil {
		t.Fatal(err)
	}

	if got := vm.UnreadTotal(); got != 2 {
		t.Errorf("unread total: got %d, want 2", got)
	}
	if got := vm.ActiveChannelID(); got != "c1" {
		t.Errorf("active: got %q, want c1", got)
	}
	if msgs := vm.Messages(); len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Errorf("messages: got %+v", msgs)
	}
	if c, ok := vm.Channel("c2"); !ok || c.Name != "random" {
		t.Errorf("channel lookup: got %+v %v", c, ok)
	}
}

func TestOpenReportsCachedFallback(t *testing.T) {
	fb := newFakeBackend()
	fb.fetchErr = "network unreachable"
	vm := New(fb)

	warn, err := vm.Open(context.Background(), "c2")
	if err != nil {
		t.Fatal(err)
	}
	if warn != "network unreachable" || vm.ChannelError() != warn {
		t.Errorf("warning: got %q / %q", warn, vm.ChannelError())
	}
	if len(vm.Messages()) != 2 {
		t.Errorf("expected cached history, got %+v", vm.Messages())
	}
}

func TestRetryLastFailed(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()

	ok, err := vm.RetryLastFailed(ctx)
	if err != nil || ok {
		t.Fatalf("nothing open: got %v, %v", ok, err)
	}

	if _, err := vm.Open(ctx, "c2"); err != nil {
		t.Fatal(err)
	}
	ok, err = vm.RetryLastFailed(ctx)
	if err != nil || !ok {
		t.Fatalf("retry: got %v, %v", ok, err)
	}
	if len(fb.retried) != 1 || fb.retried[0] != "m2" {
		t.Errorf("retried: got %v", fb.retried)
	}
}

func TestSendRequiresOpenChannel(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)

	if err := vm.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error without an open channel")
	}
	if _, err := vm.Open(context.Background(), "c1"); err != nil {
		t.Fatal(err)
	}
	if err := vm.Send(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if len(fb.sent) != 1 || fb.sent[0] != "c1:hello" {
		t.Errorf("sent: got %v", fb.sent)
	}
}

func TestLoadOlderCountsNewMessages(t *testing.T) {
	vm := New(newFakeBackend())
	ctx := context.Background()
	if _, err := vm.Open(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	n, err := vm.LoadOlder(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || vm.Messages()[0].ID != "m0" {
		t.Errorf("got %d new, first %+v", n, vm.Messages()[0])
	}
}

func TestStartDirectOpensChannel(t *testing.T) {
	vm := New(newFakeBackend())

	ch, err := vm.StartDirect(context.Background(), "u2")
	if err != nil {
		t.Fatal(err)
	}
	if vm.ActiveChannelID() != ch.ID {
		t.Errorf("active: got %q, want %q", vm.ActiveChannelID(), ch.ID)
	}
	if _, ok := vm.Channel(ch.ID); !ok {
		t.Error("direct channel missing from list")
	}
}

func TestWatchRefreshesOnMessageEvent(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := vm.Open(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	drain(vm)

	done := make(chan struct{})
	go func() {
		vm.Watch(ctx, 10*time.Millisecond, nil)
		close(done)
	}()

	fb.mu.Lock()
	fb.messages["c1"] = append(fb.messages["c1"], rpc.Message{ID: "srv-9", ChannelID: "c1", Body: "new"})
	fb.mu.Unlock()
	fb.events <- &rpc.Event{Kind: rpc.EventMessages, ChannelID: "c1", MessageID: "srv-9"}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-vm.Changes():
			if c.Messages && len(vm.Messages()) == 2 {
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for message refresh")
		}
	}
}

func TestWatchReloadsEverythingOnResync(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := vm.Open(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	drain(vm)

	done := make(chan struct{})
	go func() {
		vm.Watch(ctx, 10*time.Millisecond, nil)
		close(done)
	}()

	fb.mu.Lock()
	fb.channels = append(fb.channels, rpc.Channel{ID: "c3", Name: "ops"})
	fb.messages["c1"] = append(fb.messages["c1"], rpc.Message{ID: "srv-10", ChannelID: "c1", Body: "missed"})
	fb.mu.Unlock()
	fb.events <- &rpc.Event{Kind: rpc.EventResync}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-vm.Changes():
			if _, ok := vm.Channel("c3"); ok && len(vm.Messages()) == 2 {
				cancel()
				<-done
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for resync reload")
		}
	}
}

func TestWatchReportsStreamErrors(t *testing.T) {
	vm := New(errBackend{newFakeBackend()})
	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 4)
	go vm.Watch(ctx, time.Millisecond, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	select {
	case err := <-errs:
		if err == nil || err.Error() != "daemon gone" {
			t.Errorf("got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
	cancel()
}

type errBackend struct{ *fakeBackend }

func (errBackend) Watch(context.Context) (EventStream, error) {
	return nil, errors.New("daemon gone")
}

func drain(vm *ViewModel) {
	for {
		select {
		case <-vm.Changes():
		default:
			return
		}
	}
}
