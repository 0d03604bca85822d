package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
)

var testIdentity = gateway.Identity{MemberID: "u-me", MemberName: "Me"}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type sendCall struct {
	ChannelID string
	Content   string
	ReplyTo   string
}

// fakeGateway is an in-memory Gateway with configurable failures.
type fakeGateway struct {
	mu sync.Mutex

	channels    []gateway.Channel
	channelsErr error
	messages    map[string][]gateway.Message
	fetchErr    map[string]error
	fetches     []gateway.FetchOptions

	sendErr   error
	sendGate  chan struct{}
	sendDelay time.Duration
	sent      []sendCall
	inflight  map[string]int
	maxFlight map[string]int
	nextID    int
	sendIDs   []string

	markReadErr error
	markRead    []string

	pollRes   *gateway.PollResult
	pollErr   error
	pollGate  chan struct{}
	pollSince []time.Time

	members []gateway.Member
	dmErr   error
	dms     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		messages:  map[string][]gateway.Message{},
		fetchErr:  map[string]error{},
		inflight:  map[string]int{},
		maxFlight: map[string]int{},
	}
}

func (f *fakeGateway) ListChannels(ctx context.Context) ([]gateway.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return append([]gateway.Channel(nil), f.channels...), nil
}

func (f *fakeGateway) FindOrCreateDM(ctx context.Context, memberID string) (*gateway.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, memberID)
	if f.dmErr != nil {
		return nil, f.dmErr
	}
	return &gateway.Channel{ID: "ch-dm-" + memberID, Type: "dm", Participants: []string{testIdentity.MemberID, memberID}}, nil
}

func (f *fakeGateway) FetchMessages(ctx context.Context, channelID string, opts gateway.FetchOptions) ([]gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, opts)
	if err := f.fetchErr[channelID]; err != nil {
		return nil, err
	}
	return append([]gateway.Message(nil), f.messages[channelID]...), nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, channelID, content string, opts gateway.SendOptions) (*gateway.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sendCall{ChannelID: channelID, Content: content, ReplyTo: opts.ReplyTo})
	f.inflight[channelID]++
	f.maxFlight[channelID] = max(f.maxFlight[channelID], f.inflight[channelID])
	gate, delay := f.sendGate, f.sendDelay
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight[channelID]--
	if err := ctx.Err(); err != nil {
		return nil, &gateway.NetworkError{Op: "send_message", Err: err}
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	id := fmt.Sprintf("srv-%d", f.nextID)
	if len(f.sendIDs) > 0 {
		id, f.sendIDs = f.sendIDs[0], f.sendIDs[1:]
	}
	f.nextID++
	return &gateway.Message{
		ID:        id,
		ChannelID: channelID,
		SenderID:  testIdentity.MemberID,
		Content:   content,
		ReplyTo:   opts.ReplyTo,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeGateway) MarkChannelAsRead(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markRead = append(f.markRead, channelID)
	return f.markReadErr
}

func (f *fakeGateway) PollForUpdates(ctx context.Context, since time.Time) (*gateway.PollResult, error) {
	f.mu.Lock()
	f.pollSince = append(f.pollSince, since)
	gate := f.pollGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.pollRes == nil {
		return &gateway.PollResult{}, nil
	}
	res := *f.pollRes
	return &res, nil
}

func (f *fakeGateway) ListMembers(ctx context.Context) ([]gateway.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Member(nil), f.members...), nil
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeGateway) sentCalls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sent...)
}

func (f *fakeGateway) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pollSince)
}

var errOffline = &gateway.NetworkError{Op: "test", Err: fmt.Errorf("connection refused")}

type fixture struct {
	db      *store.DB
	gw      *fakeGateway
	bus     *bus.Bus
	status  *status.Machine
	session *Session
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{db: testDB(t), gw: newFakeGateway(), bus: bus.New()}
	f.status = status.NewMachine(f.bus)
	f.session = NewSession(f.db, f.gw, testIdentity, f.bus, f.status, metrics.New(nil), nil, cfg, AlwaysActive)
	t.Cleanup(func() { f.session.Stop(context.Background()) })
	return f
}

func seedChannels(t *testing.T, db *store.DB, ids ...string) {
	t.Helper()
	for i, id := range ids {
		if err := db.UpsertChannel(&store.Channel{ID: id, Type: store.ChannelPublic, Name: id, Slug: id, LastMessageAt: int64(i + 1)}); err != nil {
			t.Fatal(err)
		}
	}
}

func messageIDs(t *testing.T, db *store.DB, channelID string) []string {
	t.Helper()
	msgs, err := db.ListMessages(channelID, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
