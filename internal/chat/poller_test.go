package chat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
)

type pollerFixture struct {
	poller *Poller
	db     *store.DB
	gw     *fakeGateway
	status *status.Machine
	active atomic.Bool
}

func newTestPoller(t *testing.T, cfg PollerConfig) *pollerFixture {
	t.Helper()
	f := &pollerFixture{db: testDB(t), gw: newFakeGateway()}
	b := bus.New()
	f.status = status.NewMachine(b)
	if err := f.status.Transition(status.Syncing); err != nil {
		t.Fatal(err)
	}
	f.active.Store(true)
	dir := NewDirectory(f.db, f.gw, b, metrics.New(nil), nil)
	f.poller = NewPoller(dir, f.gw, f.db, f.status, b, metrics.New(nil), nil, cfg, ActivityFunc(f.active.Load))
	t.Cleanup(func() { f.poller.Stop(context.Background()) })
	return f
}

func (f *pollerFixture) cursor(t *testing.T) time.Time {
	t.Helper()
	c, err := f.poller.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// TestFailedPollKeepsCursor polls from t0, fails, and checks that the next
// attempt still asks for changes since t0.
func TestFailedPollKeepsCursor(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := f.db.SetCursor(store.CursorPoll, t0.Format(time.RFC3339Nano)); err != nil {
		t.Fatal(err)
	}
	f.gw.set(func(g *fakeGateway) { g.pollErr = errOffline })

	polled, err := f.poller.PollNow(context.Background())
	if !polled || err == nil {
		t.Fatalf("PollNow = (%v, %v), want a failed poll", polled, err)
	}
	if got := f.cursor(t); !got.Equal(t0) {
		t.Errorf("cursor = %v, want %v", got, t0)
	}

	t1 := t0.Add(time.Minute)
	f.poller.now = func() time.Time { return t1 }
	f.gw.set(func(g *fakeGateway) { g.pollErr = nil })
	if _, err := f.poller.PollNow(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.gw.mu.Lock()
	since := f.gw.pollSince[1]
	f.gw.mu.Unlock()
	if !since.Equal(t0) {
		t.Errorf("retry asked since %v, want %v", since, t0)
	}
	if got := f.cursor(t); !got.Equal(t1) {
		t.Errorf("cursor = %v, want %v after success", got, t1)
	}
}

func TestPollAppliesDeltasAndNotifiesListener(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	seedChannels(t, f.db, "ch-a")
	f.gw.set(func(g *fakeGateway) {
		g.pollRes = &gateway.PollResult{HasNew: true, Channels: []gateway.ChannelDelta{
			{ChannelID: "ch-a", NewCount: 2, LastMessageAt: time.UnixMilli(7000)},
		}}
	})
	var notified atomic.Int32
	f.poller.SetListener(func(ctx context.Context, res *gateway.PollResult) { notified.Add(1) })

	for range 2 {
		if _, err := f.poller.PollNow(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	ch, _ := f.db.GetChannel("ch-a")
	if ch.UnreadCount != 4 {
		t.Errorf("unread = %d, want 4", ch.UnreadCount)
	}
	if notified.Load() != 2 {
		t.Errorf("listener calls = %d, want 2", notified.Load())
	}
}

func TestPollWithoutNewsSkipsListener(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	f.poller.SetListener(func(ctx context.Context, res *gateway.PollResult) {
		t.Error("listener called without news")
	})
	if _, err := f.poller.PollNow(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestPollUnknownChannelRefreshesDirectory(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	f.gw.set(func(g *fakeGateway) {
		g.channels = []gateway.Channel{{ID: "ch-new", Type: "public", Name: "New", UnreadCount: intPtr(1)}}
		g.pollRes = &gateway.PollResult{HasNew: true, Channels: []gateway.ChannelDelta{
			{ChannelID: "ch-new", NewCount: 1, LastMessageAt: time.UnixMilli(1000)},
		}}
	})

	if _, err := f.poller.PollNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch, _ := f.db.GetChannel("ch-new")
	if ch == nil {
		t.Fatal("unknown channel not fetched")
	}
	if ch.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", ch.UnreadCount)
	}
}

func TestPollNowIsNotReentrant(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	gate := make(chan struct{})
	f.gw.set(func(g *fakeGateway) { g.pollGate = gate })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.poller.PollNow(context.Background())
	}()
	waitFor(t, "first poll in flight", func() bool { return f.gw.pollCount() == 1 })

	polled, err := f.poller.PollNow(context.Background())
	if polled || err != nil {
		t.Errorf("overlapping PollNow = (%v, %v), want (false, nil)", polled, err)
	}
	close(gate)
	<-done
	if n := f.gw.pollCount(); n != 1 {
		t.Errorf("gateway polls = %d, want 1", n)
	}
}

func TestIntervalFollowsActivityAndBackoff(t *testing.T) {
	f := newTestPoller(t, PollerConfig{ActiveInterval: time.Second, BackgroundInterval: 10 * time.Second})
	f.gw.set(func(g *fakeGateway) { g.pollErr = errOffline })

	if got := f.poller.Interval(); got != time.Second {
		t.Errorf("active interval = %v", got)
	}
	f.active.Store(false)
	if got := f.poller.Interval(); got != 10*time.Second {
		t.Errorf("background interval = %v", got)
	}
	f.active.Store(true)

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		_, _ = f.poller.PollNow(context.Background())
		if got := f.poller.Interval(); got != w {
			t.Errorf("after %d failures interval = %v, want %v", i+1, got, w)
		}
	}

	f.gw.set(func(g *fakeGateway) { g.pollErr = nil })
	if _, err := f.poller.PollNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.poller.Interval(); got != time.Second {
		t.Errorf("interval after recovery = %v, want 1s", got)
	}
}

func TestConsecutiveFailuresDegradeStatus(t *testing.T) {
	f := newTestPoller(t, PollerConfig{FailureThreshold: 2})
	if err := f.status.Transition(status.Ready); err != nil {
		t.Fatal(err)
	}
	f.gw.set(func(g *fakeGateway) { g.pollErr = errOffline })

	_, _ = f.poller.PollNow(context.Background())
	if f.status.Current() != status.Ready {
		t.Errorf("status after one failure = %s, want READY", f.status.Current())
	}
	_, _ = f.poller.PollNow(context.Background())
	if f.status.Current() != status.Degraded {
		t.Errorf("status after two failures = %s, want DEGRADED", f.status.Current())
	}
	if f.poller.Failures() != 2 {
		t.Errorf("failures = %d", f.poller.Failures())
	}

	f.gw.set(func(g *fakeGateway) { g.pollErr = nil })
	_, _ = f.poller.PollNow(context.Background())
	if f.status.Current() != status.Ready {
		t.Errorf("status after recovery = %s, want READY", f.status.Current())
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	f := newTestPoller(t, PollerConfig{})
	seedChannels(t, f.db, "ch-a")
	gate := make(chan struct{})
	f.gw.set(func(g *fakeGateway) {
		g.pollGate = gate
		g.pollRes = &gateway.PollResult{HasNew: true, Channels: []gateway.ChannelDelta{
			{ChannelID: "ch-a", NewCount: 5, LastMessageAt: time.UnixMilli(9000)},
		}}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.poller.PollNow(context.Background())
	}()
	waitFor(t, "poll in flight", func() bool { return f.gw.pollCount() == 1 })

	f.poller.Stop(context.Background())
	close(gate)
	<-done

	ch, _ := f.db.GetChannel("ch-a")
	if ch.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0 (result discarded)", ch.UnreadCount)
	}
	if _, ok, _ := f.db.GetCursor(store.CursorPoll); ok {
		t.Error("cursor advanced by a discarded poll")
	}
}

func TestStartTicksAndStop(t *testing.T) {
	f := newTestPoller(t, PollerConfig{ActiveInterval: 10 * time.Millisecond, BackgroundInterval: 10 * time.Millisecond})

	f.poller.Start(context.Background())
	f.poller.Start(context.Background())
	if !f.poller.Running() {
		t.Fatal("poller should be running")
	}
	waitFor(t, "ticker polls", func() bool { return f.gw.pollCount() >= 2 })

	f.poller.Stop(context.Background())
	if f.poller.Running() {
		t.Error("poller still running after Stop")
	}
	n := f.gw.pollCount()
	time.Sleep(50 * time.Millisecond)
	if f.gw.pollCount() != n {
		t.Error("polls continued after Stop")
	}
}

func TestStartPollsImmediately(t *testing.T) {
	f := newTestPoller(t, PollerConfig{ActiveInterval: time.Hour, BackgroundInterval: time.Hour})

	f.poller.Start(context.Background())
	waitFor(t, "first poll", func() bool {
		_, ok, _ := f.db.GetCursor(store.CursorPoll)
		return ok
	})
	if n := f.gw.pollCount(); n != 1 {
		t.Errorf("polls = %d, want 1 before the first tick", n)
	}
}
