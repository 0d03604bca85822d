// Package model holds the TUI's snapshot of daemon state.
package model

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/matheus3301/admiral/internal/rpc"
)

// Backend is the part of the daemon API the TUI uses. *rpc.Client satisfies
// it through Bind.
type Backend interface {
	GetStatus(ctx context.Context) (*rpc.GetStatusResponse, error)
	SetPolling(ctx context.Context, enabled bool) (*rpc.SetPollingResponse, error)
	PollNow(ctx context.Context) (*rpc.PollNowResponse, error)
	ListChannels(ctx context.Context, refresh bool) (*rpc.ListChannelsResponse, error)
	ListMessages(ctx context.Context, channelID string, limit int) (*rpc.ListMessagesResponse, error)
	SetActiveChannel(ctx context.Context, channelID string) (*rpc.SetActiveChannelResponse, error)
	LoadOlder(ctx context.Context) (*rpc.LoadOlderResponse, error)
	Send(ctx context.Context, channelID, content string) (*rpc.SendResponse, error)
	Retry(ctx context.Context, messageID string) (*rpc.RetryResponse, error)
	MarkAsRead(ctx context.Context, channelID string) error
	StartDirect(ctx context.Context, memberID string) (*rpc.StartDirectResponse, error)
	ListMembers(ctx context.Context, refresh bool) (*rpc.ListMembersResponse, error)
	Search(ctx context.Context, query string, limit int) (*rpc.SearchResponse, error)
	Watch(ctx context.Context) (EventStream, error)
}

// EventStream yields change events until the context ends.
type EventStream interface {
	Recv() (*rpc.Event, error)
}

// Bind adapts a daemon client to Backend.
func Bind(c *rpc.Client) Backend {
	return clientBackend{c}
}

type clientBackend struct{ c *rpc.Client }

func (b clientBackend) GetStatus(ctx context.Context) (*rpc.GetStatusResponse, error) {
	return b.c.Session.GetStatus(ctx, &rpc.GetStatusRequest{})
}

func (b clientBackend) SetPolling(ctx context.Context, enabled bool) (*rpc.SetPollingResponse, error) {
	return b.c.Session.SetPolling(ctx, &rpc.SetPollingRequest{Enabled: enabled})
}

func (b clientBackend) PollNow(ctx context.Context) (*rpc.PollNowResponse, error) {
	return b.c.Session.PollNow(ctx, &rpc.PollNowRequest{})
}

func (b clientBackend) ListChannels(ctx context.Context, refresh bool) (*rpc.ListChannelsResponse, error) {
	return b.c.Chat.ListChannels(ctx, &rpc.ListChannelsRequest{Refresh: refresh})
}

func (b clientBackend) ListMessages(ctx context.Context, channelID string, limit int) (*rpc.ListMessagesResponse, error) {
	return b.c.Chat.ListMessages(ctx, &rpc.ListMessagesRequest{ChannelID: channelID, Limit: limit})
}

func (b clientBackend) SetActiveChannel(ctx context.Context, channelID string) (*rpc.SetActiveChannelResponse, error) {
	return b.c.Chat.SetActiveChannel(ctx, &rpc.SetActiveChannelRequest{ChannelID: channelID})
}

func (b clientBackend) LoadOlder(ctx context.Context) (*rpc.LoadOlderResponse, error) {
	return b.c.Chat.LoadOlder(ctx, &rpc.LoadOlderRequest{})
}

func (b clientBackend) Send(ctx context.Context, channelID, content string) (*rpc.SendResponse, error) {
	return b.c.Chat.Send(ctx, &rpc.SendRequest{ChannelID: channelID, Content: content})
}

func (b clientBackend) Retry(ctx context.Context, messageID string) (*rpc.RetryResponse, error) {
	return b.c.Chat.Retry(ctx, &rpc.RetryRequest{MessageID: messageID})
}

func (b clientBackend) MarkAsRead(ctx context.Context, channelID string) error {
	_, err := b.c.Chat.MarkAsRead(ctx, &rpc.MarkAsReadRequest{ChannelID: channelID})
	return err
}

func (b clientBackend) StartDirect(ctx context.Context, memberID string) (*rpc.StartDirectResponse, error) {
	return b.c.Chat.StartDirect(ctx, &rpc.StartDirectRequest{MemberID: memberID})
}

func (b clientBackend) ListMembers(ctx context.Context, refresh bool) (*rpc.ListMembersResponse, error) {
	return b.c.Chat.ListMembers(ctx, &rpc.ListMembersRequest{Refresh: refresh})
}

func (b clientBackend) Search(ctx context.Context, query string, limit int) (*rpc.SearchResponse, error) {
	return b.c.Chat.Search(ctx, &rpc.SearchRequest{Query: query, Limit: limit})
}

func (b clientBackend) Watch(ctx context.Context) (EventStream, error) {
	return b.c.Chat.Watch(ctx, &rpc.WatchRequest{})
}

// HistoryLimit is how many messages the thread view asks for.
const HistoryLimit = 100

// Change tells the UI which parts of the snapshot moved.
type Change struct {
	Status   bool
	Channels bool
	Messages bool
}

// ViewModel caches what the TUI shows and refreshes it from daemon events.
type ViewModel struct {
	backend Backend

	mu           sync.RWMutex
	status       *rpc.GetStatusResponse
	channels     []rpc.Channel
	unreadTotal  int
	activeID     string
	messages     []rpc.Message
	members      []rpc.Member
	channelError string

	changes chan Change
}

// New creates a view model over backend.
func New(backend Backend) *ViewModel {
	return &ViewModel{
		backend: backend,
		changes: make(chan Change, 16),
	}
}

// Changes delivers a notification after every refresh.
func (vm *ViewModel) Changes() <-chan Change {
	return vm.changes
}

func (vm *ViewModel) notify(c Change) {
	select {
	case vm.changes <- c:
	default:
	}
}

// LoadStatus refreshes the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.backend.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	if vm.activeID == "" {
		vm.activeID = resp.ActiveChannelID
	}
	vm.mu.Unlock()
	vm.notify(Change{Status: true})
	return nil
}

// LoadChannels refreshes the channel list, optionally asking the server first.
func (vm *ViewModel) LoadChannels(ctx context.Context, refresh bool) error {
	resp, err := vm.backend.ListChannels(ctx, refresh)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.channels = resp.Channels
	vm.unreadTotal = resp.UnreadTotal
	if resp.ActiveChannelID != "" {
		vm.activeID = resp.ActiveChannelID
	}
	vm.mu.Unlock()
	vm.notify(Change{Channels: true})
	return nil
}

// LoadMessages re-reads the cached history of the active channel.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	active := vm.ActiveChannelID()
	if active == "" {
		return nil
	}
	resp, err := vm.backend.ListMessages(ctx, active, HistoryLimit)
	if err != nil {
		return err
	}
	vm.setMessages(resp.ChannelID, resp.Messages)
	return nil
}

// Open makes channelID active. The returned warning is non-empty when the
// server could not be reached and the cached history is shown instead.
func (vm *ViewModel) Open(ctx context.Context, channelID string) (string, error) {
	resp, err := vm.backend.SetActiveChannel(ctx, channelID)
	if err != nil {
		return "", err
	}
	vm.mu.Lock()
	vm.activeID = resp.ChannelID
	vm.channelError = resp.Error
	vm.mu.Unlock()
	vm.setMessages(resp.ChannelID, resp.Messages)
	return resp.Error, nil
}

// LoadOlder pages the active channel's history backwards.
func (vm *ViewModel) LoadOlder(ctx context.Context) (int, error) {
	before := len(vm.Messages())
	resp, err := vm.backend.LoadOlder(ctx)
	if err != nil {
		return 0, err
	}
	vm.setMessages(resp.ChannelID, resp.Messages)
	return max(len(resp.Messages)-before, 0), nil
}

func (vm *ViewModel) setMessages(channelID string, msgs []rpc.Message) {
	vm.mu.Lock()
	if channelID != vm.activeID {
		vm.mu.Unlock()
		return
	}
	vm.messages = msgs
	vm.mu.Unlock()
	vm.notify(Change{Messages: true})
}

// Send queues text on the active channel.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	active := vm.ActiveChannelID()
	if active == "" {
		return errors.New("no channel open")
	}
	_, err := vm.backend.Send(ctx, active, text)
	return err
}

// RetryLastFailed resends the newest failed message of the active channel.
// It reports false when there is nothing to retry.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) (bool, error) {
	msgs := vm.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == "failed" {
			_, err := vm.backend.Retry(ctx, msgs[i].ID)
			return err == nil, err
		}
	}
	return false, nil
}

// MarkRead clears the unread counter of the active channel.
func (vm *ViewModel) MarkRead(ctx context.Context) error {
	return vm.backend.MarkAsRead(ctx, vm.ActiveChannelID())
}

// StartDirect opens the direct channel with a member.
func (vm *ViewModel) StartDirect(ctx context.Context, memberID string) (rpc.Channel, error) {
	resp, err := vm.backend.StartDirect(ctx, memberID)
	if err != nil {
		return rpc.Channel{}, err
	}
	if _, err := vm.Open(ctx, resp.Channel.ID); err != nil {
		return resp.Channel, err
	}
	return resp.Channel, vm.LoadChannels(ctx, false)
}

// LoadMembers refreshes the member directory.
func (vm *ViewModel) LoadMembers(ctx context.Context, refresh bool) error {
	resp, err := vm.backend.ListMembers(ctx, refresh)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.members = resp.Members
	vm.mu.Unlock()
	return nil
}

// Search runs a full-text query over the cache.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]rpc.SearchResult, error) {
	resp, err := vm.backend.Search(ctx, query, 50)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SetPolling switches background polling.
func (vm *ViewModel) SetPolling(ctx context.Context, enabled bool) error {
	if _, err := vm.backend.SetPolling(ctx, enabled); err != nil {
		return err
	}
	return vm.LoadStatus(ctx)
}

// PollNow triggers an immediate poll.
func (vm *ViewModel) PollNow(ctx context.Context) error {
	resp, err := vm.backend.PollNow(ctx)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// Watch follows the daemon's event stream and refreshes the snapshot until
// ctx ends. A broken stream is reopened after retryDelay.
func (vm *ViewModel) Watch(ctx context.Context, retryDelay time.Duration, onErr func(error)) {
	for ctx.Err() == nil {
		err := vm.watchOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && onErr != nil {
			onErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}
	}
}

func (vm *ViewModel) watchOnce(ctx context.Context) error {
	stream, err := vm.backend.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		vm.apply(ctx, evt)
	}
}

// apply re-reads whatever an event invalidates. Refresh errors are dropped;
// the next event retries.
func (vm *ViewModel) apply(ctx context.Context, evt *rpc.Event) {
	switch evt.Kind {
	case rpc.EventStatus, rpc.EventPoll:
		_ = vm.LoadStatus(ctx)
		if evt.Kind == rpc.EventPoll {
			_ = vm.LoadChannels(ctx, false)
		}
	case rpc.EventChannels:
		_ = vm.LoadChannels(ctx, false)
	case rpc.EventMessages:
		if evt.ChannelID == "" || evt.ChannelID == vm.ActiveChannelID() {
			_ = vm.LoadMessages(ctx)
		}
		_ = vm.LoadChannels(ctx, false)
	case rpc.EventResync:
		_ = vm.LoadStatus(ctx)
		_ = vm.LoadChannels(ctx, false)
		_ = vm.LoadMessages(ctx)
	}
}

// Status returns the last known daemon status, or nil.
func (vm *ViewModel) Status() *rpc.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Channels returns the cached channel list.
func (vm *ViewModel) Channels() []rpc.Channel {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.channels
}

// UnreadTotal returns the unread count across channels.
func (vm *ViewModel) UnreadTotal() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.unreadTotal
}

// Channel looks up a channel in the snapshot.
func (vm *ViewModel) Channel(id string) (rpc.Channel, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.channels {
		if c.ID == id {
			return c, true
		}
	}
	return rpc.Channel{}, false
}

// ActiveChannelID returns the open channel, or "".
func (vm *ViewModel) ActiveChannelID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// ChannelError is the last fetch failure of the active channel.
func (vm *ViewModel) ChannelError() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.channelError
}

// Messages returns the history of the active channel.
func (vm *ViewModel) Messages() []rpc.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// Members returns the member directory.
func (vm *ViewModel) Members() []rpc.Member {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.members
}
