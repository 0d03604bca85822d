package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/status"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultChannelSlug  = "general"
	DefaultHistoryLimit = store.DefaultPageSize
)

// Config holds session behaviour settings.
type Config struct {
	DefaultChannel string
	HistoryLimit   int
	Polling        bool
	Poll           PollerConfig
}

// ChannelError is a fetch failure scoped to one channel.
type ChannelError struct {
	ChannelID string
	Err       error
}

// Snapshot is a consistent read of the session's view.
type Snapshot struct {
	Channels        []store.Channel
	ActiveChannelID string
	Messages        []store.Message
	UnreadTotal     int
	ChannelError    *ChannelError
	Status          status.State
	Polling         bool
}

// Session is the entry point UIs use: it owns the active channel and wires
// the directory, repository, pipeline and poller together.
type Session struct {
	db       *store.DB
	gw       Gateway
	bus      *bus.Bus
	status   *status.Machine
	logger   *zap.Logger
	cfg      Config
	identity gateway.Identity

	Directory *Directory
	Messages  *Messages
	Pipeline  *Pipeline
	Poller    *Poller

	mu         sync.RWMutex
	active     string
	channelErr *ChannelError
	polling    bool
}

// NewSession builds a session and its components.
func NewSession(db *store.DB, gw Gateway, identity gateway.Identity, b *bus.Bus, st *status.Machine, m *metrics.Metrics, logger *zap.Logger, cfg Config, activity ActivityProvider) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = DefaultChannelSlug
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	dir := NewDirectory(db, gw, b, m, logger.Named("directory"))
	s := &Session{
		db:        db,
		gw:        gw,
		bus:       b,
		status:    st,
		logger:    logger,
		cfg:       cfg,
		identity:  identity,
		Directory: dir,
		Messages:  NewMessages(db, gw, dir, b, logger.Named("messages")),
		Pipeline:  NewPipeline(db, gw, identity, b, m, logger.Named("pipeline")),
		Poller:    NewPoller(dir, gw, db, st, b, m, logger.Named("poller"), cfg.Poll, activity),
	}
	s.Poller.SetListener(s.onPoll)
	return s
}

// Identity returns the member this session acts as.
func (s *Session) Identity() gateway.Identity {
	return s.identity
}

// Start loads the directory, activates the default channel, replays queued
// operations and starts polling. Gateway failures during start are logged;
// the session still comes up on cached data.
func (s *Session) Start(ctx context.Context) error {
	s.transition(status.Syncing)

	if n, err := s.Pipeline.RecoverInterrupted(); err != nil {
		return fmt.Errorf("recover interrupted sends: %w", err)
	} else if n > 0 {
		s.logger.Info("marked interrupted sends as failed", zap.Int("count", n))
	}

	online := true
	if err := s.Directory.Refresh(ctx); err != nil {
		online = false
		s.logger.Warn("initial directory refresh failed, using cache", zap.Error(err))
	}
	if err := s.RefreshMembers(ctx); err != nil {
		s.logger.Warn("member refresh failed", zap.Error(err))
	}

	ch, err := s.defaultChannel()
	if err != nil {
		return err
	}
	if ch != nil {
		if err := s.SetActiveChannel(ctx, ch.ID); err != nil {
			s.logger.Warn("failed to load default channel", zap.String("channel_id", ch.ID), zap.Error(err))
		}
	}

	if _, err := s.Directory.ReplayPending(ctx); err != nil {
		s.logger.Warn("pending op replay failed", zap.Error(err))
	}

	if online {
		s.transition(status.Ready)
	} else {
		s.transition(status.Degraded)
	}
	return s.SetPolling(ctx, s.cfg.Polling)
}

func (s *Session) defaultChannel() (*store.Channel, error) {
	ch, err := s.Directory.BySlug(s.cfg.DefaultChannel)
	if err != nil {
		return nil, fmt.Errorf("default channel: %w", err)
	}
	if ch != nil {
		return ch, nil
	}
	channels, err := s.Directory.List()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if len(channels) == 0 {
		return nil, nil
	}
	return &channels[0], nil
}

// ActiveChannel returns the id of the active channel, or "".
func (s *Session) ActiveChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Send sends content to the active channel.
func (s *Session) Send(ctx context.Context, content string) (store.Message, error) {
	active := s.ActiveChannel()
	if active == "" {
		return store.Message{}, &ValidationError{Field: "channel", Reason: "no active channel"}
	}
	return s.Pipeline.Send(ctx, active, content, SendOptions{})
}

// SendTo sends content to any cached channel.
func (s *Session) SendTo(ctx context.Context, channelID, content string, opts SendOptions) (store.Message, error) {
	if channelID == "" {
		return s.Send(ctx, content)
	}
	return s.Pipeline.Send(ctx, channelID, content, opts)
}

// Retry re-sends a failed message.
func (s *Session) Retry(ctx context.Context, messageID string) (store.Message, error) {
	return s.Pipeline.Retry(ctx, messageID)
}

// SetActiveChannel switches the active channel, fetches its history and
// marks it read. A fetch failure is kept as the channel's error and
// returned; a channel the server no longer has is deactivated.
func (s *Session) SetActiveChannel(ctx context.Context, channelID string) error {
	ch, err := s.Directory.Get(channelID)
	if err != nil {
		return fmt.Errorf("load channel: %w", err)
	}
	if ch == nil {
		return fmt.Errorf("channel %q: %w", channelID, store.ErrNotFound)
	}

	s.mu.Lock()
	s.active = channelID
	s.mu.Unlock()
	emitChannels(s.bus, channelID)

	// Opening a channel reads it even when its history cannot be fetched.
	fetchErr := s.fetchActive(ctx, channelID)
	var nf *gateway.NotFoundError
	if errors.As(fetchErr, &nf) {
		return fetchErr
	}
	return errors.Join(fetchErr, s.Directory.MarkAsRead(ctx, channelID))
}

func (s *Session) fetchActive(ctx context.Context, channelID string) error {
	_, err := s.Messages.Fetch(ctx, channelID, gateway.FetchOptions{Limit: s.cfg.HistoryLimit})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.channelErr = &ChannelError{ChannelID: channelID, Err: err}
		var nf *gateway.NotFoundError
		if errors.As(err, &nf) && s.active == channelID {
			s.active = ""
		}
		return err
	}
	if s.channelErr != nil && s.channelErr.ChannelID == channelID {
		s.channelErr = nil
	}
	return nil
}

// LoadOlder pages back through the active channel's history.
func (s *Session) LoadOlder(ctx context.Context) ([]store.Message, error) {
	active := s.ActiveChannel()
	if active == "" {
		return nil, &ValidationError{Field: "channel", Reason: "no active channel"}
	}
	return s.Messages.LoadOlder(ctx, active, s.cfg.HistoryLimit)
}

// MarkAsRead marks the active channel read.
func (s *Session) MarkAsRead(ctx context.Context) error {
	active := s.ActiveChannel()
	if active == "" {
		return &ValidationError{Field: "channel", Reason: "no active channel"}
	}
	return s.Directory.MarkAsRead(ctx, active)
}

// StartDM opens the direct channel with memberID and activates it.
func (s *Session) StartDM(ctx context.Context, memberID string) (*store.Channel, error) {
	ch, err := s.Directory.CreateDM(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if err := s.SetActiveChannel(ctx, ch.ID); err != nil {
		s.logger.Warn("failed to load dm history", zap.String("channel_id", ch.ID), zap.Error(err))
	}
	return ch, nil
}

// Members returns the cached workspace members.
func (s *Session) Members() ([]store.Member, error) {
	return s.db.ListMembers()
}

// RefreshMembers reloads workspace members from the server.
func (s *Session) RefreshMembers(ctx context.Context) error {
	remote, err := s.gw.ListMembers(ctx)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	members := make([]store.Member, 0, len(remote))
	for _, m := range remote {
		if m.ID == "" {
			continue
		}
		members = append(members, m.ToStore())
	}
	return s.db.UpsertMembers(members)
}

// Snapshot reads the current view. ChannelError is set only when the last
// fetch of the active channel failed.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	snap := Snapshot{ActiveChannelID: s.active, Polling: s.polling}
	if s.channelErr != nil && s.channelErr.ChannelID == s.active {
		ce := *s.channelErr
		snap.ChannelError = &ce
	}
	s.mu.RUnlock()

	var err error
	if snap.Channels, err = s.Directory.List(); err != nil {
		return Snapshot{}, err
	}
	if snap.UnreadTotal, err = s.Directory.UnreadTotal(); err != nil {
		return Snapshot{}, err
	}
	if snap.ActiveChannelID != "" {
		if snap.Messages, err = s.Messages.List(snap.ActiveChannelID, s.cfg.HistoryLimit); err != nil {
			return Snapshot{}, err
		}
	}
	if s.status != nil {
		snap.Status = s.status.Current()
	}
	return snap, nil
}

// Subscribe calls fn for every change to the local view until the returned
// function is called. fn runs on a dedicated goroutine.
func (s *Session) Subscribe(fn func(Change)) func() {
	ch, unsub := s.bus.Subscribe("chat.", 256)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case evt := <-ch:
				if evt.Kind == bus.KindResync {
					fn(Change{Kind: ChangeResync})
					continue
				}
				if c, ok := evt.Payload.(Change); ok {
					fn(c)
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(done)
		})
	}
}

// SetPolling turns background polling on or off.
func (s *Session) SetPolling(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	s.polling = enabled
	s.mu.Unlock()

	if enabled {
		if s.status != nil && s.status.Current() == status.Paused {
			s.transition(status.Syncing)
		}
		s.Poller.Start(ctx)
		return nil
	}
	s.Poller.Stop(ctx)
	s.transition(status.Paused)
	return nil
}

// Polling reports whether background polling is enabled.
func (s *Session) Polling() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.polling
}

// PollNow runs a poll cycle immediately.
func (s *Session) PollNow(ctx context.Context) (bool, error) {
	return s.Poller.PollNow(ctx)
}

// Stop halts polling and waits for in-flight sends and mark-read calls.
func (s *Session) Stop(ctx context.Context) {
	s.Poller.Stop(ctx)
	s.Pipeline.Wait()
	s.Directory.Wait()
	s.transition(status.Stopped)
}

// onPoll refreshes the active channel when a poll reports news.
func (s *Session) onPoll(ctx context.Context, _ *gateway.PollResult) {
	active := s.ActiveChannel()
	if active == "" {
		return
	}
	if err := s.fetchActive(ctx, active); err != nil {
		s.logger.Warn("active channel refresh failed", zap.String("channel_id", active), zap.Error(err))
	}
}

func (s *Session) transition(to status.State) {
	if s.status == nil {
		return
	}
	if err := s.status.Ensure(to); err != nil {
		s.logger.Debug("status transition skipped", zap.String("to", string(to)), zap.Error(err))
	}
}
