package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/metrics"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

// replayBatch bounds how many queued operations one replay pass handles.
const replayBatch = 50

// Directory owns the cached channel list and per-channel read state.
type Directory struct {
	db      *store.DB
	gw      Gateway
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	replayMu sync.Mutex
	wg       sync.WaitGroup
}

// NewDirectory creates a channel directory.
func NewDirectory(db *store.DB, gw Gateway, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{db: db, gw: gw, bus: b, metrics: m, logger: logger}
}

// Refresh fetches the channel list and merges it into the cache. Channels the
// server no longer lists are kept; unread counts the server omits keep their
// local value.
func (d *Directory) Refresh(ctx context.Context) error {
	remote, err := d.gw.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	batch := make([]store.Channel, 0, len(remote))
	for _, r := range remote {
		if r.ID == "" {
			continue
		}
		ch := r.ToStore()
		local, err := d.db.GetChannel(r.ID)
		if err != nil {
			return fmt.Errorf("load channel %q: %w", r.ID, err)
		}
		if local != nil {
			if r.UnreadCount == nil {
				ch.UnreadCount = local.UnreadCount
			}
			if ch.LastMessagePreview == "" && ch.LastMessageAt <= local.LastMessageAt {
				ch.LastMessagePreview = local.LastMessagePreview
			}
		}
		batch = append(batch, ch)
	}
	if err := d.db.UpsertChannels(batch); err != nil {
		return fmt.Errorf("store channels: %w", err)
	}

	d.logger.Debug("channel directory refreshed", zap.Int("channels", len(batch)))
	emitChannels(d.bus, "")
	d.updateUnreadGauge()
	return nil
}

// List returns the cached channels, most recently active first.
func (d *Directory) List() ([]store.Channel, error) {
	return d.db.ListChannels()
}

// Get returns a cached channel or nil.
func (d *Directory) Get(id string) (*store.Channel, error) {
	return d.db.GetChannel(id)
}

// BySlug returns the cached channel with the given slug or nil.
func (d *Directory) BySlug(slug string) (*store.Channel, error) {
	return d.db.GetChannelBySlug(slug)
}

// UnreadTotal sums unread counters across channels.
func (d *Directory) UnreadTotal() (int, error) {
	return d.db.UnreadTotal()
}

// ApplyDeltas adds poll deltas to the unread counters. It returns the ids of
// channels that are not cached yet.
func (d *Directory) ApplyDeltas(deltas []gateway.ChannelDelta) ([]string, error) {
	var unknown []string
	for _, delta := range deltas {
		found, err := d.db.ApplyChannelDelta(delta.ChannelID, delta.NewCount, delta.LastMessageAt.UnixMilli())
		if err != nil {
			return unknown, fmt.Errorf("apply delta %q: %w", delta.ChannelID, err)
		}
		if !found {
			unknown = append(unknown, delta.ChannelID)
			continue
		}
		emitChannels(d.bus, delta.ChannelID)
	}
	d.updateUnreadGauge()
	return unknown, nil
}

// MarkAsRead zeroes the channel's unread counter and tells the server in the
// background. A failed server call is queued and replayed by later poll
// cycles; the local counter stays at zero.
func (d *Directory) MarkAsRead(ctx context.Context, channelID string) error {
	if err := d.db.SetUnread(channelID, 0); err != nil {
		return fmt.Errorf("mark %q read: %w", channelID, err)
	}
	emitChannels(d.bus, channelID)
	d.updateUnreadGauge()

	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.gw.MarkChannelAsRead(ctx, channelID); err != nil {
			d.logger.Warn("mark read failed, queued for retry", zap.String("channel_id", channelID), zap.Error(err))
			d.countMarkRead("queued")
			if _, err := d.db.EnqueueOp(store.OpMarkRead, map[string]any{"channel_id": channelID}); err != nil {
				d.logger.Error("failed to queue mark read", zap.String("channel_id", channelID), zap.Error(err))
			}
			d.updatePendingGauge()
			return
		}
		d.countMarkRead("ok")
	}()
	return nil
}

// CreateDM finds or creates the direct channel with memberID and caches it.
// Transient failures are queued so the channel appears once the server is
// reachable again.
func (d *Directory) CreateDM(ctx context.Context, memberID string) (*store.Channel, error) {
	if memberID == "" {
		return nil, &ValidationError{Field: "member", Reason: "member id is required"}
	}
	remote, err := d.gw.FindOrCreateDM(ctx, memberID)
	if err != nil {
		var netErr *gateway.NetworkError
		if errors.As(err, &netErr) {
			if _, qerr := d.db.EnqueueOp(store.OpCreateChannel, map[string]any{"member_id": memberID}); qerr != nil {
				d.logger.Error("failed to queue dm creation", zap.String("member_id", memberID), zap.Error(qerr))
			}
			d.updatePendingGauge()
		}
		return nil, fmt.Errorf("create dm with %q: %w", memberID, err)
	}
	return d.storeDM(remote, memberID)
}

func (d *Directory) storeDM(remote *gateway.Channel, memberID string) (*store.Channel, error) {
	ch := remote.ToStore()
	ch.Type = store.ChannelDirect
	ch.UnreadCount = 0
	if local, err := d.db.GetChannel(ch.ID); err == nil && local != nil {
		ch.UnreadCount = local.UnreadCount
	}
	if ch.Name == "" {
		if m, err := d.db.GetMember(memberID); err == nil && m != nil {
			ch.Name = m.Name
		}
	}
	if err := d.db.UpsertChannel(&ch); err != nil {
		return nil, fmt.Errorf("store dm %q: %w", ch.ID, err)
	}
	emitChannels(d.bus, ch.ID)
	return &ch, nil
}

// Remove drops a channel the server reported as missing, with its messages.
func (d *Directory) Remove(channelID string) error {
	if err := d.db.DeleteChannel(channelID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("remove channel %q: %w", channelID, err)
	}
	d.logger.Info("channel removed", zap.String("channel_id", channelID))
	emitChannels(d.bus, channelID)
	d.updateUnreadGauge()
	return nil
}

// ReplayPending retries queued mark-read and channel creation operations.
// It returns how many operations completed.
func (d *Directory) ReplayPending(ctx context.Context) (int, error) {
	if !d.replayMu.TryLock() {
		return 0, nil
	}
	defer d.replayMu.Unlock()
	defer d.updatePendingGauge()

	ops, err := d.db.ReadyOps(replayBatch, store.OpMarkRead, store.OpCreateChannel)
	if err != nil {
		return 0, fmt.Errorf("read pending ops: %w", err)
	}

	done := 0
	for _, op := range ops {
		if err := d.replay(ctx, op); err != nil {
			dropped, nerr := d.db.NackOp(op.ID)
			if nerr != nil {
				d.logger.Error("failed to record op attempt", zap.Int64("op_id", op.ID), zap.Error(nerr))
				continue
			}
			if dropped {
				d.logger.Warn("pending op dropped", zap.Int64("op_id", op.ID), zap.String("kind", string(op.Kind)), zap.Error(err))
				if op.Kind == store.OpMarkRead {
					d.countMarkRead("dropped")
				}
			}
			continue
		}
		if err := d.db.AckOp(op.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			d.logger.Error("failed to ack op", zap.Int64("op_id", op.ID), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}

func (d *Directory) replay(ctx context.Context, op store.PendingOp) error {
	switch op.Kind {
	case store.OpMarkRead:
		channelID, _ := op.Payload["channel_id"].(string)
		if channelID == "" {
			return nil
		}
		if err := d.gw.MarkChannelAsRead(ctx, channelID); err != nil {
			return err
		}
		d.countMarkRead("ok")
		return nil
	case store.OpCreateChannel:
		memberID, _ := op.Payload["member_id"].(string)
		if memberID == "" {
			return nil
		}
		remote, err := d.gw.FindOrCreateDM(ctx, memberID)
		if err != nil {
			return err
		}
		_, err = d.storeDM(remote, memberID)
		return err
	default:
		return nil
	}
}

// Wait blocks until background mark-read calls have finished.
func (d *Directory) Wait() {
	d.wg.Wait()
}

func (d *Directory) countMarkRead(result string) {
	if d.metrics != nil {
		d.metrics.MarkReads.WithLabelValues(result).Inc()
	}
}

func (d *Directory) updateUnreadGauge() {
	if d.metrics == nil {
		return
	}
	if total, err := d.db.UnreadTotal(); err == nil {
		d.metrics.UnreadTotal.Set(float64(total))
	}
}

func (d *Directory) updatePendingGauge() {
	if d.metrics == nil {
		return
	}
	if n, err := d.db.PendingOpCount(); err == nil {
		d.metrics.PendingOps.Set(float64(n))
	}
}
