package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/matheus3301/admiral/internal/bus"
	"github.com/matheus3301/admiral/internal/gateway"
	"github.com/matheus3301/admiral/internal/store"
	"go.uber.org/zap"
)

// Messages fetches channel history and merges it into the cache. Merging is
// keyed on message id only; temporary records belong to the Pipeline.
type Messages struct {
	db     *store.DB
	gw     Gateway
	dir    *Directory
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMessages creates a message repository.
func NewMessages(db *store.DB, gw Gateway, dir *Directory, b *bus.Bus, logger *zap.Logger) *Messages {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Messages{db: db, gw: gw, dir: dir, bus: b, logger: logger}
}

// Fetch loads a page of history from the server, merges it and returns the
// matching local window. A channel the server no longer knows is removed and
// the *gateway.NotFoundError is returned.
func (r *Messages) Fetch(ctx context.Context, channelID string, opts gateway.FetchOptions) ([]store.Message, error) {
	remote, err := r.gw.FetchMessages(ctx, channelID, opts)
	if err != nil {
		var nf *gateway.NotFoundError
		if errors.As(err, &nf) {
			if rerr := r.dir.Remove(channelID); rerr != nil {
				r.logger.Error("failed to drop missing channel", zap.String("channel_id", channelID), zap.Error(rerr))
			}
		}
		return nil, fmt.Errorf("fetch %q: %w", channelID, err)
	}

	batch := make([]store.Message, 0, len(remote))
	for _, m := range remote {
		if m.ID == "" || store.IsTempID(m.ID) {
			r.logger.Warn("skipping message without server id", zap.String("channel_id", channelID))
			continue
		}
		sm := m.ToStore(store.StatusDelivered)
		sm.ChannelID = channelID
		batch = append(batch, sm)
	}
	if err := r.db.MergeMessages(batch); err != nil {
		return nil, fmt.Errorf("merge %q: %w", channelID, err)
	}
	if len(batch) > 0 {
		emitMessages(r.bus, channelID, "", "")
	}
	return r.db.ListMessages(channelID, opts.Limit, opts.Before)
}

// List returns the newest limit cached messages of a channel, oldest first.
func (r *Messages) List(channelID string, limit int) ([]store.Message, error) {
	return r.db.ListMessages(channelID, limit, 0)
}

// Query is the lazy form of List with an optional upper time bound.
func (r *Messages) Query(channelID string, limit int, before int64) iter.Seq2[store.Message, error] {
	return r.db.QueryMessages(channelID, limit, before)
}

// LoadOlder fetches the page preceding the oldest cached message.
func (r *Messages) LoadOlder(ctx context.Context, channelID string, limit int) ([]store.Message, error) {
	oldest, err := r.db.OldestMessageAt(channelID)
	if err != nil {
		return nil, fmt.Errorf("oldest message of %q: %w", channelID, err)
	}
	return r.Fetch(ctx, channelID, gateway.FetchOptions{Before: oldest, Limit: limit})
}
