package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const channelColumns = `id, type, name, slug, description, participants, unread_count, last_message_at, last_message_preview, cached_at`

// upsertChannelSQL never moves last_message_at or the preview backwards, so a
// directory refresh cannot hide a newer optimistic send.
const upsertChannelSQL = `
	INSERT INTO channels (` + channelColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		type = excluded.type,
		name = excluded.name,
		slug = excluded.slug,
		description = excluded.description,
		participants = excluded.participants,
		unread_count = excluded.unread_count,
		last_message_preview = CASE WHEN excluded.last_message_at >= channels.last_message_at
			THEN excluded.last_message_preview ELSE channels.last_message_preview END,
		last_message_at = MAX(channels.last_message_at, excluded.last_message_at),
		cached_at = excluded.cached_at`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertChannel(ex execer, c *Channel, now int64) error {
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	_, err := ex.Exec(upsertChannelSQL,
		c.ID, string(c.Type), c.Name, c.Slug, c.Description, strings.Join(c.Participants, ","),
		c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now)
	return err
}

// UpsertChannel inserts or updates a channel record.
func (db *DB) UpsertChannel(c *Channel) error {
	return upsertChannel(db, c, time.Now().UnixMilli())
}

// UpsertChannels inserts or updates a batch of channels in a single transaction.
func (db *DB) UpsertChannels(channels []Channel) error {
	now := time.Now().UnixMilli()
	return db.inTx(func(tx *sql.Tx) error {
		for i := range channels {
			if err := upsertChannel(tx, &channels[i], now); err != nil {
				return fmt.Errorf("upsert channel %q: %w", channels[i].ID, err)
			}
		}
		return nil
	})
}

// ListChannels returns all channels, most recently active first.
func (db *DB) ListChannels() ([]Channel, error) {
	rows, err := db.Query(`SELECT ` + channelColumns + ` FROM channels
		ORDER BY last_message_at DESC, name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var channels []Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// GetChannel returns a single channel by id, or nil if it is not cached.
func (db *DB) GetChannel(id string) (*Channel, error) {
	c, err := scanChannel(db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChannelBySlug returns the channel with the given slug, or nil.
func (db *DB) GetChannelBySlug(slug string) (*Channel, error) {
	c, err := scanChannel(db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE slug = ? ORDER BY id LIMIT 1`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteChannel removes a channel and every message cached for it.
func (db *DB) DeleteChannel(id string) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM messages WHERE channel_id = ?`, id); err != nil {
			return fmt.Errorf("delete channel messages: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM channels WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete channel: %w", err)
		}
		return affected(res)
	})
}

// ApplyChannelDelta adds newCount to the channel's unread counter and raises
// last_message_at. It reports false when the channel is not cached.
func (db *DB) ApplyChannelDelta(id string, newCount int, lastMessageAt int64) (bool, error) {
	if newCount < 0 {
		newCount = 0
	}
	res, err := db.Exec(`
		UPDATE channels SET
			unread_count = unread_count + ?,
			last_message_at = MAX(last_message_at, ?),
			cached_at = ?
		WHERE id = ?`, newCount, lastMessageAt, time.Now().UnixMilli(), id)
	if err != nil {
		return false, err
	}
	if err := affected(res); err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SetUnread overwrites the unread counter of a channel.
func (db *DB) SetUnread(id string, n int) error {
	if n < 0 {
		n = 0
	}
	res, err := db.Exec(`UPDATE channels SET unread_count = ? WHERE id = ?`, n, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// UnreadTotal sums the unread counters of all channels.
func (db *DB) UnreadTotal() (int, error) {
	var total int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM channels`).Scan(&total)
	return total, err
}

// ChannelCount returns the total number of cached channels.
func (db *DB) ChannelCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM channels`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (Channel, error) {
	var (
		c            Channel
		typ          string
		participants string
	)
	err := r.Scan(&c.ID, &typ, &c.Name, &c.Slug, &c.Description, &participants,
		&c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.CachedAt)
	if err != nil {
		return Channel{}, err
	}
	c.Type = ChannelType(typ)
	if participants != "" {
		c.Participants = strings.Split(participants, ",")
	}
	return c, nil
}
