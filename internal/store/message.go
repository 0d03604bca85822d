package store

import (
	"database/sql"
	"fmt"
	"iter"
	"math"
	"unicode/utf8"
)

// DefaultPageSize is used when a caller asks for a non-positive limit.
const DefaultPageSize = 50

// PreviewLength is the number of characters kept in a channel preview.
const PreviewLength = 50

const messageColumns = `id, channel_id, sender_id, sender_name, body, kind, reply_to, status, local_only, created_at`

const upsertMessageSQL = `
	INSERT INTO messages (` + messageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		channel_id = excluded.channel_id,
		sender_id = excluded.sender_id,
		sender_name = excluded.sender_name,
		body = excluded.body,
		kind = excluded.kind,
		reply_to = excluded.reply_to,
		status = excluded.status,
		local_only = excluded.local_only,
		created_at = excluded.created_at`

// Preview shortens a message body for display next to a channel name.
func Preview(body string) string {
	if utf8.RuneCountInString(body) <= PreviewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:PreviewLength])
}

func upsertMessage(ex execer, m *Message) error {
	if m.Kind == "" {
		m.Kind = KindText
	}
	_, err := ex.Exec(upsertMessageSQL,
		m.ID, m.ChannelID, m.SenderID, m.SenderName, m.Body, string(m.Kind), m.ReplyTo,
		string(m.Status), m.LocalOnly, m.CreatedAt)
	return err
}

func touchChannel(ex execer, m *Message) error {
	_, err := ex.Exec(`
		UPDATE channels SET last_message_at = ?, last_message_preview = ?
		WHERE id = ? AND last_message_at <= ?`,
		m.CreatedAt, Preview(m.Body), m.ChannelID, m.CreatedAt)
	return err
}

// UpsertMessage inserts or updates a message (idempotent on id).
func (db *DB) UpsertMessage(m *Message) error {
	return upsertMessage(db, m)
}

// GetMessage returns a message by id, or nil if it is not cached.
func (db *DB) GetMessage(id string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessage removes a message by id.
func (db *DB) DeleteMessage(id string) error {
	res, err := db.Exec(`DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// QueryMessages returns the newest limit messages of a channel created strictly
// before the given unix ms timestamp, in ascending (created_at, id) order. A
// zero before means no upper bound. Every range over the sequence re-runs the
// query against the current table contents.
func (db *DB) QueryMessages(channelID string, limit int, before int64) iter.Seq2[Message, error] {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if before <= 0 {
		before = math.MaxInt64
	}
	return func(yield func(Message, error) bool) {
		rows, err := db.Query(`
			SELECT `+messageColumns+` FROM (
				SELECT `+messageColumns+` FROM messages
				WHERE channel_id = ? AND created_at < ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			) ORDER BY created_at ASC, id ASC`, channelID, before, limit)
		if err != nil {
			yield(Message{}, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				yield(Message{}, err)
				return
			}
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Message{}, err)
		}
	}
}

// ListMessages collects QueryMessages into a slice.
func (db *DB) ListMessages(channelID string, limit int, before int64) ([]Message, error) {
	var msgs []Message
	for m, err := range db.QueryMessages(channelID, limit, before) {
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// OldestMessageAt returns the creation time of the oldest cached message of a
// channel, or 0 when the channel has none.
func (db *DB) OldestMessageAt(channelID string) (int64, error) {
	var ts sql.NullInt64
	err := db.QueryRow(`SELECT MIN(created_at) FROM messages WHERE channel_id = ?`, channelID).Scan(&ts)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// AddMessage stores a message and moves the owning channel's preview forward
// in one transaction.
func (db *DB) AddMessage(m *Message) error {
	return db.inTx(func(tx *sql.Tx) error {
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := touchChannel(tx, m); err != nil {
			return fmt.Errorf("update channel preview: %w", err)
		}
		return nil
	})
}

// ReplaceMessage swaps the record stored under oldID for m atomically.
func (db *DB) ReplaceMessage(oldID string, m *Message) error {
	return db.inTx(func(tx *sql.Tx) error {
		if oldID != m.ID {
			if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, oldID); err != nil {
				return fmt.Errorf("delete %q: %w", oldID, err)
			}
		}
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if err := touchChannel(tx, m); err != nil {
			return fmt.Errorf("update channel preview: %w", err)
		}
		return nil
	})
}

// SetMessageStatus updates the delivery status of a message. Only confirmed
// statuses clear the local-only flag.
func (db *DB) SetMessageStatus(id string, status MessageStatus) error {
	res, err := db.Exec(`UPDATE messages SET status = ?, local_only = ? WHERE id = ?`,
		string(status), !status.Confirmed(), id)
	if err != nil {
		return err
	}
	return affected(res)
}

// MergeMessages upserts a fetched batch in a single transaction.
func (db *DB) MergeMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return db.inTx(func(tx *sql.Tx) error {
		for i := range msgs {
			if err := upsertMessage(tx, &msgs[i]); err != nil {
				return fmt.Errorf("merge message %q: %w", msgs[i].ID, err)
			}
		}
		return nil
	})
}

// MessageCount returns the total number of cached messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

func scanMessage(r rowScanner) (Message, error) {
	var (
		m      Message
		kind   string
		status string
	)
	if err := r.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.Body, &kind,
		&m.ReplyTo, &status, &m.LocalOnly, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.Kind = MessageKind(kind)
	m.Status = MessageStatus(status)
	return m, nil
}
