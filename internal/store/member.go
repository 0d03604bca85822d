package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertMembers replaces cached member details in a single transaction.
// Empty fields in the incoming record keep the stored value.
func (db *DB) UpsertMembers(members []Member) error {
	now := time.Now().UnixMilli()
	return db.inTx(func(tx *sql.Tx) error {
		for _, m := range members {
			if _, err := tx.Exec(`
				INSERT INTO members (id, name, email, avatar_url, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = CASE WHEN excluded.name != '' THEN excluded.name ELSE members.name END,
					email = CASE WHEN excluded.email != '' THEN excluded.email ELSE members.email END,
					avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE members.avatar_url END,
					updated_at = excluded.updated_at`,
				m.ID, m.Name, m.Email, m.AvatarURL, now); err != nil {
				return fmt.Errorf("upsert member %q: %w", m.ID, err)
			}
		}
		return nil
	})
}

// ListMembers returns cached members ordered by name.
func (db *DB) ListMembers() ([]Member, error) {
	rows, err := db.Query(`SELECT id, name, email, avatar_url FROM members ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Email, &m.AvatarURL); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetMember returns a member by id, or nil.
func (db *DB) GetMember(id string) (*Member, error) {
	var m Member
	err := db.QueryRow(`SELECT id, name, email, avatar_url FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Email, &m.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
