package store

// SearchMessages performs a full-text search on cached message bodies,
// newest first. An empty channelID searches every channel.
func (db *DB) SearchMessages(query string, channelID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	q := `
		SELECT m.id, m.channel_id, m.sender_id, m.sender_name, m.body, m.kind,
		       m.reply_to, m.status, m.local_only, m.created_at,
		       snippet(messages_fts, '<<', '>>', '...', -1, 16)
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if channelID != "" {
		q += " AND m.channel_id = ?"
		args = append(args, channelID)
	}
	q += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var (
			r      SearchResult
			kind   string
			status string
		)
		if err := rows.Scan(
			&r.Message.ID, &r.Message.ChannelID, &r.Message.SenderID,
			&r.Message.SenderName, &r.Message.Body, &kind,
			&r.Message.ReplyTo, &status, &r.Message.LocalOnly,
			&r.Message.CreatedAt, &r.Snippet,
		); err != nil {
			return nil, err
		}
		r.Message.Kind = MessageKind(kind)
		r.Message.Status = MessageStatus(status)
		results = append(results, r)
	}
	return results, rows.Err()
}
