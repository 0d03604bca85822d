package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func encodePayload(payload map[string]any) ([]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	s, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func decodePayload(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return map[string]any{}, nil
	}
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}

// EnqueueOp records an operation to be retried later and returns its id.
func (db *DB) EnqueueOp(kind OpKind, payload map[string]any) (int64, error) {
	b, err := encodePayload(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	res, err := db.Exec(`INSERT INTO pending_ops (kind, payload, created_at, attempts) VALUES (?, ?, ?, 0)`,
		string(kind), b, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReadyOps returns up to limit queued operations, oldest first. When kinds
// are given only operations of those kinds are returned.
func (db *DB) ReadyOps(limit int, kinds ...OpKind) ([]PendingOp, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := `SELECT id, kind, payload, created_at, attempts FROM pending_ops WHERE attempts < ?`
	args := []any{MaxOpAttempts}
	if len(kinds) > 0 {
		q += " AND kind IN (?" + strings.Repeat(", ?", len(kinds)-1) + ")"
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	q += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ops []PendingOp
	for rows.Next() {
		var (
			op      PendingOp
			kind    string
			payload []byte
		)
		if err := rows.Scan(&op.ID, &kind, &payload, &op.CreatedAt, &op.Attempts); err != nil {
			return nil, err
		}
		op.Kind = OpKind(kind)
		if op.Payload, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("decode op %d: %w", op.ID, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// AckOp removes a completed operation.
func (db *DB) AckOp(id int64) error {
	res, err := db.Exec(`DELETE FROM pending_ops WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affected(res)
}

// NackOp records a failed attempt. Operations reaching MaxOpAttempts are
// dropped; dropped reports whether that happened.
func (db *DB) NackOp(id int64) (dropped bool, err error) {
	err = db.inTx(func(tx *sql.Tx) error {
		var attempts int
		if err := tx.QueryRow(`SELECT attempts FROM pending_ops WHERE id = ?`, id).Scan(&attempts); err != nil {
			if err == sql.ErrNoRows {
				return ErrNotFound
			}
			return err
		}
		attempts++
		if attempts >= MaxOpAttempts {
			dropped = true
			_, err := tx.Exec(`DELETE FROM pending_ops WHERE id = ?`, id)
			return err
		}
		_, err := tx.Exec(`UPDATE pending_ops SET attempts = ? WHERE id = ?`, attempts, id)
		return err
	})
	return dropped, err
}

// PendingOpCount returns the number of queued operations.
func (db *DB) PendingOpCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_ops`).Scan(&count)
	return count, err
}
