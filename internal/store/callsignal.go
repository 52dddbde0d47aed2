package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

// SignalLog is the SQLite-backed call signal channel: an append-only log with
// short retention, queried by recipient and timestamp.
type SignalLog struct {
	db        *DB
	retention time.Duration
	now       func() time.Time
}

// NewSignalLog creates a signal log that prunes entries older than retention on append.
func NewSignalLog(db *DB, retention time.Duration) *SignalLog {
	return &SignalLog{db: db, retention: retention, now: time.Now}
}

// Append stores s, assigning its Timestamp: the current time in milliseconds,
// bumped past the newest stored signal so timestamps never repeat.
func (l *SignalLog) Append(ctx context.Context, s *model.CallSignal) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	now := l.now()
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM call_signals`).Scan(&last); err != nil {
		return fmt.Errorf("read last timestamp: %w", err)
	}
	ts := toMillis(now)
	if last.Valid && ts <= last.Int64 {
		ts = last.Int64 + 1
	}
	s.Timestamp = ts

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO call_signals (id, type, call_id, from_user_id, to_user_id, conversation_id, call_type, room_url, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Type, s.CallID, s.FromUserID, s.ToUserID, s.ConversationID, s.CallType, s.RoomURL, s.Timestamp); err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}

	if l.retention > 0 {
		cutoff := toMillis(now.Add(-l.retention))
		if _, err := tx.ExecContext(ctx, `DELETE FROM call_signals WHERE timestamp < ?`, cutoff); err != nil {
			return fmt.Errorf("prune signals: %w", err)
		}
	}

	return tx.Commit()
}

// Since returns signals addressed to userID with a timestamp strictly greater
// than since, oldest first, at most limit of them.
func (l *SignalLog) Since(ctx context.Context, userID string, since int64, limit int) ([]model.CallSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, type, call_id, from_user_id, to_user_id, conversation_id, call_type, room_url, timestamp
		FROM call_signals
		WHERE to_user_id = ? AND timestamp > ?
		ORDER BY timestamp ASC
		LIMIT ?`, userID, since, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.CallSignal
	for rows.Next() {
		var s model.CallSignal
		if err := rows.Scan(&s.ID, &s.Type, &s.CallID, &s.FromUserID, &s.ToUserID,
			&s.ConversationID, &s.CallType, &s.RoomURL, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ready reports whether the backing database answers.
func (l *SignalLog) Ready(ctx context.Context) bool {
	return l.db.PingContext(ctx) == nil
}
