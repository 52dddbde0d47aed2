package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

const broadcastColumns = `b.id, b.sender_id, b.title, b.content, b.target_roles, b.target_users, b.target_regions,
	b.is_emergency, b.is_active, b.expires_at, b.sent_count, b.read_count, b.created_at`

func scanBroadcast(row rowScanner, extra ...any) (*model.Broadcast, error) {
	var (
		b         model.Broadcast
		roles     string
		users     string
		regions   string
		expiresAt sql.NullInt64
		createdAt int64
	)
	dest := []any{&b.ID, &b.SenderID, &b.Title, &b.Content, &roles, &users, &regions,
		&b.IsEmergency, &b.IsActive, &expiresAt, &b.SentCount, &b.ReadCount, &createdAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &b.TargetRoles); err != nil {
		return nil, fmt.Errorf("decode target roles: %w", err)
	}
	if err := json.Unmarshal([]byte(users), &b.TargetUserIDs); err != nil {
		return nil, fmt.Errorf("decode target users: %w", err)
	}
	if err := json.Unmarshal([]byte(regions), &b.TargetRegions); err != nil {
		return nil, fmt.Errorf("decode target regions: %w", err)
	}
	b.ExpiresAt = timePtr(expiresAt)
	b.CreatedAt = fromMillis(createdAt)
	return &b, nil
}

func encodeList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// InsertBroadcast stores a broadcast with its resolved recipient set. SentCount is
// set from the number of recipients.
func (db *DB) InsertBroadcast(ctx context.Context, b *model.Broadcast, recipients []string) error {
	roles, err := encodeList(b.TargetRoles)
	if err != nil {
		return fmt.Errorf("encode target roles: %w", err)
	}
	users, err := encodeList(b.TargetUserIDs)
	if err != nil {
		return fmt.Errorf("encode target users: %w", err)
	}
	regions, err := encodeList(b.TargetRegions)
	if err != nil {
		return fmt.Errorf("encode target regions: %w", err)
	}
	b.SentCount = len(recipients)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO broadcasts (id, sender_id, title, content, target_roles, target_users, target_regions,
			is_emergency, is_active, expires_at, sent_count, read_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		b.ID, b.SenderID, b.Title, b.Content, roles, users, regions,
		b.IsEmergency, b.IsActive, nullMillis(b.ExpiresAt), b.SentCount, toMillis(b.CreatedAt)); err != nil {
		return fmt.Errorf("insert broadcast: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO broadcast_recipients (broadcast_id, user_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare recipients: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, uid := range recipients {
		if _, err := stmt.ExecContext(ctx, b.ID, uid); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	return tx.Commit()
}

// GetBroadcast returns a broadcast without receipt annotation.
func (db *DB) GetBroadcast(ctx context.Context, id string) (*model.Broadcast, error) {
	row := db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts b WHERE b.id = ?`, id)
	b, err := scanBroadcast(row)
	if err != nil {
		return nil, notFound(err, "broadcast")
	}
	return b, nil
}

// GetRecipientReceipt reports whether userID is a recipient of the broadcast and when they read it.
func (db *DB) GetRecipientReceipt(ctx context.Context, broadcastID, userID string) (bool, *time.Time, error) {
	var readAt sql.NullInt64
	err := db.QueryRowContext(ctx, `
		SELECT read_at FROM broadcast_recipients WHERE broadcast_id = ? AND user_id = ?`,
		broadcastID, userID).Scan(&readAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, timePtr(readAt), nil
}

// ListBroadcastsForUser returns active, unexpired broadcasts addressed to userID,
// newest first, annotated with the user's receipt.
func (db *DB) ListBroadcastsForUser(ctx context.Context, userID string, now time.Time) ([]model.Broadcast, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+broadcastColumns+`, r.read_at
		FROM broadcasts b
		JOIN broadcast_recipients r ON r.broadcast_id = b.id
		WHERE r.user_id = ? AND b.is_active = 1 AND (b.expires_at IS NULL OR b.expires_at > ?)
		ORDER BY b.created_at DESC, b.id DESC`, userID, toMillis(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Broadcast
	for rows.Next() {
		var readAt sql.NullInt64
		b, err := scanBroadcast(rows, &readAt)
		if err != nil {
			return nil, err
		}
		b.ReadAt = timePtr(readAt)
		b.IsRead = b.ReadAt != nil
		out = append(out, *b)
	}
	return out, rows.Err()
}

// MarkBroadcastRead records the first read of a broadcast by a recipient and
// increments the read counter. Later calls are no-ops. It reports whether this
// call performed the transition.
func (db *DB) MarkBroadcastRead(ctx context.Context, broadcastID, userID string, now time.Time) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE broadcast_recipients SET read_at = ?
		WHERE broadcast_id = ? AND user_id = ? AND read_at IS NULL`,
		toMillis(now), broadcastID, userID)
	if err != nil {
		return false, fmt.Errorf("record receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM broadcast_recipients WHERE broadcast_id = ? AND user_id = ?`,
			broadcastID, userID).Scan(&exists)
		if err != nil {
			return false, notFound(err, "broadcast recipient")
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE broadcasts SET read_count = read_count + 1 WHERE id = ?`, broadcastID); err != nil {
		return false, fmt.Errorf("increment read count: %w", err)
	}
	return true, tx.Commit()
}

// DeactivateBroadcast hides a broadcast from recipients.
func (db *DB) DeactivateBroadcast(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE broadcasts SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate broadcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("broadcast: %w", model.ErrNotFound)
	}
	return nil
}

// CountUnreadBroadcasts counts active, unexpired broadcasts the user has not read.
func (db *DB) CountUnreadBroadcasts(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM broadcast_recipients r
		JOIN broadcasts b ON b.id = r.broadcast_id
		WHERE r.user_id = ? AND r.read_at IS NULL AND b.is_active = 1
			AND (b.expires_at IS NULL OR b.expires_at > ?)`, userID, toMillis(now)).Scan(&n)
	return n, err
}
