package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

const messageColumns = `id, conversation_id, sender_id, client_nonce, content, message_type, status,
	attachment_url, attachment_name, attachment_size, attachment_type, thumbnail_url, reply_to_id,
	is_pinned, is_edited, is_deleted, is_high_priority, is_emergency, created_at, updated_at`

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m         model.Message
		content   sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ClientNonce, &content, &m.MessageType, &m.Status,
		&m.AttachmentURL, &m.AttachmentName, &m.AttachmentSize, &m.AttachmentType, &m.ThumbnailURL, &m.ReplyToID,
		&m.IsPinned, &m.IsEdited, &m.IsDeleted, &m.IsHighPriority, &m.IsEmergency, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if content.Valid {
		s := content.String
		m.Content = &s
	}
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return &m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// InsertMessage appends m to its conversation. Within one transaction it assigns a
// timestamp strictly greater than any earlier message of the conversation, updates
// the conversation's last-message cache and increments unread for every other
// active participant. m.CreatedAt is used as the clock reading and overwritten
// with the assigned timestamp.
func (db *DB) InsertMessage(ctx context.Context, m *model.Message) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`, m.ConversationID).Scan(&last); err != nil {
		return fmt.Errorf("read last timestamp: %w", err)
	}
	ts := toMillis(m.CreatedAt)
	if last.Valid && ts <= last.Int64 {
		ts = last.Int64 + 1
	}
	m.CreatedAt = fromMillis(ts)
	m.UpdatedAt = m.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.ClientNonce, nullString(m.Content), m.MessageType, m.Status,
		m.AttachmentURL, m.AttachmentName, m.AttachmentSize, m.AttachmentType, m.ThumbnailURL, m.ReplyToID,
		m.IsPinned, m.IsEdited, m.IsDeleted, m.IsHighPriority, m.IsEmergency, ts, ts); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_at = ?, last_message_preview = ?, updated_at = ?
		WHERE id = ?`,
		ts, m.Preview(), ts, m.ConversationID); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE participants
		SET unread_count = unread_count + 1
		WHERE conversation_id = ? AND user_id != ? AND left_at IS NULL`,
		m.ConversationID, m.SenderID); err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}

	return tx.Commit()
}

// GetMessage returns a message with its reactions.
func (db *DB) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, notFound(err, "message")
	}
	reactions, err := db.loadReactions(ctx, []string{m.ID})
	if err != nil {
		return nil, err
	}
	m.Reactions = reactions[m.ID]
	return m, nil
}

// ListMessages returns a window of a conversation's messages, oldest first, as seen
// by viewerID: messages the viewer hid are skipped, and when until is set only
// messages at or before it are returned. The second result reports whether more
// messages exist beyond the window in the direction of travel.
func (db *DB) ListMessages(ctx context.Context, conversationID, viewerID string, opts model.ListMessagesOptions, until *time.Time) ([]model.Message, bool, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		where = []string{
			"conversation_id = ?",
			"id NOT IN (SELECT message_id FROM message_hides WHERE user_id = ?)",
		}
		args  = []any{conversationID, viewerID}
		order = "DESC"
	)
	if until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, toMillis(*until))
	}
	switch {
	case opts.After > 0:
		where = append(where, "created_at > ?")
		args = append(args, opts.After)
		order = "ASC"
	case opts.Before > 0:
		where = append(where, "created_at < ?")
		args = append(args, opts.Before)
	}
	args = append(args, limit+1)

	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at `+order+`
		LIMIT ?`, args...)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, false, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	if order == "DESC" {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}

	if err := db.decorate(ctx, conversationID, msgs); err != nil {
		return nil, false, err
	}
	return msgs, hasMore, nil
}

// decorate fills reactions and per-participant read receipts.
func (db *DB) decorate(ctx context.Context, conversationID string, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	for i := range msgs {
		ids[i] = msgs[i].ID
	}
	reactions, err := db.loadReactions(ctx, ids)
	if err != nil {
		return err
	}
	participants, err := db.ListParticipants(ctx, conversationID)
	if err != nil {
		return err
	}

	for i := range msgs {
		m := &msgs[i]
		m.Reactions = reactions[m.ID]
		for _, p := range participants {
			if p.UserID == m.SenderID || p.LastReadAt == nil {
				continue
			}
			if !p.LastReadAt.Before(m.CreatedAt) {
				m.ReadBy = append(m.ReadBy, p.UserID)
			}
		}
	}
	return nil
}

func (db *DB) loadReactions(ctx context.Context, messageIDs []string) (map[string]map[string][]string, error) {
	out := make(map[string]map[string][]string)
	if len(messageIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, `
		SELECT message_id, emoji, user_id
		FROM message_reactions
		WHERE message_id IN (`+placeholders+`)
		ORDER BY created_at, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return nil, err
		}
		if out[messageID] == nil {
			out[messageID] = make(map[string][]string)
		}
		out[messageID][emoji] = append(out[messageID][emoji], userID)
	}
	return out, rows.Err()
}

// MarkDelivered advances SENT messages not authored by viewerID to DELIVERED,
// up to and including the given timestamp.
func (db *DB) MarkDelivered(ctx context.Context, conversationID, viewerID string, upTo time.Time) error {
	_, err := db.ExecContext(ctx, `
		UPDATE messages
		SET status = ?
		WHERE conversation_id = ? AND sender_id != ? AND status = ? AND created_at <= ?`,
		model.StatusDelivered, conversationID, viewerID, model.StatusSent, toMillis(upTo))
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// ToggleReaction adds userID under emoji, or removes them if already present.
// It reports whether the reaction is present afterwards.
func (db *DB) ToggleReaction(ctx context.Context, messageID, emoji, userID string, now time.Time) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		DELETE FROM message_reactions WHERE message_id = ? AND emoji = ? AND user_id = ?`,
		messageID, emoji, userID)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	removed, _ := res.RowsAffected()
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, emoji, user_id, created_at) VALUES (?, ?, ?, ?)`,
			messageID, emoji, userID, toMillis(now)); err != nil {
			return false, fmt.Errorf("add reaction: %w", err)
		}
	}
	return removed == 0, tx.Commit()
}

// SoftDeleteMessage replaces a message's content with the deletion marker, clears
// its attachment references and refreshes the conversation preview.
func (db *DB) SoftDeleteMessage(ctx context.Context, id string, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var conversationID string
	if err := tx.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID); err != nil {
		return notFound(err, "message")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET content = ?, is_deleted = 1, is_pinned = 0,
			attachment_url = '', attachment_name = '', attachment_size = 0,
			attachment_type = '', thumbnail_url = '', updated_at = ?
		WHERE id = ?`,
		model.DeletedMarker, toMillis(now), id); err != nil {
		return fmt.Errorf("soft delete: %w", err)
	}

	if err := refreshPreview(ctx, tx, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// refreshPreview recomputes the preview from the newest non-deleted message.
func refreshPreview(ctx context.Context, tx *sql.Tx, conversationID string) error {
	row := tx.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND is_deleted = 0
		ORDER BY created_at DESC
		LIMIT 1`, conversationID)
	preview := ""
	m, err := scanMessage(row)
	switch {
	case err == nil:
		preview = m.Preview()
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("load latest message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_preview = ? WHERE id = ?`, preview, conversationID); err != nil {
		return fmt.Errorf("update preview: %w", err)
	}
	return nil
}

// HideMessage suppresses a message for one user without touching the shared row.
func (db *DB) HideMessage(ctx context.Context, id, userID string, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO message_hides (message_id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(message_id, user_id) DO NOTHING`, id, userID, toMillis(now))
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

// EditMessage replaces the content of a message and marks it edited.
func (db *DB) EditMessage(ctx context.Context, id, content string, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var conversationID string
	if err := tx.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID); err != nil {
		return notFound(err, "message")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_edited = 1, updated_at = ? WHERE id = ?`,
		content, toMillis(now), id); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	if err := refreshPreview(ctx, tx, conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMessagePinned pins or unpins a message.
func (db *DB) SetMessagePinned(ctx context.Context, id string, pinned bool, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET is_pinned = ?, updated_at = ? WHERE id = ?`, pinned, toMillis(now), id)
	if err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message: %w", model.ErrNotFound)
	}
	return nil
}
