package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

const conversationColumns = `id, type, name, avatar, description, created_by, is_active,
	last_message_at, last_message_preview, created_at, updated_at`

const participantColumns = `conversation_id, user_id, role, joined_at, left_at, unread_count,
	last_read_at, is_muted, is_pinned, is_blocked`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var (
		c             model.Conversation
		lastMessageAt sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)
	if err := row.Scan(&c.ID, &c.Type, &c.Name, &c.Avatar, &c.Description, &c.CreatedBy, &c.IsActive,
		&lastMessageAt, &c.LastMessagePreview, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.LastMessageAt = timePtr(lastMessageAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var (
		p          model.Participant
		joinedAt   int64
		leftAt     sql.NullInt64
		lastReadAt sql.NullInt64
	)
	if err := row.Scan(&p.ConversationID, &p.UserID, &p.Role, &joinedAt, &leftAt, &p.UnreadCount,
		&lastReadAt, &p.IsMuted, &p.IsPinned, &p.IsBlocked); err != nil {
		return nil, err
	}
	p.JoinedAt = fromMillis(joinedAt)
	p.LeftAt = timePtr(leftAt)
	p.LastReadAt = timePtr(lastReadAt)
	return &p, nil
}

// DirectKey returns the pair key that makes a DIRECT conversation unique per unordered pair.
func DirectKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

func insertConversation(ctx context.Context, tx *sql.Tx, c *model.Conversation, directKey *string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, type, name, avatar, description, direct_key, created_by, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT DO NOTHING`,
		c.ID, c.Type, c.Name, c.Avatar, c.Description, directKey, c.CreatedBy,
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func upsertParticipant(ctx context.Context, tx *sql.Tx, p *model.Participant) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET
			left_at = NULL,
			joined_at = CASE WHEN participants.left_at IS NULL THEN participants.joined_at ELSE excluded.joined_at END,
			unread_count = CASE WHEN participants.left_at IS NULL THEN participants.unread_count ELSE 0 END`,
		p.ConversationID, p.UserID, p.Role, toMillis(p.JoinedAt))
	if err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// CreateConversation inserts a group-style conversation and its participants.
func (db *DB) CreateConversation(ctx context.Context, c *model.Conversation, participants []model.Participant) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	if _, err := insertConversation(ctx, tx, c, nil); err != nil {
		return err
	}
	for i := range participants {
		if err := upsertParticipant(ctx, tx, &participants[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateDirect inserts the DIRECT conversation for the pair unless one already exists.
// It returns the stored conversation and whether it was created by this call. When
// it already existed, whichever member of the pair had left is re-activated.
func (db *DB) CreateDirect(ctx context.Context, c *model.Conversation, requester, other string) (*model.Conversation, bool, error) {
	key := DirectKey(requester, other)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	created, err := insertConversation(ctx, tx, c, &key)
	if err != nil {
		return nil, false, err
	}

	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE direct_key = ?`, key).Scan(&id); err != nil {
		return nil, false, fmt.Errorf("load direct conversation: %w", err)
	}

	now := c.CreatedAt
	for _, uid := range []string{requester, other} {
		if err := upsertParticipant(ctx, tx, &model.Participant{
			ConversationID: id, UserID: uid, Role: model.ParticipantMember, JoinedAt: now,
		}); err != nil {
			return nil, false, err
		}
	}
	if !created {
		if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_active = 1 WHERE id = ?`, id); err != nil {
			return nil, false, fmt.Errorf("reactivate conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	conv, err := db.GetConversation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// GetConversation returns a conversation with all its participant rows.
func (db *DB) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound(err, "conversation")
	}
	c.Participants, err = db.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListParticipants returns every participant row, including those who left.
func (db *DB) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE conversation_id = ?
		ORDER BY joined_at, user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetParticipant returns one participant row.
func (db *DB) GetParticipant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE conversation_id = ? AND user_id = ?`, conversationID, userID)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return p, nil
}

// ListConversationsForUser returns the conversations where userID is an active
// participant, annotated with the caller's own state, most recently active first.
func (db *DB) ListConversationsForUser(ctx context.Context, userID string) ([]model.ConversationView, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.type, c.name, c.avatar, c.description, c.created_by, c.is_active,
			c.last_message_at, c.last_message_preview, c.created_at, c.updated_at,
			p.unread_count, p.is_muted, p.is_pinned, p.is_blocked, p.role
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ? AND p.left_at IS NULL
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.ConversationView
	for rows.Next() {
		var (
			v             model.ConversationView
			lastMessageAt sql.NullInt64
			createdAt     int64
			updatedAt     int64
		)
		if err := rows.Scan(&v.ID, &v.Type, &v.Name, &v.Avatar, &v.Description, &v.CreatedBy, &v.IsActive,
			&lastMessageAt, &v.LastMessagePreview, &createdAt, &updatedAt,
			&v.UnreadCount, &v.IsMuted, &v.IsPinned, &v.IsBlocked, &v.MyRole); err != nil {
			return nil, err
		}
		v.LastMessageAt = timePtr(lastMessageAt)
		v.CreatedAt = fromMillis(createdAt)
		v.UpdatedAt = fromMillis(updatedAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Participants, err = db.ListParticipants(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkConversationRead resets the participant's unread counter, advances their
// read watermark, and advances the conversation-wide status of messages authored
// by others to READ.
func (db *DB) MarkConversationRead(ctx context.Context, conversationID, userID string, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE participants
		SET unread_count = 0,
			last_read_at = MAX(COALESCE(last_read_at, 0), ?)
		WHERE conversation_id = ? AND user_id = ?`,
		toMillis(now), conversationID, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("participant: %w", model.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE messages
		SET status = ?
		WHERE conversation_id = ? AND sender_id != ? AND status != ?`,
		model.StatusRead, conversationID, userID, model.StatusRead); err != nil {
		return fmt.Errorf("advance status: %w", err)
	}

	return tx.Commit()
}

// UpdateParticipantSettings changes the caller's own display flags.
func (db *DB) UpdateParticipantSettings(ctx context.Context, conversationID, userID string, req *model.UpdateSettingsRequest) error {
	res, err := db.ExecContext(ctx, `
		UPDATE participants
		SET is_muted = COALESCE(?, is_muted),
			is_pinned = COALESCE(?, is_pinned),
			is_blocked = COALESCE(?, is_blocked)
		WHERE conversation_id = ? AND user_id = ?`,
		nullBool(req.Muted), nullBool(req.Pinned), nullBool(req.Blocked), conversationID, userID)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("participant: %w", model.ErrNotFound)
	}
	return nil
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// LeaveConversation marks the participant as left. The conversation is
// deactivated when no active participants remain; the return value reports that.
func (db *DB) LeaveConversation(ctx context.Context, conversationID, userID string, now time.Time) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE participants SET left_at = ?, unread_count = 0
		WHERE conversation_id = ? AND user_id = ? AND left_at IS NULL`,
		toMillis(now), conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("leave: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("active participant: %w", model.ErrNotFound)
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM participants WHERE conversation_id = ? AND left_at IS NULL`,
		conversationID).Scan(&remaining); err != nil {
		return false, err
	}

	deactivated := remaining == 0
	if deactivated {
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversations SET is_active = 0, updated_at = ? WHERE id = ?`,
			toMillis(now), conversationID); err != nil {
			return false, fmt.Errorf("deactivate: %w", err)
		}
	}
	return deactivated, tx.Commit()
}

// AddParticipants adds members, re-activating anyone who had left.
func (db *DB) AddParticipants(ctx context.Context, conversationID string, userIDs []string, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	for _, uid := range userIDs {
		if err := upsertParticipant(ctx, tx, &model.Participant{
			ConversationID: conversationID,
			UserID:         uid,
			Role:           model.ParticipantMember,
			JoinedAt:       now,
		}); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET is_active = 1, updated_at = ? WHERE id = ?`,
		toMillis(now), conversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// SumUnread returns the sum of unread counters over the user's active memberships.
func (db *DB) SumUnread(ctx context.Context, userID string) (int, error) {
	var total int
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(unread_count), 0)
		FROM participants
		WHERE user_id = ? AND left_at IS NULL`, userID).Scan(&total)
	return total, err
}
