package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardforce/messaging-platform/internal/model"
)

var base = time.UnixMilli(1_700_000_000_000).UTC()

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createGroup(t *testing.T, db *DB, id string, members ...string) {
	t.Helper()
	c := &model.Conversation{
		ID: id, Type: model.ConversationGroup, Name: "Night shift",
		CreatedBy: members[0], CreatedAt: base, UpdatedAt: base,
	}
	var ps []model.Participant
	for i, uid := range members {
		role := model.ParticipantMember
		if i == 0 {
			role = model.ParticipantAdmin
		}
		ps = append(ps, model.Participant{ConversationID: id, UserID: uid, Role: role, JoinedAt: base})
	}
	require.NoError(t, db.CreateConversation(context.Background(), c, ps))
}

func sendText(t *testing.T, db *DB, conv, sender, text string, at time.Time) *model.Message {
	t.Helper()
	m := &model.Message{
		ID:             fmt.Sprintf("%s-%d", sender, at.UnixNano()),
		ConversationID: conv,
		SenderID:       sender,
		Content:        &text,
		MessageType:    model.MessageText,
		Status:         model.StatusSent,
		CreatedAt:      at,
	}
	require.NoError(t, db.InsertMessage(context.Background(), m))
	return m
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, uint(1), result.Version)
	assert.False(t, result.Dirty)
}

func TestCreateDirectReturnsSameConversationForPair(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, created, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c1", Type: model.ConversationDirect, CreatedBy: "alice", CreatedAt: base, UpdatedAt: base,
	}, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, first.Participants, 2)

	second, created, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c2", Type: model.ConversationDirect, CreatedBy: "bob", CreatedAt: base, UpdatedAt: base,
	}, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", second.ID)
}

func TestCreateDirectReactivatesRequesterWhoLeft(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, _, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c1", Type: model.ConversationDirect, CreatedBy: "alice", CreatedAt: base, UpdatedAt: base,
	}, "alice", "bob")
	require.NoError(t, err)

	_, err = db.LeaveConversation(ctx, "c1", "alice", base.Add(time.Minute))
	require.NoError(t, err)

	conv, created, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c3", Type: model.ConversationDirect, CreatedBy: "alice", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base,
	}, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)

	p, err := db.GetParticipant(ctx, conv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, p.Active())
}

func TestCreateDirectReactivatesCounterpartWhoLeft(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, _, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c1", Type: model.ConversationDirect, CreatedBy: "alice", CreatedAt: base, UpdatedAt: base,
	}, "alice", "bob")
	require.NoError(t, err)

	_, err = db.LeaveConversation(ctx, "c1", "bob", base.Add(time.Minute))
	require.NoError(t, err)

	conv, created, err := db.CreateDirect(ctx, &model.Conversation{
		ID: "c2", Type: model.ConversationDirect, CreatedBy: "alice", CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base,
	}, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, conv.IsActive)

	active := 0
	for _, p := range conv.Participants {
		if p.Active() {
			active++
		}
	}
	assert.Equal(t, 2, active)

	sendText(t, db, "c1", "alice", "hello", base.Add(3*time.Minute))
	p, err := db.GetParticipant(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.True(t, p.Active())
	assert.Equal(t, 1, p.UnreadCount)

	views, err := db.ListConversationsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "c1", views[0].ID)
}

func TestInsertMessageAssignsStrictlyIncreasingTimestamps(t *testing.T) {
	db := testDB(t)
	createGroup(t, db, "g1", "alice", "bob", "carol")

	m1 := sendText(t, db, "g1", "alice", "one", base)
	m2 := sendText(t, db, "g1", "bob", "two", base)
	m3 := sendText(t, db, "g1", "alice", "three", base.Add(-time.Second))

	assert.True(t, m2.CreatedAt.After(m1.CreatedAt))
	assert.True(t, m3.CreatedAt.After(m2.CreatedAt))
	assert.Equal(t, m1.CreatedAt.Add(time.Millisecond), m2.CreatedAt)
}

func TestInsertMessageUpdatesPreviewAndUnread(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob", "carol")

	m := sendText(t, db, "g1", "alice", "hello team", base)

	conv, err := db.GetConversation(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "hello team", conv.LastMessagePreview)
	require.NotNil(t, conv.LastMessageAt)
	assert.Equal(t, m.CreatedAt, *conv.LastMessageAt)

	unread := map[string]int{}
	for _, p := range conv.Participants {
		unread[p.UserID] = p.UnreadCount
	}
	assert.Equal(t, map[string]int{"alice": 0, "bob": 1, "carol": 1}, unread)

	total, err := db.SumUnread(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestListMessagesWindows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")

	var sent []*model.Message
	for i := 0; i < 5; i++ {
		sent = append(sent, sendText(t, db, "g1", "alice", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second)))
	}

	latest, hasMore, err := db.ListMessages(ctx, "g1", "bob", model.ListMessagesOptions{Limit: 2}, nil)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, latest, 2)
	assert.Equal(t, "m3", latest[0].Text())
	assert.Equal(t, "m4", latest[1].Text())

	older, hasMore, err := db.ListMessages(ctx, "g1", "bob", model.ListMessagesOptions{Before: sent[3].CreatedAt.UnixMilli(), Limit: 10}, nil)
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, older, 3)
	assert.Equal(t, "m0", older[0].Text())

	newer, hasMore, err := db.ListMessages(ctx, "g1", "bob", model.ListMessagesOptions{After: sent[1].CreatedAt.UnixMilli(), Limit: 2}, nil)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, newer, 2)
	assert.Equal(t, "m2", newer[0].Text())
	assert.Equal(t, "m3", newer[1].Text())
}

func TestListMessagesUntilBoundsHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")

	first := sendText(t, db, "g1", "alice", "before", base)
	sendText(t, db, "g1", "alice", "after", base.Add(time.Minute))

	msgs, _, err := db.ListMessages(ctx, "g1", "bob", model.ListMessagesOptions{}, &first.CreatedAt)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "before", msgs[0].Text())
}

func TestMarkConversationReadAdvancesStatusAndReceipts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob", "carol")

	sendText(t, db, "g1", "alice", "hi", base)
	require.NoError(t, db.MarkDelivered(ctx, "g1", "bob", base.Add(time.Second)))

	msgs, _, err := db.ListMessages(ctx, "g1", "alice", model.ListMessagesOptions{}, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.StatusDelivered, msgs[0].Status)
	assert.Empty(t, msgs[0].ReadBy)

	require.NoError(t, db.MarkConversationRead(ctx, "g1", "bob", base.Add(2*time.Second)))

	msgs, _, err = db.ListMessages(ctx, "g1", "alice", model.ListMessagesOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRead, msgs[0].Status)
	assert.Equal(t, []string{"bob"}, msgs[0].ReadBy)

	p, err := db.GetParticipant(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.Zero(t, p.UnreadCount)

	err = db.MarkConversationRead(ctx, "g1", "mallory", base)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestToggleReaction(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")
	m := sendText(t, db, "g1", "alice", "hi", base)

	present, err := db.ToggleReaction(ctx, m.ID, "👍", "bob", base)
	require.NoError(t, err)
	assert.True(t, present)

	got, err := db.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"👍": {"bob"}}, got.Reactions)

	present, err = db.ToggleReaction(ctx, m.ID, "👍", "bob", base)
	require.NoError(t, err)
	assert.False(t, present)

	got, err = db.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Reactions)
}

func TestSoftDeleteRefreshesPreview(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")

	sendText(t, db, "g1", "alice", "first", base)
	last := sendText(t, db, "g1", "alice", "second", base.Add(time.Second))

	require.NoError(t, db.SoftDeleteMessage(ctx, last.ID, base.Add(time.Minute)))

	got, err := db.GetMessage(ctx, last.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, model.DeletedMarker, got.Text())

	conv, err := db.GetConversation(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "first", conv.LastMessagePreview)

	assert.ErrorIs(t, db.SoftDeleteMessage(ctx, "missing", base), model.ErrNotFound)
}

func TestHideMessageIsPerUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")
	m := sendText(t, db, "g1", "alice", "oops", base)

	require.NoError(t, db.HideMessage(ctx, m.ID, "alice", base))
	require.NoError(t, db.HideMessage(ctx, m.ID, "alice", base))

	mine, _, err := db.ListMessages(ctx, "g1", "alice", model.ListMessagesOptions{}, nil)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, _, err := db.ListMessages(ctx, "g1", "bob", model.ListMessagesOptions{}, nil)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestLeaveConversationDeactivatesWhenEmpty(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")

	deactivated, err := db.LeaveConversation(ctx, "g1", "alice", base)
	require.NoError(t, err)
	assert.False(t, deactivated)

	views, err := db.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, views)

	deactivated, err = db.LeaveConversation(ctx, "g1", "bob", base)
	require.NoError(t, err)
	assert.True(t, deactivated)

	_, err = db.LeaveConversation(ctx, "g1", "bob", base)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListConversationsOrdersByRecentActivity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")
	createGroup(t, db, "g2", "alice", "carol")

	sendText(t, db, "g1", "bob", "old", base.Add(time.Second))
	sendText(t, db, "g2", "carol", "new", base.Add(time.Minute))

	views, err := db.ListConversationsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "g2", views[0].ID)
	assert.Equal(t, 1, views[0].UnreadCount)
	assert.Equal(t, model.ParticipantAdmin, views[0].MyRole)
}

func TestUpdateParticipantSettingsLeavesNilFields(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	createGroup(t, db, "g1", "alice", "bob")

	muted := true
	require.NoError(t, db.UpdateParticipantSettings(ctx, "g1", "bob", &model.UpdateSettingsRequest{Muted: &muted}))
	pinned := true
	require.NoError(t, db.UpdateParticipantSettings(ctx, "g1", "bob", &model.UpdateSettingsRequest{Pinned: &pinned}))

	p, err := db.GetParticipant(ctx, "g1", "bob")
	require.NoError(t, err)
	assert.True(t, p.IsMuted)
	assert.True(t, p.IsPinned)
	assert.False(t, p.IsBlocked)
}

func TestBroadcastReadIsCountedOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	b := &model.Broadcast{
		ID: "b1", SenderID: "admin", Title: "Drill", Content: "Fire drill at 10",
		TargetRoles: []model.Role{model.RoleGuard}, IsActive: true, CreatedAt: base,
	}
	require.NoError(t, db.InsertBroadcast(ctx, b, []string{"g1", "g2"}))
	assert.Equal(t, 2, b.SentCount)

	changed, err := db.MarkBroadcastRead(ctx, "b1", "g1", base.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.MarkBroadcastRead(ctx, "b1", "g1", base.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = db.MarkBroadcastRead(ctx, "b1", "outsider", base)
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := db.GetBroadcast(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReadCount)
	assert.Equal(t, []model.Role{model.RoleGuard}, got.TargetRoles)

	unread, err := db.CountUnreadBroadcasts(ctx, "g2", base)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	list, err := db.ListBroadcastsForUser(ctx, "g1", base)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsRead)
}

func TestBroadcastExpiryAndDeactivation(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	expires := base.Add(time.Hour)
	require.NoError(t, db.InsertBroadcast(ctx, &model.Broadcast{
		ID: "b1", SenderID: "admin", Title: "t", Content: "c", IsActive: true, ExpiresAt: &expires, CreatedAt: base,
	}, []string{"u1"}))
	require.NoError(t, db.InsertBroadcast(ctx, &model.Broadcast{
		ID: "b2", SenderID: "admin", Title: "t", Content: "c", IsActive: true, CreatedAt: base,
	}, []string{"u1"}))

	list, err := db.ListBroadcastsForUser(ctx, "u1", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b2", list[0].ID)

	require.NoError(t, db.DeactivateBroadcast(ctx, "b2"))
	list, err = db.ListBroadcastsForUser(ctx, "u1", base)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b1", list[0].ID)

	assert.ErrorIs(t, db.DeactivateBroadcast(ctx, "missing"), model.ErrNotFound)
}

func TestSignalLogSinceIsStrictAndOrdered(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	log := NewSignalLog(db, time.Hour)
	log.now = func() time.Time { return base }

	var stamps []int64
	for i, typ := range []model.SignalType{model.SignalInitiated, model.SignalRinging, model.SignalAccepted} {
		s := &model.CallSignal{
			ID: fmt.Sprintf("s%d", i), Type: typ, CallID: "call-1",
			FromUserID: "alice", ToUserID: "bob", ConversationID: "c1", CallType: model.CallVoice,
		}
		require.NoError(t, log.Append(ctx, s))
		stamps = append(stamps, s.Timestamp)
	}
	assert.Equal(t, []int64{base.UnixMilli(), base.UnixMilli() + 1, base.UnixMilli() + 2}, stamps)

	all, err := log.Since(ctx, "bob", 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	after, err := log.Since(ctx, "bob", stamps[0], 100)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, model.SignalRinging, after[0].Type)

	none, err := log.Since(ctx, "alice", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSignalLogPrunesExpiredEntries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	log := NewSignalLog(db, time.Minute)

	log.now = func() time.Time { return base }
	require.NoError(t, log.Append(ctx, &model.CallSignal{
		ID: "old", Type: model.SignalInitiated, CallID: "c", FromUserID: "a", ToUserID: "b", ConversationID: "x", CallType: model.CallVoice,
	}))

	log.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, log.Append(ctx, &model.CallSignal{
		ID: "new", Type: model.SignalEnded, CallID: "c", FromUserID: "a", ToUserID: "b", ConversationID: "x", CallType: model.CallVoice,
	}))

	got, err := log.Since(ctx, "b", 0, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}
