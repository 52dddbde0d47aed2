package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardforce/messaging-platform/internal/directory"
	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/internal/store"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

const secret = "test-secret"

var roster = []model.User{
	{ID: "alice", Name: "Alice", Role: model.RoleGuard, Region: "north"},
	{ID: "bob", Name: "Bob", Role: model.RoleGuard, Region: "north"},
	{ID: "carol", Name: "Carol", Role: model.RoleSupervisor, Region: "south"},
	{ID: "ops", Name: "Olga", Role: model.RoleOperationsManager, Region: "hq"},
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dir, err := directory.NewStatic(roster)
	require.NoError(t, err)

	log := logger.NewNop()
	signals := store.NewSignalLog(db, time.Hour)
	broadcastRoles := []model.Role{model.RoleAdmin, model.RoleDirector, model.RoleOperationsManager}

	router := NewRouter(RouterConfig{
		JWTSecret:          secret,
		CORSAllowedOrigins: []string{"*"},
		BroadcastRoles:     broadcastRoles,
		Logger:             log,
		Health:             NewHealthHandler(db, signals),
		Conversations:      NewConversationHandler(service.NewConversationService(db, dir, log), log),
		Messages:           NewMessageHandler(service.NewMessageService(db, log), log),
		Broadcasts:         NewBroadcastHandler(service.NewBroadcastService(db, dir, broadcastRoles, log), log),
		Calls:              NewCallHandler(service.NewCallService(db, signals, "https://rooms.test", log), log),
		Inbox:              NewInboxHandler(service.NewUnreadService(db), service.NewContactService(dir), log),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type apiClient struct {
	t     *testing.T
	base  string
	token string
}

func as(t *testing.T, srv *httptest.Server, userID string) *apiClient {
	t.Helper()
	role := model.RoleGuard
	for _, u := range roster {
		if u.ID == userID {
			role = u.Role
		}
	}
	token, err := middleware.SignToken(secret, userID, role, "", time.Hour)
	require.NoError(t, err)
	return &apiClient{t: t, base: srv.URL, token: token}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *apiClient) do(method, path string, body, out any) int {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	srv := newServer(t)
	anon := &apiClient{t: t, base: srv.URL}

	var body map[string]string
	assert.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "healthy", body["status"])

	assert.Equal(t, http.StatusOK, anon.do(http.MethodGet, "/ready", nil, &body))
	assert.Equal(t, "ready", body["status"])
}

func TestAuthRequired(t *testing.T) {
	srv := newServer(t)
	anon := &apiClient{t: t, base: srv.URL}

	var body errorResponse
	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodGet, "/api/v1/conversations", nil, &body))
	assert.Equal(t, "unauthorized", body.Code)

	forged := &apiClient{t: t, base: srv.URL, token: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, forged.do(http.MethodGet, "/api/v1/conversations", nil, nil))
}

func TestConversationAndMessageFlow(t *testing.T) {
	srv := newServer(t)
	alice := as(t, srv, "alice")
	bob := as(t, srv, "bob")

	var conv model.Conversation
	status := alice.do(http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		Type: model.ConversationDirect, UserID: "bob",
	}, &conv)
	require.Equal(t, http.StatusCreated, status)

	content := "hello"
	var msg model.Message
	status = alice.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{
		Content: &content, ClientNonce: "nonce-1",
	}, &msg)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "nonce-1", msg.ClientNonce)
	assert.Equal(t, model.StatusSent, msg.Status)

	var totals model.UnreadTotals
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/v1/unread", nil, &totals))
	assert.Equal(t, 1, totals.Conversations)

	var list model.ListConversationsResponse
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/v1/conversations", nil, &list))
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "hello", list.Conversations[0].LastMessagePreview)
	assert.Equal(t, 1, list.Conversations[0].UnreadCount)

	var page model.ListMessagesResponse
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?limit=10", nil, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, model.StatusDelivered, page.Messages[0].Status)

	require.Equal(t, http.StatusNoContent, bob.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", nil, nil))
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/v1/unread", nil, &totals))
	assert.Equal(t, 0, totals.Total)

	after := fmt.Sprintf("?after=%d", page.Messages[0].CreatedAt.UnixMilli())
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages"+after, nil, &page))
	assert.Empty(t, page.Messages)

	var reacted model.Message
	require.Equal(t, http.StatusOK, bob.do(http.MethodPost, "/api/v1/messages/"+msg.ID+"/reactions", model.ReactRequest{Emoji: "👍"}, &reacted))
	assert.Equal(t, []string{"bob"}, reacted.Reactions["👍"])

	var failure errorResponse
	require.Equal(t, http.StatusForbidden, bob.do(http.MethodDelete, "/api/v1/messages/"+msg.ID+"?forAll=true", nil, &failure))
	assert.Equal(t, "forbidden", failure.Code)

	require.Equal(t, http.StatusNoContent, alice.do(http.MethodDelete, "/api/v1/messages/"+msg.ID+"?forAll=true", nil, nil))
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t)
	alice := as(t, srv, "alice")
	carol := as(t, srv, "carol")

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		Type: model.ConversationGroup, Name: "North patrol", ParticipantIDs: []string{"bob"},
	}, &conv))

	content := "intrude"
	var failure errorResponse
	status := carol.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", model.SendMessageRequest{Content: &content}, &failure)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_participant", failure.Code)

	status = carol.do(http.MethodGet, "/api/v1/conversations/"+conv.ID, nil, &failure)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", failure.Code)

	status = alice.do(http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		Type: model.ConversationGroup, Name: "Empty",
	}, &failure)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", failure.Code)

	status = alice.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", nil, &failure)
	assert.Equal(t, http.StatusBadRequest, status)

	status = alice.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?before=yesterday", nil, &failure)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestBroadcastEndpoints(t *testing.T) {
	srv := newServer(t)
	ops := as(t, srv, "ops")
	alice := as(t, srv, "alice")

	req := model.SendBroadcastRequest{
		Title:     "Gate closure",
		Content:   "North gate closed tonight",
		Targeting: model.Targeting{Regions: []string{"north"}},
	}

	var failure errorResponse
	assert.Equal(t, http.StatusForbidden, alice.do(http.MethodPost, "/api/v1/broadcasts", req, &failure))
	assert.Equal(t, "forbidden", failure.Code)

	var b model.Broadcast
	require.Equal(t, http.StatusCreated, ops.do(http.MethodPost, "/api/v1/broadcasts", req, &b))
	assert.Equal(t, 2, b.SentCount)

	var list model.ListBroadcastsResponse
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/v1/broadcasts", nil, &list))
	require.Len(t, list.Broadcasts, 1)
	assert.False(t, list.Broadcasts[0].IsRead)

	require.Equal(t, http.StatusNoContent, alice.do(http.MethodPost, "/api/v1/broadcasts/"+b.ID+"/read", nil, nil))
	require.Equal(t, http.StatusNoContent, alice.do(http.MethodPost, "/api/v1/broadcasts/"+b.ID+"/read", nil, nil))

	var got model.Broadcast
	require.Equal(t, http.StatusOK, ops.do(http.MethodGet, "/api/v1/broadcasts/"+b.ID, nil, &got))
	assert.Equal(t, 1, got.ReadCount)

	assert.Equal(t, http.StatusForbidden, alice.do(http.MethodDelete, "/api/v1/broadcasts/"+b.ID, nil, nil))
	assert.Equal(t, http.StatusNoContent, ops.do(http.MethodDelete, "/api/v1/broadcasts/"+b.ID, nil, nil))
}

func TestCallSignalEndpoints(t *testing.T) {
	srv := newServer(t)
	alice := as(t, srv, "alice")
	bob := as(t, srv, "bob")

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/v1/conversations", model.CreateConversationRequest{
		Type: model.ConversationDirect, UserID: "bob",
	}, &conv))

	var sig model.CallSignal
	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/v1/calls/signals", model.SendSignalRequest{
		Type: model.SignalInitiated, ToUserID: "bob", ConversationID: conv.ID, CallType: model.CallVoice,
	}, &sig))
	assert.Equal(t, "https://rooms.test/"+sig.CallID, sig.RoomURL)

	var poll model.PollSignalsResponse
	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, "/api/v1/calls/signals?since=0", nil, &poll))
	require.Len(t, poll.Signals, 1)
	assert.Equal(t, sig.Timestamp, poll.Watermark)

	require.Equal(t, http.StatusOK, bob.do(http.MethodGet, fmt.Sprintf("/api/v1/calls/signals?since=%d", poll.Watermark), nil, &poll))
	assert.Empty(t, poll.Signals)
	assert.Equal(t, sig.Timestamp, poll.Watermark)

	assert.Equal(t, http.StatusBadRequest, bob.do(http.MethodGet, "/api/v1/calls/signals?since=-5", nil, nil))
}

func TestContactsEndpoint(t *testing.T) {
	srv := newServer(t)
	alice := as(t, srv, "alice")

	var body struct {
		Groups []model.ContactGroup `json:"groups"`
	}
	require.Equal(t, http.StatusOK, alice.do(http.MethodGet, "/api/v1/contacts", nil, &body))
	require.Len(t, body.Groups, 3)
	assert.Equal(t, model.RoleOperationsManager, body.Groups[0].Role)
	assert.Equal(t, "Operations Manager", body.Groups[0].Label)
}
