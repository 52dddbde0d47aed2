package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardforce/messaging-platform/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "token-123")
	require.NoError(t, err)
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:8080", "")
	require.Error(t, err)
}

func TestSendMessageEncodesRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var req model.SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "n1", req.ClientNonce)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Message{ID: "m1", ConversationID: "c1", ClientNonce: req.ClientNonce, Content: req.Content})
	})

	content := "hi"
	msg, err := c.SendMessage(context.Background(), "c1", &model.SendMessageRequest{Content: &content, ClientNonce: "n1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hi", msg.Text())
}

func TestListMessagesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1700", q.Get("after"))
		assert.Equal(t, "", q.Get("before"))
		assert.Equal(t, "20", q.Get("limit"))
		_ = json.NewEncoder(w).Encode(model.ListMessagesResponse{Messages: []model.Message{{ID: "m2"}}})
	})

	resp, err := c.ListMessages(context.Background(), "c1", model.ListMessagesOptions{After: 1700, Limit: 20})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
}

func TestPollSignalsSendsWatermark(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/calls/signals", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode(model.PollSignalsResponse{Watermark: 42})
	})

	resp, err := c.PollSignals(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.Watermark)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not participant", http.StatusForbidden, `{"error":"not a participant","code":"not_participant"}`, model.ErrNotParticipant},
		{"forbidden", http.StatusForbidden, `{"error":"forbidden","code":"forbidden"}`, model.ErrForbidden},
		{"invalid", http.StatusBadRequest, `{"error":"bad","code":"invalid_input"}`, model.ErrInvalidInput},
		{"not found", http.StatusNotFound, `{"error":"missing","code":"not_found"}`, model.ErrNotFound},
		{"server error", http.StatusInternalServerError, `{"error":"failed to list"}`, model.ErrTransient},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down","code":"rate_limited"}`, model.ErrTransient},
		{"plain text gateway error", http.StatusBadGateway, `upstream unavailable`, model.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ListConversations(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c, err := New(srv.URL, "")
	require.NoError(t, err)
	srv.Close()

	_, err = c.Unread(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransient)
}

func TestNoContentResponses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("forAll"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteMessage(context.Background(), "m1", true))
}
