// Package client is a REST client for the messaging API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
)

// APIError represents a non-2xx response from the messaging API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// Unwrap maps the response onto the shared error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_participant":
		return model.ErrNotParticipant
	case "forbidden":
		return model.ErrForbidden
	case "invalid_input":
		return model.ErrInvalidInput
	case "not_found":
		return model.ErrNotFound
	}
	switch {
	case e.Status == http.StatusTooManyRequests, e.Status >= 500:
		return model.ErrTransient
	case e.Status == http.StatusNotFound:
		return model.ErrNotFound
	case e.Status == http.StatusForbidden:
		return model.ErrForbidden
	case e.Status == http.StatusBadRequest:
		return model.ErrInvalidInput
	}
	return nil
}

type apiErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Client talks to the messaging API on behalf of one authenticated user.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a client. baseURL must include a scheme.
func New(baseURL, token string) (*Client, error) {
	value := strings.TrimSpace(baseURL)
	parsed, err := url.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api url must include scheme and host: %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(value, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// ListConversations returns the caller's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context) (*model.ListConversationsResponse, error) {
	var resp model.ListConversationsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/conversations", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateConversation creates a direct or group conversation.
func (c *Client) CreateConversation(ctx context.Context, req *model.CreateConversationRequest) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodPost, "/conversations", nil, req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation returns a conversation with its participants.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateSettings changes the caller's own mute, pin or block flags.
func (c *Client) UpdateSettings(ctx context.Context, id string, req *model.UpdateSettingsRequest) (*model.Participant, error) {
	var p model.Participant
	if err := c.doJSON(ctx, http.MethodPatch, "/conversations/"+url.PathEscape(id)+"/settings", nil, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Leave removes the caller from a conversation.
func (c *Client) Leave(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/leave", nil, nil, nil)
}

// AddParticipants adds members to a group conversation.
func (c *Client) AddParticipants(ctx context.Context, id string, userIDs []string) (*model.Conversation, error) {
	var conv model.Conversation
	req := model.AddParticipantsRequest{UserIDs: userIDs}
	if err := c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/participants", nil, req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead resets the caller's unread count for a conversation.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

// ListMessages returns a window of messages in ascending timestamp order.
func (c *Client) ListMessages(ctx context.Context, conversationID string, opts model.ListMessagesOptions) (*model.ListMessagesResponse, error) {
	query := url.Values{}
	if opts.Before > 0 {
		query.Set("before", strconv.FormatInt(opts.Before, 10))
	}
	if opts.After > 0 {
		query.Set("after", strconv.FormatInt(opts.After, 10))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp model.ListMessagesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessage posts a message to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req *model.SendMessageRequest) (*model.Message, error) {
	var msg model.Message
	if err := c.doJSON(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", nil, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// React toggles the caller's reaction on a message.
func (c *Client) React(ctx context.Context, messageID, emoji string) (*model.Message, error) {
	var msg model.Message
	if err := c.doJSON(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions", nil, model.ReactRequest{Emoji: emoji}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces the content of the caller's message.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (*model.Message, error) {
	var msg model.Message
	if err := c.doJSON(ctx, http.MethodPatch, "/messages/"+url.PathEscape(messageID), nil, model.EditMessageRequest{Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PinMessage pins or unpins a message.
func (c *Client) PinMessage(ctx context.Context, messageID string, pinned bool) (*model.Message, error) {
	var msg model.Message
	if err := c.doJSON(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/pin", nil, model.PinMessageRequest{Pinned: pinned}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message for everyone or hides it for the caller.
func (c *Client) DeleteMessage(ctx context.Context, messageID string, forAll bool) error {
	query := url.Values{}
	query.Set("forAll", strconv.FormatBool(forAll))
	return c.doJSON(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), query, nil, nil)
}

// ListBroadcasts returns the broadcasts addressed to the caller.
func (c *Client) ListBroadcasts(ctx context.Context) (*model.ListBroadcastsResponse, error) {
	var resp model.ListBroadcastsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/broadcasts", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendBroadcast sends an announcement to the targeted recipients.
func (c *Client) SendBroadcast(ctx context.Context, req *model.SendBroadcastRequest) (*model.Broadcast, error) {
	var b model.Broadcast
	if err := c.doJSON(ctx, http.MethodPost, "/broadcasts", nil, req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBroadcast returns one broadcast.
func (c *Client) GetBroadcast(ctx context.Context, id string) (*model.Broadcast, error) {
	var b model.Broadcast
	if err := c.doJSON(ctx, http.MethodGet, "/broadcasts/"+url.PathEscape(id), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// MarkBroadcastRead records the caller's receipt for a broadcast.
func (c *Client) MarkBroadcastRead(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/broadcasts/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

// DeactivateBroadcast withdraws a broadcast the caller sent.
func (c *Client) DeactivateBroadcast(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/broadcasts/"+url.PathEscape(id), nil, nil, nil)
}

// SendSignal appends a call-control signal.
func (c *Client) SendSignal(ctx context.Context, req *model.SendSignalRequest) (*model.CallSignal, error) {
	var sig model.CallSignal
	if err := c.doJSON(ctx, http.MethodPost, "/calls/signals", nil, req, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

// PollSignals returns signals addressed to the caller newer than since.
func (c *Client) PollSignals(ctx context.Context, since int64) (*model.PollSignalsResponse, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(since, 10))

	var resp model.PollSignalsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/calls/signals", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unread returns the caller's unread totals.
func (c *Client) Unread(ctx context.Context) (*model.UnreadTotals, error) {
	var totals model.UnreadTotals
	if err := c.doJSON(ctx, http.MethodGet, "/unread", nil, nil, &totals); err != nil {
		return nil, err
	}
	return &totals, nil
}

// Contacts returns the directory grouped by role.
func (c *Client) Contacts(ctx context.Context) ([]model.ContactGroup, error) {
	var resp struct {
		Groups []model.ContactGroup `json:"groups"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/contacts", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint := c.baseURL + "/api/v1" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, model.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %w", method, path, model.ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return json.Unmarshal(respData, respBody)
}
