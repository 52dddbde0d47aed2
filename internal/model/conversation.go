// Package model defines data structures for the messaging platform.
package model

import (
	"time"
)

// ConversationType is the kind of a conversation.
type ConversationType string

const (
	ConversationDirect    ConversationType = "DIRECT"
	ConversationGroup     ConversationType = "GROUP"
	ConversationBroadcast ConversationType = "BROADCAST"
	ConversationEmergency ConversationType = "EMERGENCY"
)

// Valid reports whether t is a known conversation type.
func (t ConversationType) Valid() bool {
	switch t {
	case ConversationDirect, ConversationGroup, ConversationBroadcast, ConversationEmergency:
		return true
	}
	return false
}

// ParticipantRole is a user's role inside one conversation.
type ParticipantRole string

const (
	ParticipantMember ParticipantRole = "member"
	ParticipantAdmin  ParticipantRole = "admin"
)

// Conversation represents a channel of participants exchanging messages.
type Conversation struct {
	ID                 string           `json:"id"`
	Type               ConversationType `json:"type"`
	Name               string           `json:"name,omitempty"`
	Avatar             string           `json:"avatar,omitempty"`
	Description        string           `json:"description,omitempty"`
	CreatedBy          string           `json:"created_by"`
	IsActive           bool             `json:"is_active"`
	LastMessageAt      *time.Time       `json:"last_message_at,omitempty"`
	LastMessagePreview string           `json:"last_message_preview,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	Participants       []Participant    `json:"participants,omitempty"`
}

// Participant is one user's membership record within a conversation.
type Participant struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joined_at"`
	LeftAt         *time.Time      `json:"left_at,omitempty"`
	UnreadCount    int             `json:"unread_count"`
	LastReadAt     *time.Time      `json:"last_read_at,omitempty"`
	IsMuted        bool            `json:"is_muted"`
	IsPinned       bool            `json:"is_pinned"`
	IsBlocked      bool            `json:"is_blocked"`
}

// Active reports whether the participant has not left.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// ConversationView is a conversation annotated with the caller's own participant state.
type ConversationView struct {
	Conversation
	UnreadCount int             `json:"unread_count"`
	IsMuted     bool            `json:"is_muted"`
	IsPinned    bool            `json:"is_pinned"`
	IsBlocked   bool            `json:"is_blocked"`
	MyRole      ParticipantRole `json:"my_role"`
}

// SortTime is the instant used to order conversations by recent activity.
func (c *Conversation) SortTime() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// CreateConversationRequest is the request to create a direct or group conversation.
type CreateConversationRequest struct {
	Type           ConversationType `json:"type"`
	UserID         string           `json:"user_id,omitempty"`
	Name           string           `json:"name,omitempty"`
	Description    string           `json:"description,omitempty"`
	Avatar         string           `json:"avatar,omitempty"`
	ParticipantIDs []string         `json:"participant_ids,omitempty"`
}

// UpdateSettingsRequest updates the caller's own display flags. Nil fields are left unchanged.
type UpdateSettingsRequest struct {
	Muted   *bool `json:"muted,omitempty"`
	Pinned  *bool `json:"pinned,omitempty"`
	Blocked *bool `json:"blocked,omitempty"`
}

// AddParticipantsRequest adds members to a group conversation.
type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationView `json:"conversations"`
	Total         int                `json:"total"`
}
