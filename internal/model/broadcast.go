package model

import (
	"time"
)

// Targeting selects broadcast recipients. The effective set is the union of all dimensions.
type Targeting struct {
	Roles   []Role   `json:"roles,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// Empty reports whether no dimension is set.
func (t Targeting) Empty() bool {
	return len(t.Roles) == 0 && len(t.UserIDs) == 0 && len(t.Regions) == 0
}

// Broadcast is a one-to-many announcement, distinct from a conversation.
type Broadcast struct {
	ID            string     `json:"id"`
	SenderID      string     `json:"sender_id"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	TargetRoles   []Role     `json:"target_roles,omitempty"`
	TargetUserIDs []string   `json:"target_user_ids,omitempty"`
	TargetRegions []string   `json:"target_regions,omitempty"`
	IsEmergency   bool       `json:"is_emergency"`
	IsActive      bool       `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	SentCount     int        `json:"sent_count"`
	ReadCount     int        `json:"read_count"`
	CreatedAt     time.Time  `json:"created_at"`

	// Caller's own receipt, populated on reads.
	IsRead bool       `json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// Expired reports whether the broadcast has passed its expiry at now.
func (b *Broadcast) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// SendBroadcastRequest is the request to send a broadcast.
type SendBroadcastRequest struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Targeting   Targeting  `json:"targeting"`
	IsEmergency bool       `json:"is_emergency,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ListBroadcastsResponse is the response for listing broadcasts.
type ListBroadcastsResponse struct {
	Broadcasts []Broadcast `json:"broadcasts"`
}

// UnreadTotals aggregates a user's unread counters.
type UnreadTotals struct {
	Conversations int `json:"conversations"`
	Broadcasts    int `json:"broadcasts"`
	Total         int `json:"total"`
}
