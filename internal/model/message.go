package model

import (
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText      MessageType = "TEXT"
	MessageImage     MessageType = "IMAGE"
	MessageDocument  MessageType = "DOCUMENT"
	MessageAudio     MessageType = "AUDIO"
	MessageVideo     MessageType = "VIDEO"
	MessageLocation  MessageType = "LOCATION"
	MessageVoiceNote MessageType = "VOICE_NOTE"
	MessageSystem    MessageType = "SYSTEM"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageDocument, MessageAudio,
		MessageVideo, MessageLocation, MessageVoiceNote, MessageSystem:
		return true
	}
	return false
}

// MessageStatus is the coarse conversation-wide delivery status of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// Rank orders statuses so they can only move forward.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// DeletedMarker replaces the content of messages deleted for everyone.
const DeletedMarker = "This message was deleted"

// Message represents a conversation message.
type Message struct {
	// Identity
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ClientNonce    string `json:"client_nonce,omitempty"`

	// Content
	Content     *string       `json:"content,omitempty"`
	MessageType MessageType   `json:"message_type"`
	Status      MessageStatus `json:"status"`

	// Attachment references into blob storage
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`

	ReplyToID string `json:"reply_to_id,omitempty"`

	// Flags
	IsPinned       bool `json:"is_pinned"`
	IsEdited       bool `json:"is_edited"`
	IsDeleted      bool `json:"is_deleted"`
	IsHighPriority bool `json:"is_high_priority"`
	IsEmergency    bool `json:"is_emergency"`

	Reactions map[string][]string `json:"reactions,omitempty"`
	ReadBy    []string            `json:"read_by,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Text returns the message content or an empty string.
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// SendMessageRequest is the request to send a new message. Attachments must already be uploaded.
type SendMessageRequest struct {
	Content        *string     `json:"content,omitempty"`
	MessageType    MessageType `json:"message_type,omitempty"`
	ClientNonce    string      `json:"client_nonce,omitempty"`
	AttachmentURL  string      `json:"attachment_url,omitempty"`
	AttachmentName string      `json:"attachment_name,omitempty"`
	AttachmentSize int64       `json:"attachment_size,omitempty"`
	AttachmentType string      `json:"attachment_type,omitempty"`
	ThumbnailURL   string      `json:"thumbnail_url,omitempty"`
	ReplyToID      string      `json:"reply_to_id,omitempty"`
	IsHighPriority bool        `json:"is_high_priority,omitempty"`
	IsEmergency    bool        `json:"is_emergency,omitempty"`
}

// ListMessagesOptions selects a window of messages. Cursors are unix milliseconds.
type ListMessagesOptions struct {
	Before int64
	After  int64
	Limit  int
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ReactRequest toggles the caller's reaction.
type ReactRequest struct {
	Emoji string `json:"emoji"`
}

// EditMessageRequest replaces the content of a message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// PinMessageRequest pins or unpins a message.
type PinMessageRequest struct {
	Pinned bool `json:"pinned"`
}

// PreviewLength bounds the denormalized last-message preview, in runes.
const PreviewLength = 100

// Preview returns the short text shown in conversation lists.
func (m *Message) Preview() string {
	if m.IsDeleted {
		return DeletedMarker
	}
	if text := m.Text(); text != "" {
		r := []rune(text)
		if len(r) > PreviewLength {
			return string(r[:PreviewLength])
		}
		return text
	}
	switch m.MessageType {
	case MessageImage:
		return "[Image]"
	case MessageDocument:
		if m.AttachmentName != "" {
			return "[Document] " + m.AttachmentName
		}
		return "[Document]"
	case MessageAudio:
		return "[Audio]"
	case MessageVideo:
		return "[Video]"
	case MessageLocation:
		return "[Location]"
	case MessageVoiceNote:
		return "[Voice note]"
	}
	return "[Attachment]"
}
