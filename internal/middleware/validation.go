package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxContentBytes = 100000
	maxNameBytes    = 256
	maxEmojiBytes   = 32
)

// ValidateID validates a server-generated conversation, message or broadcast ID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid ID format")
	}
	return nil
}

// ValidateMessageContent validates optional message content.
func ValidateMessageContent(content string) error {
	if len(content) > maxContentBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateName validates a conversation name or broadcast title.
func ValidateName(name string) error {
	if len(name) > maxNameBytes {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateEmoji validates a reaction emoji.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return errors.New("emoji cannot be empty")
	}
	if len(emoji) > maxEmojiBytes || !utf8.ValidString(emoji) {
		return errors.New("invalid emoji")
	}
	return nil
}
