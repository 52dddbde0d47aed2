package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/store"
	"github.com/guardforce/messaging-platform/pkg/logger"
	"github.com/guardforce/messaging-platform/pkg/metrics"
)

const (
	// DefaultMessageLimit is the window size when a list request names none.
	DefaultMessageLimit = 50
	// MaxMessageLimit bounds a single list window.
	MaxMessageLimit = 100
)

// MessageService handles message operations.
type MessageService struct {
	db     *store.DB
	logger *logger.Logger
	now    func() time.Time
}

// NewMessageService creates a new message service.
func NewMessageService(db *store.DB, log *logger.Logger) *MessageService {
	return &MessageService{
		db:     db,
		logger: log,
		now:    time.Now,
	}
}

// Send appends a message from an active participant.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID string, req *model.SendMessageRequest) (msg *model.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer func() { endSpan(span, err) }()

	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p, err := activeParticipant(conv, senderID)
	if err != nil {
		return nil, err
	}
	if !conv.IsActive {
		return nil, fmt.Errorf("conversation %q is inactive: %w", conversationID, model.ErrNotFound)
	}
	if conv.Type == model.ConversationBroadcast && p.Role != model.ParticipantAdmin {
		return nil, fmt.Errorf("only admins may post in broadcast conversations: %w", model.ErrForbidden)
	}

	msgType := req.MessageType
	if msgType == "" {
		msgType = model.MessageText
	}
	if !msgType.Valid() {
		return nil, invalid("unknown message type %q", req.MessageType)
	}
	if msgType == model.MessageSystem {
		return nil, invalid("system messages cannot be sent by clients")
	}

	var content *string
	if req.Content != nil {
		if trimmed := strings.TrimSpace(*req.Content); trimmed != "" {
			content = &trimmed
		}
	}
	if content == nil && req.AttachmentURL == "" {
		return nil, invalid("message requires content or an attachment")
	}

	if req.ReplyToID != "" {
		target, err := s.db.GetMessage(ctx, req.ReplyToID)
		if errors.Is(err, model.ErrNotFound) || (err == nil && target.ConversationID != conversationID) {
			return nil, invalid("reply target %q is not in this conversation", req.ReplyToID)
		}
		if err != nil {
			return nil, err
		}
	}

	msg = &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ClientNonce:    req.ClientNonce,
		Content:        content,
		MessageType:    msgType,
		Status:         model.StatusSent,
		AttachmentURL:  req.AttachmentURL,
		AttachmentName: req.AttachmentName,
		AttachmentSize: req.AttachmentSize,
		AttachmentType: req.AttachmentType,
		ThumbnailURL:   req.ThumbnailURL,
		ReplyToID:      req.ReplyToID,
		IsHighPriority: req.IsHighPriority,
		IsEmergency:    req.IsEmergency || conv.Type == model.ConversationEmergency,
		CreatedAt:      s.now(),
	}
	if err := s.db.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("message.type", string(msgType)),
	)
	metrics.MessagesTotal.WithLabelValues(string(msgType)).Inc()
	s.logger.Debug("Message sent",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", msg.ID),
		zap.String("sender_id", senderID),
	)
	return msg, nil
}

// List returns a window of messages, oldest first. Former participants see
// history up to the moment they left. Listing advances messages from others
// to DELIVERED.
func (s *MessageService) List(ctx context.Context, conversationID, viewerID string, opts model.ListMessagesOptions) (*model.ListMessagesResponse, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p := findParticipant(conv, viewerID)
	if p == nil {
		return nil, fmt.Errorf("conversation %q: %w", conversationID, model.ErrNotFound)
	}

	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultMessageLimit
	case opts.Limit > MaxMessageLimit:
		opts.Limit = MaxMessageLimit
	}

	msgs, hasMore, err := s.db.ListMessages(ctx, conversationID, viewerID, opts, p.LeftAt)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	if p.Active() && len(msgs) > 0 {
		newest := msgs[len(msgs)-1].CreatedAt
		if err := s.db.MarkDelivered(ctx, conversationID, viewerID, newest); err != nil {
			s.logger.Warn("Failed to mark messages delivered",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
		} else {
			for i := range msgs {
				if msgs[i].SenderID != viewerID && msgs[i].Status == model.StatusSent {
					msgs[i].Status = model.StatusDelivered
				}
			}
		}
	}

	return &model.ListMessagesResponse{Messages: msgs, HasMore: hasMore}, nil
}

// loadForParticipant returns a message together with the caller's active
// participant row in its conversation.
func (s *MessageService) loadForParticipant(ctx context.Context, messageID, userID string) (*model.Message, *model.Participant, error) {
	msg, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.db.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	p, err := activeParticipant(conv, userID)
	if err != nil {
		return nil, nil, err
	}
	return msg, p, nil
}

// React toggles the caller's emoji on a message and returns the updated message.
func (s *MessageService) React(ctx context.Context, messageID, userID, emoji string) (msg *model.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.React")
	defer func() { endSpan(span, err) }()

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, invalid("emoji is required")
	}
	msg, _, err = s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, invalid("cannot react to a deleted message")
	}

	if _, err := s.db.ToggleReaction(ctx, messageID, emoji, userID, s.now()); err != nil {
		return nil, fmt.Errorf("failed to toggle reaction: %w", err)
	}
	return s.db.GetMessage(ctx, messageID)
}

// Delete removes a message for everyone (sender only) or hides it for the caller.
func (s *MessageService) Delete(ctx context.Context, messageID, userID string, forAll bool) (err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Delete")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.Bool("message.delete_for_all", forAll))

	msg, _, err := s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return err
	}

	if !forAll {
		return s.db.HideMessage(ctx, messageID, userID, s.now())
	}
	if msg.SenderID != userID {
		return fmt.Errorf("only the sender may delete for everyone: %w", model.ErrForbidden)
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.db.SoftDeleteMessage(ctx, messageID, s.now()); err != nil {
		return err
	}
	s.logger.Info("Message deleted for everyone",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", messageID),
	)
	return nil
}

// Edit replaces the content of the caller's own message.
func (s *MessageService) Edit(ctx context.Context, messageID, userID, content string) (msg *model.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Edit")
	defer func() { endSpan(span, err) }()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
	}
	msg, _, err = s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("only the sender may edit a message: %w", model.ErrForbidden)
	}
	if msg.IsDeleted {
		return nil, invalid("cannot edit a deleted message")
	}

	if err := s.db.EditMessage(ctx, messageID, content, s.now()); err != nil {
		return nil, err
	}
	return s.db.GetMessage(ctx, messageID)
}

// Pin pins or unpins a message for the whole conversation.
func (s *MessageService) Pin(ctx context.Context, messageID, userID string, pinned bool) (msg *model.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Pin")
	defer func() { endSpan(span, err) }()

	msg, _, err = s.loadForParticipant(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, invalid("cannot pin a deleted message")
	}

	if err := s.db.SetMessagePinned(ctx, messageID, pinned, s.now()); err != nil {
		return nil, err
	}
	return s.db.GetMessage(ctx, messageID)
}
