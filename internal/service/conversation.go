package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/guardforce/messaging-platform/internal/directory"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/store"
	"github.com/guardforce/messaging-platform/pkg/logger"
	"github.com/guardforce/messaging-platform/pkg/metrics"
)

// ConversationService handles conversation operations.
type ConversationService struct {
	db        *store.DB
	directory directory.Directory
	logger    *logger.Logger
	now       func() time.Time
}

// NewConversationService creates a new conversation service.
func NewConversationService(db *store.DB, dir directory.Directory, log *logger.Logger) *ConversationService {
	return &ConversationService{
		db:        db,
		directory: dir,
		logger:    log,
		now:       time.Now,
	}
}

// Create dispatches on req.Type: DIRECT conversations are keyed by the pair,
// every other type creates a new group-style conversation.
func (s *ConversationService) Create(ctx context.Context, userID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	if req.Type == model.ConversationDirect {
		return s.CreateDirect(ctx, userID, req.UserID)
	}
	return s.CreateGroup(ctx, userID, req)
}

// CreateDirect returns the DIRECT conversation between userID and otherID,
// creating it on first use.
func (s *ConversationService) CreateDirect(ctx context.Context, userID, otherID string) (conv *model.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.CreateDirect")
	defer func() { endSpan(span, err) }()

	if otherID == "" {
		return nil, invalid("direct conversation requires a counterpart")
	}
	if otherID == userID {
		return nil, invalid("cannot start a direct conversation with yourself")
	}
	if _, err := s.directory.User(ctx, otherID); err != nil {
		return nil, err
	}

	now := s.now()
	conv, created, err := s.db.CreateDirect(ctx, &model.Conversation{
		ID:        newID(),
		Type:      model.ConversationDirect,
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct conversation: %w", err)
	}

	if created {
		metrics.ConversationsTotal.WithLabelValues(string(model.ConversationDirect)).Inc()
		s.logger.Info("Direct conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", userID),
		)
	}
	return conv, nil
}

// CreateGroup creates a GROUP, BROADCAST or EMERGENCY conversation with the
// creator as admin.
func (s *ConversationService) CreateGroup(ctx context.Context, userID string, req *model.CreateConversationRequest) (conv *model.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.CreateGroup")
	defer func() { endSpan(span, err) }()

	convType := req.Type
	if convType == "" {
		convType = model.ConversationGroup
	}
	if !convType.Valid() || convType == model.ConversationDirect {
		return nil, invalid("unsupported conversation type %q", req.Type)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("group name is required")
	}

	members := uniqueIDs(req.ParticipantIDs, userID)
	if len(members) == 0 {
		return nil, invalid("group requires at least one other participant")
	}
	if err := s.requireKnown(ctx, members); err != nil {
		return nil, err
	}

	now := s.now()
	conv = &model.Conversation{
		ID:          newID(),
		Type:        convType,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Avatar:      req.Avatar,
		CreatedBy:   userID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	participants := []model.Participant{{
		ConversationID: conv.ID, UserID: userID, Role: model.ParticipantAdmin, JoinedAt: now,
	}}
	for _, id := range members {
		participants = append(participants, model.Participant{
			ConversationID: conv.ID, UserID: id, Role: model.ParticipantMember, JoinedAt: now,
		})
	}

	span.SetAttributes(
		attribute.String("conversation.type", string(convType)),
		attribute.Int("conversation.participants", len(participants)),
	)

	if err := s.db.CreateConversation(ctx, conv, participants); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	metrics.ConversationsTotal.WithLabelValues(string(convType)).Inc()
	s.logger.Info("Conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("type", string(convType)),
		zap.Int("participants", len(participants)),
	)

	return s.db.GetConversation(ctx, conv.ID)
}

// requireKnown fails with model.ErrInvalidInput when any id is missing from the directory.
func (s *ConversationService) requireKnown(ctx context.Context, ids []string) error {
	users, err := s.directory.Users(ctx)
	if err != nil {
		return fmt.Errorf("failed to load directory: %w", err)
	}
	known := directory.Index(users)
	var unknown []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return invalid("unknown users: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// List returns the user's active conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID string) (*model.ListConversationsResponse, error) {
	views, err := s.db.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if views == nil {
		views = []model.ConversationView{}
	}
	return &model.ListConversationsResponse{
		Conversations: views,
		Total:         len(views),
	}, nil
}

// Get returns a conversation to a current or former participant.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if findParticipant(conv, userID) == nil {
		return nil, fmt.Errorf("conversation %q: %w", conversationID, model.ErrNotFound)
	}
	return conv, nil
}

// MarkRead resets the caller's unread counter and advances others' messages to READ.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.MarkRead")
	defer func() { endSpan(span, err) }()

	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, err := activeParticipant(conv, userID); err != nil {
		return err
	}
	return s.db.MarkConversationRead(ctx, conversationID, userID, s.now())
}

// UpdateSettings changes the caller's own mute, pin and block flags.
func (s *ConversationService) UpdateSettings(ctx context.Context, conversationID, userID string, req *model.UpdateSettingsRequest) (*model.Participant, error) {
	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := activeParticipant(conv, userID); err != nil {
		return nil, err
	}
	if err := s.db.UpdateParticipantSettings(ctx, conversationID, userID, req); err != nil {
		return nil, err
	}
	return s.db.GetParticipant(ctx, conversationID, userID)
}

// Leave removes the caller from the active participant set of a group-style
// conversation. DIRECT conversations always keep both members.
func (s *ConversationService) Leave(ctx context.Context, conversationID, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Leave")
	defer func() { endSpan(span, err) }()

	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if _, err := activeParticipant(conv, userID); err != nil {
		return err
	}
	if conv.Type == model.ConversationDirect {
		return invalid("direct conversations cannot be left")
	}

	deactivated, err := s.db.LeaveConversation(ctx, conversationID, userID, s.now())
	if err != nil {
		return err
	}
	s.logger.Info("Participant left conversation",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.Bool("deactivated", deactivated),
	)
	return nil
}

// AddParticipants lets a conversation admin add members to a non-direct conversation.
func (s *ConversationService) AddParticipants(ctx context.Context, conversationID, userID string, req *model.AddParticipantsRequest) (conv *model.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "ConversationService.AddParticipants")
	defer func() { endSpan(span, err) }()

	conv, err = s.db.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p, err := activeParticipant(conv, userID)
	if err != nil {
		return nil, err
	}
	if p.Role != model.ParticipantAdmin {
		return nil, fmt.Errorf("only conversation admins may add participants: %w", model.ErrForbidden)
	}
	if conv.Type == model.ConversationDirect {
		return nil, invalid("cannot add participants to a direct conversation")
	}

	ids := uniqueIDs(req.UserIDs, userID)
	if len(ids) == 0 {
		return nil, invalid("no participants to add")
	}
	if err := s.requireKnown(ctx, ids); err != nil {
		return nil, err
	}

	if err := s.db.AddParticipants(ctx, conversationID, ids, s.now()); err != nil {
		return nil, fmt.Errorf("failed to add participants: %w", err)
	}
	s.logger.Info("Participants added",
		zap.String("conversation_id", conversationID),
		zap.Strings("user_ids", ids),
	)
	return s.db.GetConversation(ctx, conversationID)
}
