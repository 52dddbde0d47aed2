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

// BroadcastService handles one-to-many announcements.
type BroadcastService struct {
	db        *store.DB
	directory directory.Directory
	senders   map[model.Role]bool
	logger    *logger.Logger
	now       func() time.Time
}

// NewBroadcastService creates a broadcast service. Only users holding one of
// senderRoles may send.
func NewBroadcastService(db *store.DB, dir directory.Directory, senderRoles []model.Role, log *logger.Logger) *BroadcastService {
	senders := make(map[model.Role]bool, len(senderRoles))
	for _, r := range senderRoles {
		senders[r] = true
	}
	return &BroadcastService{
		db:        db,
		directory: dir,
		senders:   senders,
		logger:    log,
		now:       time.Now,
	}
}

// CanSend reports whether role may send broadcasts.
func (s *BroadcastService) CanSend(role model.Role) bool {
	return s.senders[role]
}

// Send resolves the recipient set once and stores the broadcast.
func (s *BroadcastService) Send(ctx context.Context, senderID string, senderRole model.Role, req *model.SendBroadcastRequest) (b *model.Broadcast, err error) {
	ctx, span := tracer.Start(ctx, "BroadcastService.Send")
	defer func() { endSpan(span, err) }()

	if !s.CanSend(senderRole) {
		return nil, fmt.Errorf("role %q may not send broadcasts: %w", senderRole, model.ErrForbidden)
	}

	title := strings.TrimSpace(req.Title)
	content := strings.TrimSpace(req.Content)
	if title == "" || content == "" {
		return nil, invalid("broadcast requires a title and content")
	}
	if req.Targeting.Empty() {
		return nil, invalid("broadcast targeting names no recipients")
	}
	for _, r := range req.Targeting.Roles {
		if !r.Valid() {
			return nil, invalid("unknown role %q", r)
		}
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, invalid("expiry must be in the future")
	}

	users, err := s.directory.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	recipients, unknown := directory.Resolve(users, req.Targeting, senderID)
	if len(unknown) > 0 {
		return nil, invalid("unknown users: %s", strings.Join(unknown, ", "))
	}
	if len(recipients) == 0 {
		return nil, invalid("targeting resolved to no recipients")
	}

	b = &model.Broadcast{
		ID:            newID(),
		SenderID:      senderID,
		Title:         title,
		Content:       content,
		TargetRoles:   req.Targeting.Roles,
		TargetUserIDs: req.Targeting.UserIDs,
		TargetRegions: req.Targeting.Regions,
		IsEmergency:   req.IsEmergency,
		IsActive:      true,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     now,
	}
	if err := s.db.InsertBroadcast(ctx, b, recipients); err != nil {
		return nil, fmt.Errorf("failed to store broadcast: %w", err)
	}

	span.SetAttributes(
		attribute.Int("broadcast.recipients", len(recipients)),
		attribute.Bool("broadcast.emergency", req.IsEmergency),
	)
	metrics.RecordBroadcast(req.IsEmergency, len(recipients))
	s.logger.Info("Broadcast sent",
		zap.String("broadcast_id", b.ID),
		zap.String("sender_id", senderID),
		zap.Int("recipients", len(recipients)),
		zap.Bool("emergency", req.IsEmergency),
	)
	return b, nil
}

// List returns active, unexpired broadcasts addressed to userID, newest first.
func (s *BroadcastService) List(ctx context.Context, userID string) (*model.ListBroadcastsResponse, error) {
	list, err := s.db.ListBroadcastsForUser(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list broadcasts: %w", err)
	}
	if list == nil {
		list = []model.Broadcast{}
	}
	return &model.ListBroadcastsResponse{Broadcasts: list}, nil
}

// Get returns a broadcast to its sender, or to a recipient while it is active
// and unexpired.
func (s *BroadcastService) Get(ctx context.Context, broadcastID, userID string) (*model.Broadcast, error) {
	b, err := s.db.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if b.SenderID == userID {
		return b, nil
	}

	isRecipient, readAt, err := s.db.GetRecipientReceipt(ctx, broadcastID, userID)
	if err != nil {
		return nil, err
	}
	if !isRecipient || !b.IsActive || b.Expired(s.now()) {
		return nil, fmt.Errorf("broadcast %q: %w", broadcastID, model.ErrNotFound)
	}
	b.ReadAt = readAt
	b.IsRead = readAt != nil
	return b, nil
}

// MarkRead records the caller's first read of a broadcast. Repeated calls are no-ops.
func (s *BroadcastService) MarkRead(ctx context.Context, broadcastID, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "BroadcastService.MarkRead")
	defer func() { endSpan(span, err) }()

	changed, err := s.db.MarkBroadcastRead(ctx, broadcastID, userID, s.now())
	if err != nil {
		return err
	}
	if changed {
		metrics.BroadcastReadsTotal.Inc()
	}
	return nil
}

// Deactivate hides a broadcast from its recipients. Only the sender may do this.
func (s *BroadcastService) Deactivate(ctx context.Context, broadcastID, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "BroadcastService.Deactivate")
	defer func() { endSpan(span, err) }()

	b, err := s.db.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return err
	}
	if b.SenderID != userID {
		return fmt.Errorf("only the sender may deactivate a broadcast: %w", model.ErrForbidden)
	}
	if err := s.db.DeactivateBroadcast(ctx, broadcastID); err != nil {
		return err
	}
	s.logger.Info("Broadcast deactivated", zap.String("broadcast_id", broadcastID))
	return nil
}
