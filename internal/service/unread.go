package service

import (
	"context"
	"fmt"
	"time"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/store"
)

// UnreadService aggregates unread counters. Nothing is cached; every call recomputes.
type UnreadService struct {
	db  *store.DB
	now func() time.Time
}

// NewUnreadService creates an unread aggregator.
func NewUnreadService(db *store.DB) *UnreadService {
	return &UnreadService{db: db, now: time.Now}
}

// Totals returns the user's unread conversation messages and unread broadcasts.
func (s *UnreadService) Totals(ctx context.Context, userID string) (*model.UnreadTotals, error) {
	conversations, err := s.db.SumUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum unread messages: %w", err)
	}
	broadcasts, err := s.db.CountUnreadBroadcasts(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to count unread broadcasts: %w", err)
	}
	return &model.UnreadTotals{
		Conversations: conversations,
		Broadcasts:    broadcasts,
		Total:         conversations + broadcasts,
	}, nil
}
