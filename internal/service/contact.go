package service

import (
	"context"
	"fmt"

	"github.com/guardforce/messaging-platform/internal/directory"
	"github.com/guardforce/messaging-platform/internal/model"
)

// ContactService exposes the user directory grouped for display.
type ContactService struct {
	directory directory.Directory
}

// NewContactService creates a contact service.
func NewContactService(dir directory.Directory) *ContactService {
	return &ContactService{directory: dir}
}

// Grouped returns every other user bucketed by role in display order.
func (s *ContactService) Grouped(ctx context.Context, userID string) ([]model.ContactGroup, error) {
	users, err := s.directory.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load directory: %w", err)
	}
	return directory.Group(users, userID), nil
}
