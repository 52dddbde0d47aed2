// Package service provides business logic for the messaging platform.
package service

import (
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/pkg/tracing"
)

var tracer = tracing.Tracer("github.com/guardforce/messaging-platform/internal/service")

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// findParticipant returns userID's row in conv, including rows of members who left.
func findParticipant(conv *model.Conversation, userID string) *model.Participant {
	for i := range conv.Participants {
		if conv.Participants[i].UserID == userID {
			return &conv.Participants[i]
		}
	}
	return nil
}

// activeParticipant returns userID's row in conv or model.ErrNotParticipant.
func activeParticipant(conv *model.Conversation, userID string) (*model.Participant, error) {
	p := findParticipant(conv, userID)
	if p == nil || !p.Active() {
		return nil, fmt.Errorf("user %q in conversation %q: %w", userID, conv.ID, model.ErrNotParticipant)
	}
	return p, nil
}

// uniqueIDs drops empty and duplicate ids and any equal to exclude, keeping order.
func uniqueIDs(ids []string, exclude string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
