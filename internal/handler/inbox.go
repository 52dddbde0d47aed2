package handler

import (
	"net/http"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// InboxHandler serves the caller's unread totals and contact list.
type InboxHandler struct {
	unread   *service.UnreadService
	contacts *service.ContactService
	logger   *logger.Logger
}

// NewInboxHandler creates a new inbox handler.
func NewInboxHandler(unread *service.UnreadService, contacts *service.ContactService, log *logger.Logger) *InboxHandler {
	return &InboxHandler{
		unread:   unread,
		contacts: contacts,
		logger:   log,
	}
}

// Unread handles GET /api/v1/unread
func (h *InboxHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totals, err := h.unread.Totals(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "compute unread totals", err)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// Contacts handles GET /api/v1/contacts
func (h *InboxHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groups, err := h.contacts.Grouped(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "list contacts", err)
		return
	}
	if groups == nil {
		groups = []model.ContactGroup{}
	}

	writeJSON(w, http.StatusOK, map[string][]model.ContactGroup{"groups": groups})
}
