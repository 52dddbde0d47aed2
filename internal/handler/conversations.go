// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(svc *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		logger:  log,
	}
}

// conversationID extracts and validates the {id} path parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeInvalid(w, err.Error())
		return "", false
	}
	return id, true
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateName(req.Name); err != nil {
		writeInvalid(w, err.Error())
		return
	}

	conv, err := h.service.Create(ctx, userID, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create conversation", err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "list conversations", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	conv, err := h.service.Get(ctx, id, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "get conversation", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, "mark conversation read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings handles PATCH /api/v1/conversations/{id}/settings
func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdateSettings(ctx, id, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "update settings", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Leave handles POST /api/v1/conversations/{id}/leave
func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Leave(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, "leave conversation", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddParticipants handles POST /api/v1/conversations/{id}/participants
func (h *ConversationHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.AddParticipantsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.service.AddParticipants(ctx, id, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "add participants", err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
