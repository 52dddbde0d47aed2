package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// BroadcastHandler handles broadcast endpoints.
type BroadcastHandler struct {
	service *service.BroadcastService
	logger  *logger.Logger
}

// NewBroadcastHandler creates a new broadcast handler.
func NewBroadcastHandler(svc *service.BroadcastService, log *logger.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		service: svc,
		logger:  log,
	}
}

func broadcastID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeInvalid(w, err.Error())
		return "", false
	}
	return id, true
}

// Send handles POST /api/v1/broadcasts
func (h *BroadcastHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendBroadcastRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateName(req.Title); err != nil {
		writeInvalid(w, err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeInvalid(w, err.Error())
		return
	}

	b, err := h.service.Send(ctx, middleware.GetUserID(ctx), middleware.GetRole(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "send broadcast", err)
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

// List handles GET /api/v1/broadcasts
func (h *BroadcastHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "list broadcasts", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/broadcasts/{id}
func (h *BroadcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := broadcastID(w, r)
	if !ok {
		return
	}

	b, err := h.service.Get(ctx, id, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, "get broadcast", err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// MarkRead handles POST /api/v1/broadcasts/{id}/read
func (h *BroadcastHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := broadcastID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, "mark broadcast read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Deactivate handles DELETE /api/v1/broadcasts/{id}
func (h *BroadcastHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := broadcastID(w, r)
	if !ok {
		return
	}

	if err := h.service.Deactivate(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, "deactivate broadcast", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
