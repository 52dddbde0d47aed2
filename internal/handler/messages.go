package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

func messageID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeInvalid(w, err.Error())
		return "", false
	}
	return id, true
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var opts model.ListMessagesOptions
	var err error
	if opts.Before, err = queryInt64(r, "before"); err != nil {
		writeInvalid(w, "invalid before cursor")
		return
	}
	if opts.After, err = queryInt64(r, "after"); err != nil {
		writeInvalid(w, "invalid after cursor")
		return
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			writeInvalid(w, "invalid limit")
			return
		}
		opts.Limit = parsed
	}

	resp, err := h.service.List(ctx, id, middleware.GetUserID(ctx), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Content != nil {
		if err := middleware.ValidateMessageContent(*req.Content); err != nil {
			writeInvalid(w, err.Error())
			return
		}
	}

	msg, err := h.service.Send(ctx, id, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// React handles POST /api/v1/messages/{id}/reactions
func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.ReactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateEmoji(req.Emoji); err != nil {
		writeInvalid(w, err.Error())
		return
	}

	msg, err := h.service.React(ctx, id, middleware.GetUserID(ctx), req.Emoji)
	if err != nil {
		writeServiceError(w, r, h.logger, "react to message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Edit handles PATCH /api/v1/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeInvalid(w, err.Error())
		return
	}

	msg, err := h.service.Edit(ctx, id, middleware.GetUserID(ctx), req.Content)
	if err != nil {
		writeServiceError(w, r, h.logger, "edit message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Pin handles POST /api/v1/messages/{id}/pin
func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.PinMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.service.Pin(ctx, id, middleware.GetUserID(ctx), req.Pinned)
	if err != nil {
		writeServiceError(w, r, h.logger, "pin message", err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{id}?forAll=
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	forAll := false
	if raw := r.URL.Query().Get("forAll"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeInvalid(w, "invalid forAll flag")
			return
		}
		forAll = parsed
	}

	if err := h.service.Delete(ctx, id, middleware.GetUserID(ctx), forAll); err != nil {
		writeServiceError(w, r, h.logger, "delete message", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
