package handler

import (
	"net/http"

	"github.com/guardforce/messaging-platform/internal/middleware"
	"github.com/guardforce/messaging-platform/internal/model"
	"github.com/guardforce/messaging-platform/internal/service"
	"github.com/guardforce/messaging-platform/pkg/logger"
)

// CallHandler handles call signalling endpoints.
type CallHandler struct {
	service *service.CallService
	logger  *logger.Logger
}

// NewCallHandler creates a new call handler.
func NewCallHandler(svc *service.CallService, log *logger.Logger) *CallHandler {
	return &CallHandler{
		service: svc,
		logger:  log,
	}
}

// Send handles POST /api/v1/calls/signals
func (h *CallHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendSignalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sig, err := h.service.Send(ctx, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, "send call signal", err)
		return
	}

	writeJSON(w, http.StatusCreated, sig)
}

// Poll handles GET /api/v1/calls/signals?since=
func (h *CallHandler) Poll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since, err := queryInt64(r, "since")
	if err != nil || since < 0 {
		writeInvalid(w, "invalid since watermark")
		return
	}

	resp, err := h.service.Poll(ctx, middleware.GetUserID(ctx), since)
	if err != nil {
		writeServiceError(w, r, h.logger, "poll call signals", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
