package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Camus10737/warket/internal/middleware"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/pkg/logger"
)

// ConversationHandler handles conversation and escalation endpoints.
type ConversationHandler struct {
	escalations *service.EscalationService
	logger      *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(escalations *service.EscalationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		escalations: escalations,
		logger:      log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	status := model.ConversationStatus(r.URL.Query().Get("status"))

	conversations, err := h.escalations.List(ctx, merchantID, status)
	if err != nil {
		h.logger.Error("failed to list conversations")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
		"total":         len(conversations),
	})
}

// Get handles GET /api/v1/conversations/:id
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv, err := h.escalations.Get(ctx, merchantID, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Messages handles GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	messages, err := h.escalations.Messages(ctx, merchantID, conversationID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: messages,
		Total:    len(messages),
	})
}

// Reply handles POST /api/v1/conversations/:id/messages
func (h *ConversationHandler) Reply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	operatorID := middleware.GetOperatorID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	msg, err := h.escalations.Record(ctx, merchantID, conversationID, operatorID, req.Content)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Escalate handles POST /api/v1/conversations/:id/escalate
func (h *ConversationHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	conv, err := h.escalations.Escalate(ctx, merchantID, conversationID, req.Reason, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Resolve handles POST /api/v1/conversations/:id/resolve
func (h *ConversationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	conv, err := h.escalations.Resolve(ctx, merchantID, conversationID, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Close handles POST /api/v1/conversations/:id/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	conv, err := h.escalations.Close(ctx, merchantID, conversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}
