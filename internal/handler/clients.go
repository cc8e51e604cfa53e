package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Camus10737/warket/internal/middleware"
	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/pkg/logger"
)

// ClientHandler handles buyer relation endpoints.
type ClientHandler struct {
	relations *service.RelationService
	logger    *logger.Logger
}

// NewClientHandler creates a new client handler.
func NewClientHandler(relations *service.RelationService, log *logger.Logger) *ClientHandler {
	return &ClientHandler{
		relations: relations,
		logger:    log,
	}
}

// List handles GET /api/v1/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	relations, err := h.relations.List(ctx, merchantID)
	if err != nil {
		h.logger.Error("failed to list clients")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list clients")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clients": relations,
		"total":   len(relations),
	})
}

// Get handles GET /api/v1/clients/:id
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	relationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(relationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	rel, err := h.relations.Get(ctx, merchantID, relationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rel)
}
