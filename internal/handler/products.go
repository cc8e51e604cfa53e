// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Camus10737/warket/internal/middleware"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/pkg/logger"
)

// ProductHandler handles product and stock endpoints.
type ProductHandler struct {
	stock  *service.StockService
	logger *logger.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(stock *service.StockService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		stock:  stock,
		logger: log,
	}
}

// Create handles POST /api/v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	var req model.RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	p, err := h.stock.Register(ctx, merchantID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	products, err := h.stock.List(ctx, merchantID)
	if err != nil {
		h.logger.Error("failed to list products")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list products")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"total":    len(products),
	})
}

// Get handles GET /api/v1/products/:id
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	productID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(productID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.stock.Get(ctx, merchantID, productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// AdjustStock handles POST /api/v1/products/:id/stock
func (h *ProductHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	productID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(productID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.AdjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	p, err := h.stock.Adjust(ctx, merchantID, productID, req.Delta)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// Discontinue handles DELETE /api/v1/products/:id
func (h *ProductHandler) Discontinue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	productID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(productID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	p, err := h.stock.Discontinue(ctx, merchantID, productID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
