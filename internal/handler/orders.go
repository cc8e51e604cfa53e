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

// OrderHandler handles order lifecycle and payment workflow endpoints.
type OrderHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *logger.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService, payments *service.PaymentService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		payments: payments,
		logger:   log,
	}
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.orders.Create(ctx, merchantID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// List handles GET /api/v1/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	status := model.OrderStatus(r.URL.Query().Get("status"))

	orders, err := h.orders.List(ctx, merchantID, status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

// Get handles GET /api/v1/orders/:id
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.orders.Get(ctx, merchantID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ClaimPayment handles POST /api/v1/orders/:id/payment/claim
func (h *OrderHandler) ClaimPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.ClaimPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.payments.Claim(ctx, merchantID, orderID, req.BuyerReference, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ConfirmPayment handles POST /api/v1/orders/:id/payment/confirm
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	operatorID := middleware.GetOperatorID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.payments.Confirm(ctx, merchantID, orderID, req.Method, req.Reference, operatorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// RejectPayment handles POST /api/v1/orders/:id/payment/reject
func (h *OrderHandler) RejectPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	operatorID := middleware.GetOperatorID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.RejectPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.payments.Reject(ctx, merchantID, orderID, req.Reason, operatorID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// Ship handles POST /api/v1/orders/:id/ship
func (h *OrderHandler) Ship(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.ShipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.orders.Ship(ctx, merchantID, orderID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// Deliver handles POST /api/v1/orders/:id/deliver
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.orders.Deliver(ctx, merchantID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ReportProblem handles POST /api/v1/orders/:id/problem
func (h *OrderHandler) ReportProblem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.ReportProblemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.orders.ReportProblem(ctx, merchantID, orderID, req.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// Reopen handles POST /api/v1/orders/:id/reopen
func (h *OrderHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.orders.Reopen(ctx, merchantID, orderID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// Cancel handles POST /api/v1/orders/:id/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)
	orderID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var req model.CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	o, err := h.orders.Cancel(ctx, merchantID, orderID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}
