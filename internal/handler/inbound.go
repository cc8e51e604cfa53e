package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Camus10737/warket/internal/middleware"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/service"
	"github.com/Camus10737/warket/pkg/logger"
)

// InboundHandler accepts buyer messages forwarded from the messaging
// channel integration. It runs under the bot scope, not operator tokens.
type InboundHandler struct {
	escalations *service.EscalationService
	payments    *service.PaymentService
	logger      *logger.Logger
}

// NewInboundHandler creates a new inbound handler.
func NewInboundHandler(escalations *service.EscalationService, payments *service.PaymentService, log *logger.Logger) *InboundHandler {
	return &InboundHandler{
		escalations: escalations,
		payments:    payments,
		logger:      log,
	}
}

// Ingest handles POST /api/v1/inbound/messages
func (h *InboundHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	var req model.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := middleware.ValidateBuyerRef(req.BuyerRef); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.escalations.Ingest(ctx, merchantID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ClaimPayment handles POST /api/v1/inbound/payment-claims. The buyer does
// not know an order id; the claim lands on their latest pending order.
func (h *InboundHandler) ClaimPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	merchantID := middleware.GetMerchantID(ctx)

	var req model.ClaimPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := middleware.ValidateBuyerRef(req.BuyerRef); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.payments.ClaimLatest(ctx, merchantID, req.BuyerRef, req.BuyerReference, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}
