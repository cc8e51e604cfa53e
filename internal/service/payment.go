package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/events"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
	"github.com/Camus10737/warket/pkg/metrics"
)

// PaymentService runs the declare / verify / confirm-or-reject trust
// workflow. The buyer's claim is never trusted: only an operator
// confirmation moves money-dependent state.
type PaymentService struct {
	store     store.Store
	stock     *StockService
	relations *RelationService
	events    events.Publisher
	log       *logger.Logger
}

func NewPaymentService(st store.Store, stock *StockService, relations *RelationService, pub events.Publisher, log *logger.Logger) *PaymentService {
	return &PaymentService{store: st, stock: stock, relations: relations, events: pub, log: log}
}

// Claim records the buyer's assertion that payment was sent and escalates
// the attached conversation so an operator verifies it.
func (s *PaymentService) Claim(ctx context.Context, merchantID, orderID, buyerReference, note string) (*model.Order, error) {
	var out *model.Order
	var escalatedConv string
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if o.Status != model.OrderPending {
			return &InvalidStateError{Msg: fmt.Sprintf("order %s is %s, payment can only be claimed while pending", o.ID, o.Status)}
		}
		if o.ClaimPending() {
			return &InvalidStateError{Msg: fmt.Sprintf("order %s already has a payment claim pending", o.ID)}
		}
		o.Claim = &model.PaymentClaim{
			BuyerReference: buyerReference,
			Note:           note,
			ClaimedAt:      timeNow(),
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}

		if o.ConversationID != "" {
			content := "Buyer reports payment sent"
			if buyerReference != "" {
				content += " - ref " + buyerReference
			}
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, content, o.ID); err != nil {
				return err
			}
			newly, err := escalateIfOpen(ctx, tx, o.ConversationID, model.ReasonPayment, "payment claim awaiting verification")
			if err != nil {
				return err
			}
			if newly {
				escalatedConv = o.ConversationID
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment claimed",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID))
	if escalatedConv != "" {
		metrics.EscalationsTotal.WithLabelValues(string(model.ReasonPayment)).Inc()
		publish(ctx, s.events, s.log, &model.Event{
			MerchantID:     merchantID,
			Type:           model.EventConversationEscalated,
			OrderID:        out.ID,
			ConversationID: escalatedConv,
			RelationID:     out.RelationID,
			Reason:         string(model.ReasonPayment),
		})
	}
	return out, nil
}

// ClaimLatest resolves the buyer's most recent pending order by their
// channel reference and claims payment on it. This is the inbound-message
// path where the buyer never knows an order id.
func (s *PaymentService) ClaimLatest(ctx context.Context, merchantID, buyerRef, buyerReference, note string) (*model.Order, error) {
	rel, err := s.store.Relations().FindByBuyer(ctx, merchantID, cleanBuyerRef(buyerRef))
	if err != nil {
		return nil, err
	}
	o, err := s.store.Orders().LatestPendingByRelation(ctx, rel.ID)
	if err != nil {
		return nil, err
	}
	return s.Claim(ctx, merchantID, o.ID, buyerReference, note)
}

// Confirm is the operator's verification that money actually arrived. In a
// single transaction it moves the order to paid, decrements stock for every
// line and credits the buyer's relation. If stock was sold out from under
// the order it fails with StockConflictError and the order is parked in the
// problem state instead.
func (s *PaymentService) Confirm(ctx context.Context, merchantID, orderID string, method model.PaymentMethod, reference, operatorID string) (*model.Order, error) {
	switch method {
	case model.PaymentOrangeMoney, model.PaymentMTNMoney, model.PaymentCash:
	default:
		return nil, validationf("unknown payment method %q", method)
	}

	var out *model.Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID {
			return store.ErrNotFound
		}
		switch o.Status {
		case model.OrderPending:
			// proceeds; a claim is not required, operators may confirm
			// payments they verified out of band
		case model.OrderPaid, model.OrderShipped, model.OrderDelivered:
			return &AlreadyProcessedError{OrderID: o.ID}
		default:
			return &InvalidStateError{Msg: fmt.Sprintf("order %s is %s and cannot be confirmed", o.ID, o.Status)}
		}

		for _, line := range linesInLockOrder(o.Lines) {
			if err := s.stock.commit(ctx, tx, line.ProductID, line.Quantity); err != nil {
				var insufficient *InsufficientStockError
				if errors.As(err, &insufficient) {
					return &StockConflictError{OrderID: o.ID, ProductID: line.ProductID, Err: insufficient}
				}
				return err
			}
		}

		now := timeNow()
		o.Status = model.OrderPaid
		o.PaymentMethod = method
		o.PaymentReference = reference
		o.ValidatedBy = operatorID
		o.ValidatedAt = &now
		o.StockCommitted = true
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}

		if err := s.relations.recordPurchase(ctx, tx, o.RelationID, o.FinalAmount); err != nil {
			return err
		}

		if o.ConversationID != "" {
			content := fmt.Sprintf("Payment of %d GNF confirmed via %s", o.FinalAmount, method)
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, content, o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		var conflict *StockConflictError
		if errors.As(err, &conflict) {
			metrics.StockConflicts.Inc()
			s.parkProblem(ctx, merchantID, orderID, conflict)
		}
		return nil, err
	}

	for _, line := range out.Lines {
		s.stock.invalidate(ctx, line.ProductID)
	}

	metrics.PaymentsConfirmed.Inc()
	s.log.Info("payment confirmed",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID),
		zap.String("operator_id", operatorID),
		zap.Int64("amount", out.FinalAmount))
	publish(ctx, s.events, s.log, &model.Event{
		MerchantID: merchantID,
		Type:       model.EventPaymentConfirmed,
		OrderID:    out.ID,
		RelationID: out.RelationID,
		Amount:     out.FinalAmount,
	})
	return out, nil
}

// parkProblem moves an order that lost a stock race into the problem state
// in its own transaction. The confirmation already failed; this is a
// compensating write and its own failure is only logged.
func (s *PaymentService) parkProblem(ctx context.Context, merchantID, orderID string, conflict *StockConflictError) {
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID || o.Status != model.OrderPending {
			return nil
		}
		o.Status = model.OrderProblem
		o.ProblemNote = fmt.Sprintf("stock conflict on product %s during payment confirmation", conflict.ProductID)
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}
		if o.ConversationID != "" {
			return appendSystemMessage(ctx, tx, o.ConversationID, merchantID, "Order needs attention: stock ran out before payment was confirmed", o.ID)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to park conflicted order",
			zap.String("order_id", orderID),
			zap.Error(err))
		return
	}
	s.log.Warn("order parked after stock conflict",
		zap.String("order_id", orderID),
		zap.String("product_id", conflict.ProductID))
}

// Reject clears a pending claim without touching stock or counters. The
// order stays pending so the buyer can claim again with a valid reference.
func (s *PaymentService) Reject(ctx context.Context, merchantID, orderID, reason, operatorID string) (*model.Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, validationf("rejection reason is required")
	}

	var out *model.Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if !o.ClaimPending() {
			return &InvalidStateError{Msg: fmt.Sprintf("order %s has no payment claim to reject", o.ID)}
		}
		now := timeNow()
		o.Claim = nil
		o.RejectedBy = operatorID
		o.RejectionReason = reason
		o.RejectedAt = &now
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}
		if o.ConversationID != "" {
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, "Payment could not be verified: "+reason, o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PaymentsRejected.Inc()
	s.log.Info("payment rejected",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID),
		zap.String("reason", reason))
	publish(ctx, s.events, s.log, &model.Event{
		MerchantID: merchantID,
		Type:       model.EventPaymentRejected,
		OrderID:    out.ID,
		RelationID: out.RelationID,
		Reason:     reason,
	})
	return out, nil
}
