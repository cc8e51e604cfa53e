package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/events"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
	"github.com/Camus10737/warket/pkg/metrics"
)

// OrderService owns the order lifecycle state machine.
type OrderService struct {
	store     store.Store
	stock     *StockService
	relations *RelationService
	events    events.Publisher
	log       *logger.Logger
}

func NewOrderService(st store.Store, stock *StockService, relations *RelationService, pub events.Publisher, log *logger.Logger) *OrderService {
	return &OrderService{store: st, stock: stock, relations: relations, events: pub, log: log}
}

// orderTransitions is the legality table for the lifecycle state machine.
// Delivered and cancelled are terminal.
var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending: {model.OrderPaid, model.OrderProblem, model.OrderCancelled},
	model.OrderPaid:    {model.OrderShipped, model.OrderProblem, model.OrderCancelled},
	model.OrderShipped: {model.OrderDelivered, model.OrderProblem, model.OrderCancelled},
	model.OrderProblem: {model.OrderPending, model.OrderCancelled},
}

func canTransition(from, to model.OrderStatus) bool {
	for _, t := range orderTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Create validates the requested lines against the live catalog and records
// a pending order. Stock is not reserved here; it is committed at payment
// confirmation.
func (s *OrderService) Create(ctx context.Context, merchantID string, req *model.CreateOrderRequest) (*model.Order, error) {
	if len(req.Lines) == 0 {
		return nil, validationf("order must have at least one line")
	}
	if req.Discount < 0 {
		return nil, validationf("discount cannot be negative")
	}

	relationID := req.RelationID
	if relationID == "" {
		rel, err := s.relations.Ensure(ctx, merchantID, req.BuyerRef, "")
		if err != nil {
			return nil, err
		}
		relationID = rel.ID
	} else {
		rel, err := s.store.Relations().Get(ctx, relationID)
		if err != nil {
			return nil, err
		}
		if rel.MerchantID != merchantID {
			return nil, store.ErrNotFound
		}
	}

	var out *model.Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		lines := make([]model.OrderLine, 0, len(req.Lines))
		var total int64
		for _, lr := range req.Lines {
			if lr.Quantity <= 0 {
				return validationf("line quantity must be positive")
			}
			p, err := tx.Products().Get(ctx, lr.ProductID)
			if err != nil {
				return validationf("unknown product %s", lr.ProductID)
			}
			if p.MerchantID != merchantID {
				return validationf("unknown product %s", lr.ProductID)
			}
			if p.Status != model.ProductAvailable {
				return validationf("product %s is not available", p.Name)
			}
			if lr.Quantity > p.Quantity {
				return validationf("product %s has only %d in stock", p.Name, p.Quantity)
			}
			unit := lr.UnitPrice
			if unit == 0 {
				unit = p.DisplayPrice
			}
			if unit < p.FloorPrice {
				return validationf("negotiated price for %s is below the floor price", p.Name)
			}
			line := model.OrderLine{
				ProductID:   p.ID,
				ProductName: p.Name,
				UnitPrice:   unit,
				Quantity:    lr.Quantity,
				LineTotal:   unit * int64(lr.Quantity),
			}
			total += line.LineTotal
			lines = append(lines, line)
		}

		final := total - req.Discount
		if final <= 0 {
			return validationf("final amount must be positive")
		}

		now := timeNow()
		o := &model.Order{
			ID:             newID(),
			MerchantID:     merchantID,
			RelationID:     relationID,
			ConversationID: req.ConversationID,
			Lines:          lines,
			TotalAmount:    total,
			Discount:       req.Discount,
			FinalAmount:    final,
			Status:         model.OrderPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if o.ConversationID != "" {
			content := fmt.Sprintf("Order created: %s for %d GNF", summarizeLines(lines), final)
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, content, o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCreated.Inc()
	s.log.Info("order created",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID),
		zap.Int64("final_amount", out.FinalAmount))
	publish(ctx, s.events, s.log, &model.Event{
		MerchantID: merchantID,
		Type:       model.EventOrderCreated,
		OrderID:    out.ID,
		RelationID: out.RelationID,
		Amount:     out.FinalAmount,
	})
	return out, nil
}

func summarizeLines(lines []model.OrderLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%dx %s", l.Quantity, l.ProductName))
	}
	return strings.Join(parts, ", ")
}

func (s *OrderService) Get(ctx context.Context, merchantID, orderID string) (*model.Order, error) {
	o, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *OrderService) List(ctx context.Context, merchantID string, status model.OrderStatus) ([]model.Order, error) {
	if status != "" && !status.Valid() {
		return nil, validationf("unknown order status %q", status)
	}
	return s.store.Orders().List(ctx, merchantID, status)
}

// Ship moves a paid order to shipped with its delivery details.
func (s *OrderService) Ship(ctx context.Context, merchantID, orderID string, req *model.ShipOrderRequest) (*model.Order, error) {
	if strings.TrimSpace(req.Address) == "" {
		return nil, validationf("delivery address is required")
	}
	return s.transition(ctx, merchantID, orderID, model.OrderShipped, func(o *model.Order) {
		o.DeliveryAddress = req.Address
		o.DeliveryExpected = req.Expected
	}, "Order shipped to "+req.Address)
}

// Deliver closes out a shipped order.
func (s *OrderService) Deliver(ctx context.Context, merchantID, orderID string) (*model.Order, error) {
	return s.transition(ctx, merchantID, orderID, model.OrderDelivered, func(o *model.Order) {
		now := timeNow()
		o.DeliveredAt = &now
	}, "Order delivered")
}

// ReportProblem parks the order in the problem state and escalates the
// attached conversation so an operator looks at it.
func (s *OrderService) ReportProblem(ctx context.Context, merchantID, orderID, description string) (*model.Order, error) {
	if strings.TrimSpace(description) == "" {
		return nil, validationf("problem description is required")
	}

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
		if o.Status.Terminal() {
			return &TerminalStateError{Entity: "order", ID: o.ID, Status: string(o.Status)}
		}
		if !canTransition(o.Status, model.OrderProblem) {
			return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(model.OrderProblem)}
		}
		o.Status = model.OrderProblem
		o.ProblemNote = description
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}
		if o.ConversationID != "" {
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, "Problem reported: "+description, o.ID); err != nil {
				return err
			}
			newly, err := escalateIfOpen(ctx, tx, o.ConversationID, model.ReasonProductDefect, description)
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

	s.log.Warn("order problem reported",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID))
	if escalatedConv != "" {
		metrics.EscalationsTotal.WithLabelValues(string(model.ReasonProductDefect)).Inc()
		publish(ctx, s.events, s.log, &model.Event{
			MerchantID:     merchantID,
			Type:           model.EventConversationEscalated,
			OrderID:        out.ID,
			ConversationID: escalatedConv,
			RelationID:     out.RelationID,
			Reason:         string(model.ReasonProductDefect),
		})
	}
	return out, nil
}

// Reopen returns a problem order to pending once the issue is settled.
func (s *OrderService) Reopen(ctx context.Context, merchantID, orderID string) (*model.Order, error) {
	return s.transition(ctx, merchantID, orderID, model.OrderPending, func(o *model.Order) {
		o.ProblemNote = ""
	}, "Order reopened")
}

// Cancel aborts the order from any non-terminal state. If stock was already
// committed by a payment confirmation it is returned to the shelf in the
// same transaction.
func (s *OrderService) Cancel(ctx context.Context, merchantID, orderID, reason string) (*model.Order, error) {
	var out *model.Order
	var released bool
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if o.Status.Terminal() {
			return &TerminalStateError{Entity: "order", ID: o.ID, Status: string(o.Status)}
		}
		if o.StockCommitted {
			for _, line := range linesInLockOrder(o.Lines) {
				if err := s.stock.release(ctx, tx, line.ProductID, line.Quantity); err != nil {
					return err
				}
			}
			o.StockCommitted = false
			released = true
		}
		o.Status = model.OrderCancelled
		o.CancelReason = reason
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}
		if o.ConversationID != "" {
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, "Order cancelled", o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if released {
		for _, line := range out.Lines {
			s.stock.invalidate(ctx, line.ProductID)
		}
	}

	s.log.Info("order cancelled",
		zap.String("order_id", out.ID),
		zap.String("merchant_id", merchantID),
		zap.String("reason", reason))
	return out, nil
}

// transition applies the legality table and an optional mutation in one
// transaction, then records a timeline entry.
func (s *OrderService) transition(ctx context.Context, merchantID, orderID string, target model.OrderStatus, mutate func(*model.Order), note string) (*model.Order, error) {
	var out *model.Order
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if o.Status.Terminal() {
			return &TerminalStateError{Entity: "order", ID: o.ID, Status: string(o.Status)}
		}
		if !canTransition(o.Status, target) {
			return &InvalidTransitionError{Entity: "order", From: string(o.Status), To: string(target)}
		}
		o.Status = target
		if mutate != nil {
			mutate(o)
		}
		if err := tx.Orders().Update(ctx, o); err != nil {
			return mapStoreErr("order", o.ID, err)
		}
		if o.ConversationID != "" && note != "" {
			if err := appendSystemMessage(ctx, tx, o.ConversationID, merchantID, note, o.ID); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order transitioned",
		zap.String("order_id", out.ID),
		zap.String("status", string(out.Status)))
	return out, nil
}
