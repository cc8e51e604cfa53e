package model

import (
	"time"
)

// OrderStatus represents the state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderProblem   OrderStatus = "problem"
	OrderCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further status transitions are allowed.
// A problem order is terminal for stock purposes but may still be cancelled.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderProblem, OrderCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the buyer settled an order.
type PaymentMethod string

const (
	PaymentOrangeMoney PaymentMethod = "orange_money"
	PaymentMTNMoney    PaymentMethod = "mtn_money"
	PaymentCash        PaymentMethod = "cash"
)

// OrderLine is one product entry within an order. UnitPrice is snapshotted at
// creation time and never re-read from the catalog.
type OrderLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

// PaymentClaim is a buyer's assertion that payment was sent, awaiting
// operator confirmation.
type PaymentClaim struct {
	BuyerReference string    `json:"buyer_reference,omitempty"`
	Note           string    `json:"note,omitempty"`
	ClaimedAt      time.Time `json:"claimed_at"`
}

// Order is a buyer's purchase moving through the fulfillment workflow.
// Orders are never deleted, only transitioned to a terminal status.
type Order struct {
	ID             string `json:"id"`
	MerchantID     string `json:"merchant_id"`
	RelationID     string `json:"relation_id"`
	ConversationID string `json:"conversation_id,omitempty"`

	Lines       []OrderLine `json:"lines"`
	TotalAmount int64       `json:"total_amount"`
	Discount    int64       `json:"discount,omitempty"`
	FinalAmount int64       `json:"final_amount"`

	Status OrderStatus   `json:"status"`
	Claim  *PaymentClaim `json:"claim,omitempty"`

	PaymentMethod    PaymentMethod `json:"payment_method,omitempty"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	ValidatedBy      string        `json:"validated_by,omitempty"`
	ValidatedAt      *time.Time    `json:"validated_at,omitempty"`

	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`

	// StockCommitted guards the cross-entity invariant: quantities are
	// decremented at most once per order and restored at most once.
	StockCommitted bool `json:"stock_committed,omitempty"`

	ProblemNote      string     `json:"problem_note,omitempty"`
	CancelReason     string     `json:"cancel_reason,omitempty"`
	DeliveryAddress  string     `json:"delivery_address,omitempty"`
	DeliveryExpected *time.Time `json:"delivery_expected,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`

	// Revision increases on every mutation; stale writers are rejected.
	Revision int64 `json:"revision"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClaimPending reports whether a payment claim is awaiting a decision.
func (o *Order) ClaimPending() bool {
	return o.Claim != nil && o.Status == OrderPending
}

// OrderLineRequest is one requested line in an order creation request.
// UnitPrice is optional; zero means the product's display price.
type OrderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price,omitempty"`
}

// CreateOrderRequest is the request to create a new order.
type CreateOrderRequest struct {
	RelationID     string             `json:"relation_id,omitempty"`
	BuyerRef       string             `json:"buyer_ref,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
	Lines          []OrderLineRequest `json:"lines"`
	Discount       int64              `json:"discount,omitempty"`
}

// ClaimPaymentRequest is the buyer-side payment claim.
type ClaimPaymentRequest struct {
	OrderID        string `json:"order_id,omitempty"`
	BuyerRef       string `json:"buyer_ref,omitempty"`
	BuyerReference string `json:"buyer_reference,omitempty"`
	Note           string `json:"note,omitempty"`
}

// ConfirmPaymentRequest is the operator-side payment confirmation.
type ConfirmPaymentRequest struct {
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference,omitempty"`
}

// RejectPaymentRequest is the operator-side payment rejection.
type RejectPaymentRequest struct {
	Reason string `json:"reason"`
}

// ShipOrderRequest carries optional delivery details.
type ShipOrderRequest struct {
	Address  string     `json:"address,omitempty"`
	Expected *time.Time `json:"expected,omitempty"`
}

// CancelOrderRequest carries the cancellation reason.
type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReportProblemRequest carries the problem description.
type ReportProblemRequest struct {
	Description string `json:"description"`
}
