package model

import (
	"time"
)

// EventType classifies domain events exposed to external subscribers.
type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventPaymentConfirmed      EventType = "payment.confirmed"
	EventPaymentRejected       EventType = "payment.rejected"
	EventConversationEscalated EventType = "conversation.escalated"
	EventConversationResolved  EventType = "conversation.resolved"
)

// Event is a domain event published after the originating mutation commits.
// An external notifier subscribes to these to alert the operator.
type Event struct {
	ID             string    `json:"id"`
	MerchantID     string    `json:"merchant_id"`
	Type           EventType `json:"type"`
	OrderID        string    `json:"order_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	RelationID     string    `json:"relation_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
