package model

import (
	"time"
)

// ConversationStatus represents who is handling a conversation.
type ConversationStatus string

const (
	ConversationAutomated ConversationStatus = "automated"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationResolved  ConversationStatus = "resolved"
	ConversationClosed    ConversationStatus = "closed"
)

// Terminal reports whether the conversation accepts no further transitions.
func (s ConversationStatus) Terminal() bool {
	return s == ConversationResolved || s == ConversationClosed
}

// EscalationReason is why a conversation was handed to a human operator.
type EscalationReason string

const (
	ReasonProductDefect EscalationReason = "product_defect"
	ReasonDiscount      EscalationReason = "discount"
	ReasonDelivery      EscalationReason = "delivery"
	ReasonComplexity    EscalationReason = "complexity"
	ReasonPayment       EscalationReason = "payment"
	ReasonOther         EscalationReason = "other"
)

// Conversation is a buyer-merchant message thread, created on the first
// inbound message for the pair.
type Conversation struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchant_id"`
	RelationID string `json:"relation_id"`

	Status           ConversationStatus `json:"status"`
	EscalationReason EscalationReason   `json:"escalation_reason,omitempty"`
	EscalationNote   string             `json:"escalation_note,omitempty"`
	EscalatedAt      *time.Time         `json:"escalated_at,omitempty"`
	ResolutionNote   string             `json:"resolution_note,omitempty"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time         `json:"closed_at,omitempty"`

	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`

	// Revision increases on every mutation; stale writers are rejected.
	Revision int64 `json:"revision"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EscalateRequest asks for a manual handoff to the operator.
type EscalateRequest struct {
	Reason EscalationReason `json:"reason"`
	Note   string           `json:"note,omitempty"`
}

// ResolveRequest closes out an escalation.
type ResolveRequest struct {
	Note string `json:"note,omitempty"`
}
