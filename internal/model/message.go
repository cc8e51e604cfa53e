package model

import (
	"time"
)

// SenderRole identifies who authored a message.
type SenderRole string

const (
	SenderBuyer    SenderRole = "buyer"
	SenderAgent    SenderRole = "agent"
	SenderOperator SenderRole = "operator"
	SenderSystem   SenderRole = "system"
)

// MessageKind is the payload type of a message.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageMedia  MessageKind = "media"
	MessageSystem MessageKind = "system"
)

// Message is one entry in a conversation. Append-only.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	MerchantID     string      `json:"merchant_id"`
	Sender         SenderRole  `json:"sender"`
	Kind           MessageKind `json:"kind"`
	Content        string      `json:"content"`
	OrderID        string      `json:"order_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// IngestRequest is an inbound buyer message from the messaging channel.
type IngestRequest struct {
	BuyerRef  string `json:"buyer_ref"`
	BuyerName string `json:"buyer_name,omitempty"`
	Text      string `json:"text"`
}

// IngestResult describes what the engine did with an inbound message.
type IngestResult struct {
	Conversation *Conversation    `json:"conversation"`
	Message      *Message         `json:"message"`
	Reply        *Message         `json:"reply,omitempty"`
	Escalated    bool             `json:"escalated"`
	Reason       EscalationReason `json:"reason,omitempty"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}
