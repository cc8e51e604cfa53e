package model

import (
	"time"
)

// ClientRelation is the per-buyer, per-merchant aggregate record, distinct
// from the buyer's global identity. Created lazily on first contact; counters
// move only when a payment is confirmed.
type ClientRelation struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchant_id"`
	BuyerRef   string `json:"buyer_ref"`
	BuyerName  string `json:"buyer_name,omitempty"`

	PurchaseCount  int        `json:"purchase_count"`
	TotalSpent     int64      `json:"total_spent"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
