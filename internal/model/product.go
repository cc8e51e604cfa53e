// Package model defines data structures for the commerce engine.
package model

import (
	"time"
)

// ProductStatus represents the lifecycle status of a product.
type ProductStatus string

const (
	ProductAvailable    ProductStatus = "available"
	ProductOutOfStock   ProductStatus = "out_of_stock"
	ProductDiscontinued ProductStatus = "discontinued"
)

// Product is the engine's view of a catalog item. The engine owns on-hand
// quantity and status; everything else is a snapshot supplied by the catalog.
type Product struct {
	ID         string `json:"id"`
	MerchantID string `json:"merchant_id"`
	Name       string `json:"name"`

	// Prices in minor currency units. FloorPrice is the lowest unit price
	// the merchant accepts when a buyer negotiates.
	DisplayPrice int64 `json:"display_price"`
	FloorPrice   int64 `json:"floor_price"`

	Quantity  int           `json:"quantity"`
	Status    ProductStatus `json:"status"`
	TotalSold int           `json:"total_sold,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RegisterProductRequest is the request to register a product snapshot with
// the engine.
type RegisterProductRequest struct {
	Name         string `json:"name"`
	DisplayPrice int64  `json:"display_price"`
	FloorPrice   int64  `json:"floor_price"`
	Quantity     int    `json:"quantity"`
}

// AdjustStockRequest is the request to adjust on-hand quantity.
type AdjustStockRequest struct {
	Delta int `json:"delta"`
}
