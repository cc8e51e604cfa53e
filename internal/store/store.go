// Package store provides persistence for the commerce engine.
package store

import (
	"context"
	"errors"

	"github.com/Camus10737/warket/internal/model"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRevisionConflict is returned when an update targets a stale revision.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("already exists")
)

// ProductStore persists product snapshots and their on-hand quantity.
type ProductStore interface {
	Create(ctx context.Context, p *model.Product) error
	Get(ctx context.Context, id string) (*model.Product, error)
	// GetForUpdate reads a product with an exclusive lock inside a
	// transaction so that concurrent quantity adjustments serialize.
	GetForUpdate(ctx context.Context, id string) (*model.Product, error)
	Update(ctx context.Context, p *model.Product) error
	List(ctx context.Context, merchantID string) ([]model.Product, error)
}

// OrderStore persists orders. Update compares the caller's revision with the
// stored one and returns ErrRevisionConflict on mismatch; on success the
// revision is bumped.
type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	Get(ctx context.Context, id string) (*model.Order, error)
	// GetForUpdate reads an order with an exclusive lock inside a
	// transaction so that concurrent workflow steps serialize.
	GetForUpdate(ctx context.Context, id string) (*model.Order, error)
	Update(ctx context.Context, o *model.Order) error
	List(ctx context.Context, merchantID string, status model.OrderStatus) ([]model.Order, error)
	// LatestPendingByRelation returns the most recent pending order for a
	// buyer-merchant relation, or ErrNotFound.
	LatestPendingByRelation(ctx context.Context, relationID string) (*model.Order, error)
}

// ConversationStore persists conversations with the same revision discipline
// as orders.
type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	Get(ctx context.Context, id string) (*model.Conversation, error)
	Update(ctx context.Context, c *model.Conversation) error
	// FindActive returns the non-terminal conversation for a relation, or
	// ErrNotFound.
	FindActive(ctx context.Context, relationID string) (*model.Conversation, error)
	List(ctx context.Context, merchantID string, status model.ConversationStatus) ([]model.Conversation, error)
}

// MessageStore is append-only.
type MessageStore interface {
	Append(ctx context.Context, m *model.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

// RelationStore persists buyer-merchant relations.
type RelationStore interface {
	Create(ctx context.Context, r *model.ClientRelation) error
	Get(ctx context.Context, id string) (*model.ClientRelation, error)
	FindByBuyer(ctx context.Context, merchantID, buyerRef string) (*model.ClientRelation, error)
	Update(ctx context.Context, r *model.ClientRelation) error
	List(ctx context.Context, merchantID string) ([]model.ClientRelation, error)
}

// Store aggregates the entity stores and the transaction boundary.
type Store interface {
	Products() ProductStore
	Orders() OrderStore
	Conversations() ConversationStore
	Messages() MessageStore
	Relations() RelationStore

	// Atomically runs fn inside a transaction: every mutation made through
	// the tx store applies on success and none apply on error. fn must not
	// call Atomically again.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Close()
}
