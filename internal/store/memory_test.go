package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Camus10737/warket/internal/model"
)

func newProduct(id string) *model.Product {
	now := time.Now()
	return &model.Product{
		ID:           id,
		MerchantID:   "m1",
		Name:         "Sneakers",
		DisplayPrice: 150000,
		FloorPrice:   120000,
		Quantity:     10,
		Status:       model.ProductAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newOrder(id, relationID string, status model.OrderStatus, createdAt time.Time) *model.Order {
	return &model.Order{
		ID:          id,
		MerchantID:  "m1",
		RelationID:  relationID,
		Lines:       []model.OrderLine{{ProductID: "p1", ProductName: "Sneakers", UnitPrice: 150000, Quantity: 1, LineTotal: 150000}},
		TotalAmount: 150000,
		FinalAmount: 150000,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryAtomicallyCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Atomically(ctx, func(ctx context.Context, tx Store) error {
		return tx.Products().Create(ctx, newProduct("p1"))
	})
	require.NoError(t, err)

	p, err := m.Products().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity)
}

func TestMemoryAtomicallyRollsBack(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Products().Create(ctx, newProduct("p1")))

	boom := errors.New("boom")
	err := m.Atomically(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.Products().GetForUpdate(ctx, "p1")
		if err != nil {
			return err
		}
		p.Quantity = 0
		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		if err := tx.Products().Create(ctx, newProduct("p2")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// both mutations rolled back
	p, err := m.Products().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity)
	_, err = m.Products().Get(ctx, "p2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryOrderRevisionConflict(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Orders().Create(ctx, newOrder("o1", "r1", model.OrderPending, time.Now())))

	a, err := m.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	b, err := m.Orders().Get(ctx, "o1")
	require.NoError(t, err)

	a.Status = model.OrderPaid
	require.NoError(t, m.Orders().Update(ctx, a))
	assert.Equal(t, int64(1), a.Revision)

	b.Status = model.OrderCancelled
	err = m.Orders().Update(ctx, b)
	assert.ErrorIs(t, err, ErrRevisionConflict)

	got, err := m.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, got.Status)
}

func TestMemoryLatestPendingByRelation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, m.Orders().Create(ctx, newOrder("o1", "r1", model.OrderPending, base.Add(-2*time.Hour))))
	require.NoError(t, m.Orders().Create(ctx, newOrder("o2", "r1", model.OrderPending, base.Add(-time.Hour))))
	require.NoError(t, m.Orders().Create(ctx, newOrder("o3", "r1", model.OrderPaid, base)))
	require.NoError(t, m.Orders().Create(ctx, newOrder("o4", "r2", model.OrderPending, base)))

	got, err := m.Orders().LatestPendingByRelation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "o2", got.ID)

	_, err = m.Orders().LatestPendingByRelation(ctx, "r3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRelationUniquePerBuyer(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	rel := &model.ClientRelation{ID: "r1", MerchantID: "m1", BuyerRef: "622001122", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.Relations().Create(ctx, rel))

	dup := &model.ClientRelation{ID: "r2", MerchantID: "m1", BuyerRef: "622001122", CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, m.Relations().Create(ctx, dup), ErrDuplicate)

	// same buyer under another merchant is fine
	other := &model.ClientRelation{ID: "r3", MerchantID: "m2", BuyerRef: "622001122", CreatedAt: now, UpdatedAt: now}
	assert.NoError(t, m.Relations().Create(ctx, other))

	got, err := m.Relations().FindByBuyer(ctx, "m1", "622001122")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)
}

func TestMemoryFindActiveSkipsTerminal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()

	resolved := &model.Conversation{ID: "c1", MerchantID: "m1", RelationID: "r1", Status: model.ConversationResolved, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.Conversations().Create(ctx, resolved))

	_, err := m.Conversations().FindActive(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	active := &model.Conversation{ID: "c2", MerchantID: "m1", RelationID: "r1", Status: model.ConversationAutomated, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, m.Conversations().Create(ctx, active))

	got, err := m.Conversations().FindActive(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestMemoryMessagesLimitKeepsMostRecent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		msg := &model.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "c1",
			MerchantID:     "m1",
			Sender:         model.SenderBuyer,
			Kind:           model.MessageText,
			Content:        "msg",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, m.Messages().Append(ctx, msg))
	}

	msgs, err := m.Messages().ListByConversation(ctx, "c1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	// most recent three, oldest first
	assert.Equal(t, "c", msgs[0].ID)
	assert.Equal(t, "e", msgs[2].ID)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Products().Create(ctx, newProduct("p1")))

	a, err := m.Products().Get(ctx, "p1")
	require.NoError(t, err)
	a.Quantity = 0

	b, err := m.Products().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, b.Quantity)
}
