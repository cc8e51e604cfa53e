package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store       *store.Memory
	pub         *recordingPublisher
	stock       *StockService
	relations   *RelationService
	orders      *OrderService
	payments    *PaymentService
	escalations *EscalationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	pub := &recordingPublisher{}
	log := &logger.Logger{Logger: zap.NewNop()}

	stock := NewStockService(st, nil, log)
	relations := NewRelationService(st, log)
	return &fixture{
		store:       st,
		pub:         pub,
		stock:       stock,
		relations:   relations,
		orders:      NewOrderService(st, stock, relations, pub, log),
		payments:    NewPaymentService(st, stock, relations, pub, log),
		escalations: NewEscalationService(st, relations, pub, NewTemplateResponder(), log),
	}
}

const testMerchant = "merchant-1"

func (f *fixture) product(t *testing.T, name string, price, floor int64, qty int) *model.Product {
	t.Helper()
	p, err := f.stock.Register(context.Background(), testMerchant, &model.RegisterProductRequest{
		Name:         name,
		DisplayPrice: price,
		FloorPrice:   floor,
		Quantity:     qty,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, lines ...model.OrderLineRequest) *model.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), testMerchant, &model.CreateOrderRequest{
		BuyerRef: "+224 622 00 11 22",
		Lines:    lines,
	})
	require.NoError(t, err)
	return o
}

// orderWithConversation creates an order attached to a live conversation, the
// way the inbound flow does.
func (f *fixture) orderWithConversation(t *testing.T, lines ...model.OrderLineRequest) *model.Order {
	t.Helper()
	res, err := f.escalations.Ingest(context.Background(), testMerchant, &model.IngestRequest{
		BuyerRef: "+224 622 00 11 22",
		Text:     "hello",
	})
	require.NoError(t, err)

	o, err := f.orders.Create(context.Background(), testMerchant, &model.CreateOrderRequest{
		RelationID:     res.Conversation.RelationID,
		ConversationID: res.Conversation.ID,
		Lines:          lines,
	})
	require.NoError(t, err)
	return o
}
