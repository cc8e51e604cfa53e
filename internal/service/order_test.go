package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Camus10737/warket/internal/model"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)

	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 2})

	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, int64(300000), o.TotalAmount)
	assert.Equal(t, int64(300000), o.FinalAmount)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Sneakers", o.Lines[0].ProductName)
	assert.Equal(t, int64(150000), o.Lines[0].UnitPrice)
	assert.Equal(t, []model.EventType{model.EventOrderCreated}, f.pub.types())

	// creation does not touch stock
	got, err := f.stock.Get(context.Background(), testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestCreateOrderNegotiatedPrice(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)

	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1, UnitPrice: 130000})
	assert.Equal(t, int64(130000), o.FinalAmount)
}

func TestCreateOrderBelowFloorPrice(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)

	_, err := f.orders.Create(context.Background(), testMerchant, &model.CreateOrderRequest{
		BuyerRef: "620000001",
		Lines:    []model.OrderLineRequest{{ProductID: p.ID, Quantity: 1, UnitPrice: 100000}},
	})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 3)

	cases := []struct {
		name string
		req  model.CreateOrderRequest
	}{
		{"no lines", model.CreateOrderRequest{BuyerRef: "620000001"}},
		{"zero quantity", model.CreateOrderRequest{
			BuyerRef: "620000001",
			Lines:    []model.OrderLineRequest{{ProductID: p.ID, Quantity: 0}},
		}},
		{"quantity above stock", model.CreateOrderRequest{
			BuyerRef: "620000001",
			Lines:    []model.OrderLineRequest{{ProductID: p.ID, Quantity: 4}},
		}},
		{"unknown product", model.CreateOrderRequest{
			BuyerRef: "620000001",
			Lines:    []model.OrderLineRequest{{ProductID: "7f000000-0000-7000-8000-000000000000", Quantity: 1}},
		}},
		{"discount swallows total", model.CreateOrderRequest{
			BuyerRef: "620000001",
			Lines:    []model.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
			Discount: 150000,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orders.Create(ctx, testMerchant, &tc.req)
			var validation *ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestCreateOrderDiscontinuedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 3)
	_, err := f.stock.Discontinue(ctx, testMerchant, p.ID)
	require.NoError(t, err)

	_, err = f.orders.Create(ctx, testMerchant, &model.CreateOrderRequest{
		BuyerRef: "620000001",
		Lines:    []model.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
	})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestFulfillmentFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentOrangeMoney, "OM-123", "op-1")
	require.NoError(t, err)

	shipped, err := f.orders.Ship(ctx, testMerchant, o.ID, &model.ShipOrderRequest{Address: "Kaloum, Conakry"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, shipped.Status)
	assert.Equal(t, "Kaloum, Conakry", shipped.DeliveryAddress)

	delivered, err := f.orders.Deliver(ctx, testMerchant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)
}

func TestShipRequiresPaid(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.orders.Ship(context.Background(), testMerchant, o.ID, &model.ShipOrderRequest{Address: "Kaloum"})
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "pending", transition.From)
	assert.Equal(t, "shipped", transition.To)
}

func TestDeliveredIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentCash, "", "op-1")
	require.NoError(t, err)
	_, err = f.orders.Ship(ctx, testMerchant, o.ID, &model.ShipOrderRequest{Address: "Kaloum"})
	require.NoError(t, err)
	_, err = f.orders.Deliver(ctx, testMerchant, o.ID)
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, testMerchant, o.ID, "changed my mind")
	var terminal *TerminalStateError
	assert.ErrorAs(t, err, &terminal)
}

func TestCancelPendingDoesNotTouchStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 3})

	cancelled, err := f.orders.Cancel(ctx, testMerchant, o.ID, "buyer vanished")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.Equal(t, "buyer vanished", cancelled.CancelReason)

	got, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestCancelPaidRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 3})

	_, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentMTNMoney, "MM-9", "op-1")
	require.NoError(t, err)

	got, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.Quantity)

	cancelled, err := f.orders.Cancel(ctx, testMerchant, o.ID, "address unreachable")
	require.NoError(t, err)
	assert.False(t, cancelled.StockCommitted)

	got, err = f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity)
}

func TestReportProblemEscalatesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.orderWithConversation(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	got, err := f.orders.ReportProblem(ctx, testMerchant, o.ID, "sole came off after one day")
	require.NoError(t, err)
	assert.Equal(t, model.OrderProblem, got.Status)
	assert.Equal(t, "sole came off after one day", got.ProblemNote)

	conv, err := f.escalations.Get(ctx, testMerchant, o.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, conv.Status)
	assert.Equal(t, model.ReasonProductDefect, conv.EscalationReason)
	assert.Contains(t, f.pub.types(), model.EventConversationEscalated)
}

func TestProblemOrderCanReturnToPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.orders.ReportProblem(ctx, testMerchant, o.ID, "buyer disputes the price")
	require.NoError(t, err)

	back, err := f.orders.Reopen(ctx, testMerchant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, back.Status)
	assert.Empty(t, back.ProblemNote)
}

func TestOrderWrongMerchantIsNotFound(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.orders.Get(context.Background(), "someone-else", o.ID)
	assert.Error(t, err)
}

func TestReportProblemOnSettledConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.orderWithConversation(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.escalations.Resolve(ctx, testMerchant, o.ConversationID, "answered earlier")
	require.NoError(t, err)

	got, err := f.orders.ReportProblem(ctx, testMerchant, o.ID, "wrong size delivered")
	require.NoError(t, err)
	assert.Equal(t, model.OrderProblem, got.Status)

	conv, err := f.escalations.Get(ctx, testMerchant, o.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationResolved, conv.Status)
}

func TestLinesInLockOrder(t *testing.T) {
	lines := []model.OrderLine{
		{ProductID: "p-3"}, {ProductID: "p-1"}, {ProductID: "p-2"},
	}
	sorted := linesInLockOrder(lines)
	assert.Equal(t, "p-1", sorted[0].ProductID)
	assert.Equal(t, "p-2", sorted[1].ProductID)
	assert.Equal(t, "p-3", sorted[2].ProductID)
	// the order's own lines keep their presentation order
	assert.Equal(t, "p-3", lines[0].ProductID)
}
