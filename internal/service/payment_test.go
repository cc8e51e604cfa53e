package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Camus10737/warket/internal/model"
)

func TestClaimPayment(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	got, err := f.payments.Claim(context.Background(), testMerchant, o.ID, "OM-REF-1", "sent just now")
	require.NoError(t, err)
	require.NotNil(t, got.Claim)
	assert.Equal(t, "OM-REF-1", got.Claim.BuyerReference)
	assert.Equal(t, model.OrderPending, got.Status)
}

func TestClaimPaymentTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-REF-1", "")
	require.NoError(t, err)

	_, err = f.payments.Claim(ctx, testMerchant, o.ID, "OM-REF-2", "")
	var state *InvalidStateError
	assert.ErrorAs(t, err, &state)
}

func TestClaimEscalatesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.orderWithConversation(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-REF-1", "")
	require.NoError(t, err)

	conv, err := f.escalations.Get(ctx, testMerchant, o.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, conv.Status)
	assert.Equal(t, model.ReasonPayment, conv.EscalationReason)
}

func TestClaimLatestResolvesBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	// same buyer, different formatting of the reference
	got, err := f.payments.ClaimLatest(ctx, testMerchant, "+224-622-00-11-22", "OM-REF-1", "")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	require.NotNil(t, got.Claim)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.orderWithConversation(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 2})

	got, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentOrangeMoney, "OM-555", "op-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, got.Status)
	assert.Equal(t, "op-1", got.ValidatedBy)
	assert.True(t, got.StockCommitted)

	// stock decremented and sales counted
	prod, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, prod.Quantity)
	assert.Equal(t, 2, prod.TotalSold)

	// relation credited
	rel, err := f.relations.Get(ctx, testMerchant, got.RelationID)
	require.NoError(t, err)
	assert.Equal(t, 1, rel.PurchaseCount)
	assert.Equal(t, int64(300000), rel.TotalSpent)
	require.NotNil(t, rel.LastPurchaseAt)

	// timeline entry recorded
	msgs, err := f.escalations.Messages(ctx, testMerchant, o.ConversationID, 50)
	require.NoError(t, err)
	var found bool
	for _, m := range msgs {
		if m.Sender == model.SenderSystem && m.OrderID == o.ID {
			found = true
		}
	}
	assert.True(t, found, "expected a system message for the confirmation")

	assert.Contains(t, f.pub.types(), model.EventPaymentConfirmed)
}

func TestConfirmPaymentUnknownMethod(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Confirm(context.Background(), testMerchant, o.ID, "wire", "", "op-1")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestConfirmPaymentIdempotencyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 2})

	_, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentCash, "", "op-1")
	require.NoError(t, err)

	_, err = f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentCash, "", "op-2")
	var processed *AlreadyProcessedError
	require.ErrorAs(t, err, &processed)

	// no double decrement, no double credit
	prod, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, prod.Quantity)

	rel, err := f.relations.Get(ctx, testMerchant, o.RelationID)
	require.NoError(t, err)
	assert.Equal(t, 1, rel.PurchaseCount)
}

func TestConfirmPaymentConcurrentExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentCash, "", "op-1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	prod, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, prod.Quantity)
}

func TestConfirmPaymentStockConflictParksOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 2)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 2})

	// stock sold out of band between order creation and confirmation
	_, err := f.stock.Adjust(ctx, testMerchant, p.ID, -1)
	require.NoError(t, err)

	_, err = f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentOrangeMoney, "OM-1", "op-1")
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, p.ID, conflict.ProductID)

	// the order was parked, stock and relation untouched
	got, err := f.orders.Get(ctx, testMerchant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderProblem, got.Status)
	assert.False(t, got.StockCommitted)

	prod, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, prod.Quantity)
	assert.Equal(t, 0, prod.TotalSold)

	rel, err := f.relations.Get(ctx, testMerchant, o.RelationID)
	require.NoError(t, err)
	assert.Equal(t, 0, rel.PurchaseCount)
}

func TestConfirmCancelledOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.orders.Cancel(ctx, testMerchant, o.ID, "void")
	require.NoError(t, err)

	_, err = f.payments.Confirm(ctx, testMerchant, o.ID, model.PaymentCash, "", "op-1")
	var state *InvalidStateError
	assert.ErrorAs(t, err, &state)
}

func TestRejectPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-BAD", "")
	require.NoError(t, err)

	got, err := f.payments.Reject(ctx, testMerchant, o.ID, "no transfer under that reference", "op-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)
	assert.Nil(t, got.Claim)
	assert.Equal(t, "op-1", got.RejectedBy)
	assert.Contains(t, f.pub.types(), model.EventPaymentRejected)

	// stock untouched
	prod, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, prod.Quantity)
}

func TestRejectThenReclaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-BAD", "")
	require.NoError(t, err)
	_, err = f.payments.Reject(ctx, testMerchant, o.ID, "not found", "op-1")
	require.NoError(t, err)

	got, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-GOOD", "")
	require.NoError(t, err)
	require.NotNil(t, got.Claim)
	assert.Equal(t, "OM-GOOD", got.Claim.BuyerReference)
}

func TestRejectWithoutClaimFails(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.order(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.payments.Reject(context.Background(), testMerchant, o.ID, "nothing claimed", "op-1")
	var state *InvalidStateError
	assert.ErrorAs(t, err, &state)
}

func TestClaimOnSettledConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Sneakers", 150000, 120000, 10)
	o := f.orderWithConversation(t, model.OrderLineRequest{ProductID: p.ID, Quantity: 1})

	_, err := f.escalations.Resolve(ctx, testMerchant, o.ConversationID, "answered earlier")
	require.NoError(t, err)

	// the buyer can still declare payment on the pending order
	got, err := f.payments.Claim(ctx, testMerchant, o.ID, "OM-REF-1", "")
	require.NoError(t, err)
	require.NotNil(t, got.Claim)
	assert.Equal(t, "OM-REF-1", got.Claim.BuyerReference)
	assert.Equal(t, model.OrderPending, got.Status)

	// the settled conversation is left alone
	conv, err := f.escalations.Get(ctx, testMerchant, o.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationResolved, conv.Status)
	assert.NotContains(t, f.pub.types(), model.EventConversationEscalated)
}
