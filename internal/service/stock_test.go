package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
)

func TestRegisterProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Sneakers", 150000, 120000, 10)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.ProductAvailable, p.Status)
	assert.Equal(t, 10, p.Quantity)
}

func TestRegisterProductValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.RegisterProductRequest
	}{
		{"empty name", model.RegisterProductRequest{DisplayPrice: 1000}},
		{"zero price", model.RegisterProductRequest{Name: "x"}},
		{"floor above display", model.RegisterProductRequest{Name: "x", DisplayPrice: 1000, FloorPrice: 2000}},
		{"negative quantity", model.RegisterProductRequest{Name: "x", DisplayPrice: 1000, Quantity: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.stock.Register(ctx, testMerchant, &tc.req)
			var validation *ValidationError
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestRegisterProductFloorDefaultsToDisplay(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Bag", 80000, 0, 5)
	assert.Equal(t, int64(80000), p.FloorPrice)
}

func TestRegisterProductZeroQuantityIsOutOfStock(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Bag", 80000, 0, 0)
	assert.Equal(t, model.ProductOutOfStock, p.Status)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bag", 80000, 0, 5)

	got, err := f.stock.Adjust(ctx, testMerchant, p.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)

	got, err = f.stock.Adjust(ctx, testMerchant, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
}

func TestAdjustStockNeverNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bag", 80000, 0, 2)

	_, err := f.stock.Adjust(ctx, testMerchant, p.ID, -3)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 2, insufficient.Available)
	assert.Equal(t, 3, insufficient.Requested)

	got, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
}

func TestAdjustStockStatusTracksQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bag", 80000, 0, 1)

	got, err := f.stock.Adjust(ctx, testMerchant, p.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, model.ProductOutOfStock, got.Status)

	got, err = f.stock.Adjust(ctx, testMerchant, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.ProductAvailable, got.Status)
}

func TestAdjustStockConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bag", 80000, 0, 10)

	// 20 decrements race over 10 units; exactly 10 must succeed
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.stock.Adjust(ctx, testMerchant, p.ID, -1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	got, err := f.stock.Get(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
	assert.Equal(t, model.ProductOutOfStock, got.Status)
}

func TestAdjustStockWrongMerchant(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Bag", 80000, 0, 5)

	_, err := f.stock.Adjust(context.Background(), "someone-else", p.ID, -1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the adjustment must have rolled back with the ownership check
	got, err := f.stock.Get(context.Background(), testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestDiscontinue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Bag", 80000, 0, 5)

	got, err := f.stock.Discontinue(ctx, testMerchant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductDiscontinued, got.Status)
	assert.Equal(t, 5, got.Quantity)

	_, err = f.stock.Discontinue(ctx, testMerchant, p.ID)
	var state *InvalidStateError
	assert.ErrorAs(t, err, &state)
}
