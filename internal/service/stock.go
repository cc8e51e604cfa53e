package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/cache"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
)

// StockService owns the product catalog and its on-hand quantities.
type StockService struct {
	store store.Store
	cache *cache.Cache
	log   *logger.Logger
}

func NewStockService(st store.Store, c *cache.Cache, log *logger.Logger) *StockService {
	return &StockService{store: st, cache: c, log: log}
}

// Register creates a product. Floor price defaults to the display price
// when omitted so that negotiation can never undercut an unset floor.
func (s *StockService) Register(ctx context.Context, merchantID string, req *model.RegisterProductRequest) (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationf("product name is required")
	}
	if req.DisplayPrice <= 0 {
		return nil, validationf("display price must be positive")
	}
	floor := req.FloorPrice
	if floor == 0 {
		floor = req.DisplayPrice
	}
	if floor < 0 || floor > req.DisplayPrice {
		return nil, validationf("floor price must be between 0 and the display price")
	}
	if req.Quantity < 0 {
		return nil, validationf("quantity cannot be negative")
	}

	now := timeNow()
	p := &model.Product{
		ID:           newID(),
		MerchantID:   merchantID,
		Name:         name,
		DisplayPrice: req.DisplayPrice,
		FloorPrice:   floor,
		Quantity:     req.Quantity,
		Status:       model.ProductAvailable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Quantity == 0 {
		p.Status = model.ProductOutOfStock
	}
	if err := s.store.Products().Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("product registered",
		zap.String("product_id", p.ID),
		zap.String("merchant_id", merchantID),
		zap.Int("quantity", p.Quantity))
	return p, nil
}

func (s *StockService) Get(ctx context.Context, merchantID, productID string) (*model.Product, error) {
	if p, ok := s.cache.GetProduct(ctx, productID); ok && p.MerchantID == merchantID {
		return p, nil
	}
	p, err := s.store.Products().Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	s.cache.SetProduct(ctx, p)
	return p, nil
}

func (s *StockService) List(ctx context.Context, merchantID string) ([]model.Product, error) {
	return s.store.Products().List(ctx, merchantID)
}

// Adjust changes the on-hand quantity by delta. Atomic with respect to
// concurrent adjustments; a delta that would drive quantity negative fails
// with InsufficientStockError and changes nothing.
func (s *StockService) Adjust(ctx context.Context, merchantID, productID string, delta int) (*model.Product, error) {
	if delta == 0 {
		return nil, validationf("delta cannot be zero")
	}
	var out *model.Product
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		p, err := s.adjust(ctx, tx, productID, delta)
		if err != nil {
			return err
		}
		if p.MerchantID != merchantID {
			return store.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productID)
	return out, nil
}

// Discontinue removes a product from sale without touching its stock.
func (s *StockService) Discontinue(ctx context.Context, merchantID, productID string) (*model.Product, error) {
	var out *model.Product
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		p, err := tx.Products().GetForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if p.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if p.Status == model.ProductDiscontinued {
			return &InvalidStateError{Msg: "product is already discontinued"}
		}
		p.Status = model.ProductDiscontinued
		p.UpdatedAt = timeNow()
		if err := tx.Products().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, productID)
	return out, nil
}

// adjust applies a quantity delta inside an existing transaction and keeps
// the availability status in sync.
func (s *StockService) adjust(ctx context.Context, tx store.Store, productID string, delta int) (*model.Product, error) {
	p, err := tx.Products().GetForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	next := p.Quantity + delta
	if next < 0 {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Available: p.Quantity,
			Requested: -delta,
		}
	}
	p.Quantity = next
	switch {
	case next == 0 && p.Status == model.ProductAvailable:
		p.Status = model.ProductOutOfStock
	case next > 0 && p.Status == model.ProductOutOfStock:
		p.Status = model.ProductAvailable
	}
	p.UpdatedAt = timeNow()
	if err := tx.Products().Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// commit decrements stock for a confirmed sale and credits the sales counter.
// The caller invalidates the cache once its transaction has committed.
func (s *StockService) commit(ctx context.Context, tx store.Store, productID string, qty int) error {
	p, err := s.adjust(ctx, tx, productID, -qty)
	if err != nil {
		return err
	}
	p.TotalSold += qty
	return tx.Products().Update(ctx, p)
}

// release returns stock from a cancelled order without touching sales totals.
// The caller invalidates the cache once its transaction has committed.
func (s *StockService) release(ctx context.Context, tx store.Store, productID string, qty int) error {
	_, err := s.adjust(ctx, tx, productID, qty)
	return err
}

// invalidate drops the cached projection for a product after a transaction
// that moved its stock has committed. Invalidating mid-transaction lets a
// racing read repopulate the cache with pre-commit state.
func (s *StockService) invalidate(ctx context.Context, productID string) {
	s.cache.InvalidateProduct(ctx, productID)
}
