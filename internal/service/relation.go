package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
)

// RelationService tracks the buyer-merchant relationship that conversations
// and orders hang off of.
type RelationService struct {
	store store.Store
	log   *logger.Logger
}

func NewRelationService(st store.Store, log *logger.Logger) *RelationService {
	return &RelationService{store: st, log: log}
}

// cleanBuyerRef normalizes a channel identifier (phone number or handle) so
// the same buyer always resolves to the same relation.
func cleanBuyerRef(ref string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(ref) {
		switch r {
		case ' ', '-', '(', ')', '+':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Ensure resolves the relation for a buyer reference, creating it on first
// contact. Safe under concurrent first contact: the loser of the create race
// re-reads the winner's row.
func (s *RelationService) Ensure(ctx context.Context, merchantID, buyerRef, buyerName string) (*model.ClientRelation, error) {
	ref := cleanBuyerRef(buyerRef)
	if ref == "" {
		return nil, validationf("buyer reference is required")
	}

	rel, err := s.store.Relations().FindByBuyer(ctx, merchantID, ref)
	if err == nil {
		if buyerName != "" && buyerName != rel.BuyerName {
			rel.BuyerName = buyerName
			if err := s.store.Relations().Update(ctx, rel); err != nil {
				return nil, err
			}
		}
		return rel, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := timeNow()
	rel = &model.ClientRelation{
		ID:         newID(),
		MerchantID: merchantID,
		BuyerRef:   ref,
		BuyerName:  buyerName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.store.Relations().Create(ctx, rel)
	if errors.Is(err, store.ErrDuplicate) {
		return s.store.Relations().FindByBuyer(ctx, merchantID, ref)
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("relation created",
		zap.String("relation_id", rel.ID),
		zap.String("merchant_id", merchantID))
	return rel, nil
}

func (s *RelationService) Get(ctx context.Context, merchantID, relationID string) (*model.ClientRelation, error) {
	rel, err := s.store.Relations().Get(ctx, relationID)
	if err != nil {
		return nil, err
	}
	if rel.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	return rel, nil
}

func (s *RelationService) List(ctx context.Context, merchantID string) ([]model.ClientRelation, error) {
	return s.store.Relations().List(ctx, merchantID)
}

// recordPurchase credits a confirmed sale to the relation. Runs inside the
// payment confirmation transaction so counters never drift from order state.
func (s *RelationService) recordPurchase(ctx context.Context, tx store.Store, relationID string, amount int64) error {
	rel, err := tx.Relations().Get(ctx, relationID)
	if err != nil {
		return err
	}
	now := timeNow()
	rel.PurchaseCount++
	rel.TotalSpent += amount
	rel.LastPurchaseAt = &now
	rel.UpdatedAt = now
	return tx.Relations().Update(ctx, rel)
}
