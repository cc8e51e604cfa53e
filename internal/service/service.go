package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/events"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
	"github.com/Camus10737/warket/pkg/metrics"
)

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// timeNow is a hook for tests that assert on timestamps.
var timeNow = time.Now

// publish emits a workflow event after the owning transaction committed.
// Failures are logged and swallowed: the state change already happened.
func publish(ctx context.Context, pub events.Publisher, log *logger.Logger, e *model.Event) {
	if pub == nil {
		return
	}
	e.ID = newID()
	e.OccurredAt = timeNow()
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn("event publish failed",
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()
}

// linesInLockOrder returns the order lines sorted by product id. Product
// rows are always locked in this order so two orders sharing products
// cannot deadlock each other.
func linesInLockOrder(lines []model.OrderLine) []model.OrderLine {
	sorted := make([]model.OrderLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

// appendSystemMessage records a workflow event in the conversation timeline
// and bumps its activity counters. Must run inside a store transaction.
func appendSystemMessage(ctx context.Context, tx store.Store, conversationID, merchantID, content, orderID string) error {
	conv, err := tx.Conversations().Get(ctx, conversationID)
	if err != nil {
		return err
	}
	now := timeNow()
	msg := &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		MerchantID:     merchantID,
		Sender:         model.SenderSystem,
		Kind:           model.MessageSystem,
		Content:        content,
		OrderID:        orderID,
		CreatedAt:      now,
	}
	if err := tx.Messages().Append(ctx, msg); err != nil {
		return err
	}
	conv.MessageCount++
	conv.LastActivity = now
	if err := tx.Conversations().Update(ctx, conv); err != nil {
		return mapStoreErr("conversation", conv.ID, err)
	}
	return nil
}
