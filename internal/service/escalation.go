package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Camus10737/warket/internal/events"
	"github.com/Camus10737/warket/internal/model"
	"github.com/Camus10737/warket/internal/store"
	"github.com/Camus10737/warket/pkg/logger"
	"github.com/Camus10737/warket/pkg/metrics"
)

// EscalationService routes inbound buyer messages between the automated
// agent and the human operator, and manages the conversation lifecycle.
type EscalationService struct {
	store     store.Store
	relations *RelationService
	events    events.Publisher
	responder Responder
	log       *logger.Logger
}

func NewEscalationService(st store.Store, relations *RelationService, pub events.Publisher, responder Responder, log *logger.Logger) *EscalationService {
	return &EscalationService{store: st, relations: relations, events: pub, responder: responder, log: log}
}

// escalateConversation hands a conversation to the operator inside an
// existing transaction. Idempotent: an already escalated conversation keeps
// its original reason and timestamp, extra notes are appended. Returns
// whether the escalation is new.
func escalateConversation(ctx context.Context, tx store.Store, conversationID string, reason model.EscalationReason, note string) (bool, error) {
	conv, err := tx.Conversations().Get(ctx, conversationID)
	if err != nil {
		return false, err
	}
	switch conv.Status {
	case model.ConversationResolved, model.ConversationClosed:
		return false, &TerminalStateError{Entity: "conversation", ID: conv.ID, Status: string(conv.Status)}
	case model.ConversationEscalated:
		if note != "" {
			if conv.EscalationNote != "" {
				conv.EscalationNote += "\n"
			}
			conv.EscalationNote += note
			if err := tx.Conversations().Update(ctx, conv); err != nil {
				return false, mapStoreErr("conversation", conv.ID, err)
			}
		}
		return false, nil
	}

	now := timeNow()
	conv.Status = model.ConversationEscalated
	conv.EscalationReason = reason
	conv.EscalationNote = note
	conv.EscalatedAt = &now
	if err := tx.Conversations().Update(ctx, conv); err != nil {
		return false, mapStoreErr("conversation", conv.ID, err)
	}
	return true, nil
}

// escalateIfOpen escalates unless the conversation was already resolved or
// closed. Order workflow steps use this: a settled conversation must not
// block the claim or problem transition that triggered the handoff.
func escalateIfOpen(ctx context.Context, tx store.Store, conversationID string, reason model.EscalationReason, note string) (bool, error) {
	newly, err := escalateConversation(ctx, tx, conversationID, reason, note)
	if err != nil {
		var terminal *TerminalStateError
		if errors.As(err, &terminal) {
			return false, nil
		}
		return false, err
	}
	return newly, nil
}

// Ingest processes one inbound buyer message: resolves the relation, finds
// or creates the active conversation, records the message, classifies it
// and either escalates or lets the automated agent answer.
func (s *EscalationService) Ingest(ctx context.Context, merchantID string, req *model.IngestRequest) (*model.IngestResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, validationf("message text is required")
	}

	rel, err := s.relations.Ensure(ctx, merchantID, req.BuyerRef, req.BuyerName)
	if err != nil {
		return nil, err
	}

	decision := classify(text)
	result := &model.IngestResult{}
	var newlyEscalated bool
	err = s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		conv, err := tx.Conversations().FindActive(ctx, rel.ID)
		if errors.Is(err, store.ErrNotFound) {
			now := timeNow()
			conv = &model.Conversation{
				ID:           newID(),
				MerchantID:   merchantID,
				RelationID:   rel.ID,
				Status:       model.ConversationAutomated,
				LastActivity: now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Conversations().Create(ctx, conv); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		now := timeNow()
		msg := &model.Message{
			ID:             newID(),
			ConversationID: conv.ID,
			MerchantID:     merchantID,
			Sender:         model.SenderBuyer,
			Kind:           model.MessageText,
			Content:        text,
			CreatedAt:      now,
		}
		if err := tx.Messages().Append(ctx, msg); err != nil {
			return err
		}
		conv.MessageCount++
		conv.LastActivity = now

		if decision.Escalate && conv.Status == model.ConversationAutomated {
			conv.Status = model.ConversationEscalated
			conv.EscalationReason = decision.Reason
			conv.EscalatedAt = &now
			newlyEscalated = true
		}
		if err := tx.Conversations().Update(ctx, conv); err != nil {
			return mapStoreErr("conversation", conv.ID, err)
		}

		result.Conversation = conv
		result.Message = msg
		result.Escalated = conv.Status == model.ConversationEscalated
		result.Reason = conv.EscalationReason
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.MessagesTotal.WithLabelValues(merchantID, string(model.SenderBuyer)).Inc()
	if newlyEscalated {
		metrics.EscalationsTotal.WithLabelValues(string(result.Reason)).Inc()
		s.log.Info("conversation escalated",
			zap.String("conversation_id", result.Conversation.ID),
			zap.String("merchant_id", merchantID),
			zap.String("reason", string(result.Reason)))
		publish(ctx, s.events, s.log, &model.Event{
			MerchantID:     merchantID,
			Type:           model.EventConversationEscalated,
			ConversationID: result.Conversation.ID,
			RelationID:     rel.ID,
			Reason:         string(result.Reason),
		})
	}

	if result.Conversation.Status == model.ConversationAutomated && s.responder != nil {
		if reply := s.reply(ctx, result.Conversation, text); reply != nil {
			result.Reply = reply
		}
	}
	return result, nil
}

// reply generates and records the agent answer. The LLM call runs outside
// any store transaction; a failure drops the reply but never the inbound
// message.
func (s *EscalationService) reply(ctx context.Context, conv *model.Conversation, inbound string) *model.Message {
	history, err := s.store.Messages().ListByConversation(ctx, conv.ID, 20)
	if err != nil {
		s.log.Warn("failed to load history for reply", zap.Error(err))
		history = nil
	}
	content, err := s.responder.Reply(ctx, conv, history, inbound)
	if err != nil {
		s.log.Warn("agent reply failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err))
		return nil
	}

	var out *model.Message
	err = s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		cur, err := tx.Conversations().Get(ctx, conv.ID)
		if err != nil {
			return err
		}
		// an operator may have escalated while the LLM was thinking
		if cur.Status != model.ConversationAutomated {
			return nil
		}
		now := timeNow()
		msg := &model.Message{
			ID:             newID(),
			ConversationID: conv.ID,
			MerchantID:     conv.MerchantID,
			Sender:         model.SenderAgent,
			Kind:           model.MessageText,
			Content:        content,
			CreatedAt:      now,
		}
		if err := tx.Messages().Append(ctx, msg); err != nil {
			return err
		}
		cur.MessageCount++
		cur.LastActivity = now
		if err := tx.Conversations().Update(ctx, cur); err != nil {
			return mapStoreErr("conversation", cur.ID, err)
		}
		out = msg
		return nil
	})
	if err != nil {
		s.log.Warn("failed to record agent reply", zap.Error(err))
		return nil
	}
	if out != nil {
		metrics.MessagesTotal.WithLabelValues(conv.MerchantID, string(model.SenderAgent)).Inc()
	}
	return out
}

// Escalate is the manual handoff endpoint for operators and the order
// workflow.
func (s *EscalationService) Escalate(ctx context.Context, merchantID, conversationID string, reason model.EscalationReason, note string) (*model.Conversation, error) {
	if reason == "" {
		reason = model.ReasonOther
	}
	var out *model.Conversation
	var newly bool
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		conv, err := tx.Conversations().Get(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.MerchantID != merchantID {
			return store.ErrNotFound
		}
		newly, err = escalateConversation(ctx, tx, conversationID, reason, note)
		if err != nil {
			return err
		}
		out, err = tx.Conversations().Get(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if newly {
		metrics.EscalationsTotal.WithLabelValues(string(out.EscalationReason)).Inc()
		publish(ctx, s.events, s.log, &model.Event{
			MerchantID:     merchantID,
			Type:           model.EventConversationEscalated,
			ConversationID: out.ID,
			RelationID:     out.RelationID,
			Reason:         string(out.EscalationReason),
		})
	}
	return out, nil
}

// Resolve hands an escalated conversation back as settled.
func (s *EscalationService) Resolve(ctx context.Context, merchantID, conversationID, note string) (*model.Conversation, error) {
	var out *model.Conversation
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		conv, err := tx.Conversations().Get(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if conv.Status == model.ConversationResolved || conv.Status == model.ConversationClosed {
			return &TerminalStateError{Entity: "conversation", ID: conv.ID, Status: string(conv.Status)}
		}
		now := timeNow()
		conv.Status = model.ConversationResolved
		conv.ResolutionNote = note
		conv.ResolvedAt = &now
		if err := tx.Conversations().Update(ctx, conv); err != nil {
			return mapStoreErr("conversation", conv.ID, err)
		}
		out = conv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("conversation resolved",
		zap.String("conversation_id", out.ID),
		zap.String("merchant_id", merchantID))
	publish(ctx, s.events, s.log, &model.Event{
		MerchantID:     merchantID,
		Type:           model.EventConversationResolved,
		ConversationID: out.ID,
		RelationID:     out.RelationID,
	})
	return out, nil
}

// Close archives a conversation. An escalated conversation must be resolved
// first so nothing pending disappears from the operator's queue.
func (s *EscalationService) Close(ctx context.Context, merchantID, conversationID string) (*model.Conversation, error) {
	var out *model.Conversation
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		conv, err := tx.Conversations().Get(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.MerchantID != merchantID {
			return store.ErrNotFound
		}
		switch conv.Status {
		case model.ConversationClosed:
			return &TerminalStateError{Entity: "conversation", ID: conv.ID, Status: string(conv.Status)}
		case model.ConversationEscalated:
			return &InvalidTransitionError{Entity: "conversation", From: string(conv.Status), To: string(model.ConversationClosed)}
		}
		now := timeNow()
		conv.Status = model.ConversationClosed
		conv.ClosedAt = &now
		if err := tx.Conversations().Update(ctx, conv); err != nil {
			return mapStoreErr("conversation", conv.ID, err)
		}
		out = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EscalationService) Get(ctx context.Context, merchantID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.Conversations().Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.MerchantID != merchantID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (s *EscalationService) List(ctx context.Context, merchantID string, status model.ConversationStatus) ([]model.Conversation, error) {
	return s.store.Conversations().List(ctx, merchantID, status)
}

// Messages lists the most recent messages of a conversation in
// chronological order.
func (s *EscalationService) Messages(ctx context.Context, merchantID, conversationID string, limit int) ([]model.Message, error) {
	if _, err := s.Get(ctx, merchantID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Messages().ListByConversation(ctx, conversationID, limit)
}

// Record appends an operator message to an escalated conversation.
func (s *EscalationService) Record(ctx context.Context, merchantID, conversationID, operatorID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationf("message content is required")
	}

	var out *model.Message
	err := s.store.Atomically(ctx, func(ctx context.Context, tx store.Store) error {
		conv, err := tx.Conversations().Get(ctx, conversationID)
		if err != nil {
			return err
		}
		if conv.MerchantID != merchantID {
			return store.ErrNotFound
		}
		if conv.Status == model.ConversationClosed {
			return &TerminalStateError{Entity: "conversation", ID: conv.ID, Status: string(conv.Status)}
		}
		now := timeNow()
		msg := &model.Message{
			ID:             newID(),
			ConversationID: conv.ID,
			MerchantID:     merchantID,
			Sender:         model.SenderOperator,
			Kind:           model.MessageText,
			Content:        content,
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
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(merchantID, string(model.SenderOperator)).Inc()
	return out, nil
}
