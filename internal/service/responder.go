package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Camus10737/warket/internal/llm"
	"github.com/Camus10737/warket/internal/model"
)

// Responder produces the automated agent reply for a non-escalated inbound
// message.
type Responder interface {
	Reply(ctx context.Context, conv *model.Conversation, history []model.Message, inbound string) (string, error)
}

const assistantSystemPrompt = `You are the automated assistant of a small online shop.
Answer the buyer briefly and politely, in the language they write in.
You can describe products and explain how ordering and payment work.
You cannot grant discounts, confirm payments or resolve complaints; those
are handled by the shop owner. Never promise anything on their behalf.`

// llmResponder drives an LLM with the recent conversation history.
type llmResponder struct {
	client    llm.Client
	model     string
	maxTokens int
}

// NewLLMResponder wraps an LLM client as a Responder. model may be empty to
// use the provider default.
func NewLLMResponder(client llm.Client, model string) Responder {
	return &llmResponder{client: client, model: model, maxTokens: 512}
}

func (r *llmResponder) Reply(ctx context.Context, conv *model.Conversation, history []model.Message, inbound string) (string, error) {
	messages := make([]llm.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Sender == model.SenderAgent {
			role = "assistant"
		}
		if m.Sender == model.SenderSystem || m.Sender == model.SenderOperator {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: m.Content})
	}
	if len(messages) == 0 || messages[len(messages)-1].Content != inbound {
		messages = append(messages, llm.ChatMessage{Role: "user", Content: inbound})
	}

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Model:     r.model,
		System:    assistantSystemPrompt,
		Messages:  messages,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", fmt.Errorf("llm returned empty reply")
	}
	return reply, nil
}

// templateResponder is the fallback when no LLM is configured or the call
// fails. A canned acknowledgement is better than silence on a chat channel.
type templateResponder struct{}

// NewTemplateResponder returns the canned-reply Responder.
func NewTemplateResponder() Responder {
	return templateResponder{}
}

func (templateResponder) Reply(ctx context.Context, conv *model.Conversation, history []model.Message, inbound string) (string, error) {
	if conv.MessageCount <= 1 {
		return "Hello! Thanks for reaching out. How can we help you today?", nil
	}
	return "Thanks for your message! We will get back to you shortly.", nil
}

// fallbackResponder tries the primary and falls back to the secondary.
type fallbackResponder struct {
	primary  Responder
	fallback Responder
}

// NewFallbackResponder chains two responders.
func NewFallbackResponder(primary, fallback Responder) Responder {
	return &fallbackResponder{primary: primary, fallback: fallback}
}

func (r *fallbackResponder) Reply(ctx context.Context, conv *model.Conversation, history []model.Message, inbound string) (string, error) {
	reply, err := r.primary.Reply(ctx, conv, history, inbound)
	if err == nil {
		return reply, nil
	}
	return r.fallback.Reply(ctx, conv, history, inbound)
}
