package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Camus10737/warket/internal/model"
)

func ingest(t *testing.T, f *fixture, text string) *model.IngestResult {
	t.Helper()
	res, err := f.escalations.Ingest(context.Background(), testMerchant, &model.IngestRequest{
		BuyerRef:  "622001122",
		BuyerName: "Aissatou",
		Text:      text,
	})
	require.NoError(t, err)
	return res
}

func TestIngestCreatesConversationAndReplies(t *testing.T) {
	f := newFixture(t)
	res := ingest(t, f, "good evening")

	require.NotNil(t, res.Conversation)
	assert.Equal(t, model.ConversationAutomated, res.Conversation.Status)
	assert.False(t, res.Escalated)
	require.NotNil(t, res.Reply)
	assert.Equal(t, model.SenderAgent, res.Reply.Sender)

	// buyer message plus agent reply
	msgs, err := f.escalations.Messages(context.Background(), testMerchant, res.Conversation.ID, 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestIngestReusesActiveConversation(t *testing.T) {
	f := newFixture(t)
	first := ingest(t, f, "good evening")
	second := ingest(t, f, "are you there")

	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
}

func TestIngestEscalatesOnKeywords(t *testing.T) {
	f := newFixture(t)
	res := ingest(t, f, "this bag is damaged, I want my money back")

	assert.True(t, res.Escalated)
	assert.Equal(t, model.ReasonProductDefect, res.Reason)
	assert.Equal(t, model.ConversationEscalated, res.Conversation.Status)
	assert.Nil(t, res.Reply, "no automated reply once escalated")
	assert.Contains(t, f.pub.types(), model.EventConversationEscalated)
}

func TestIngestEscalatedConversationStaysWithOperator(t *testing.T) {
	f := newFixture(t)
	first := ingest(t, f, "any discount for two?")
	require.True(t, first.Escalated)
	require.Equal(t, model.ReasonDiscount, first.Reason)

	// a later defect message does not rewrite the original reason
	second := ingest(t, f, "also one arrived broken")
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.True(t, second.Escalated)
	assert.Equal(t, model.ReasonDiscount, second.Conversation.EscalationReason)
	assert.Nil(t, second.Reply)
}

func TestManualEscalateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := ingest(t, f, "hi")

	conv, err := f.escalations.Escalate(ctx, testMerchant, res.Conversation.ID, model.ReasonOther, "buyer is a VIP")
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, conv.Status)
	firstEscalatedAt := conv.EscalatedAt

	conv, err = f.escalations.Escalate(ctx, testMerchant, res.Conversation.ID, model.ReasonDiscount, "second note")
	require.NoError(t, err)
	assert.Equal(t, model.ReasonOther, conv.EscalationReason)
	assert.Equal(t, firstEscalatedAt, conv.EscalatedAt)
	assert.Contains(t, conv.EscalationNote, "buyer is a VIP")
	assert.Contains(t, conv.EscalationNote, "second note")
}

func TestResolveEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := ingest(t, f, "too expensive, lower the price")
	require.True(t, res.Escalated)

	conv, err := f.escalations.Resolve(ctx, testMerchant, res.Conversation.ID, "agreed on 10% off")
	require.NoError(t, err)
	assert.Equal(t, model.ConversationResolved, conv.Status)
	assert.Equal(t, "agreed on 10% off", conv.ResolutionNote)
	assert.Contains(t, f.pub.types(), model.EventConversationResolved)

	_, err = f.escalations.Resolve(ctx, testMerchant, res.Conversation.ID, "again")
	var terminal *TerminalStateError
	assert.ErrorAs(t, err, &terminal)
}

func TestResolvedConversationIsNoLongerActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := ingest(t, f, "remise possible?")
	require.True(t, res.Escalated)

	_, err := f.escalations.Resolve(ctx, testMerchant, res.Conversation.ID, "done")
	require.NoError(t, err)

	// next inbound message starts a fresh conversation
	next := ingest(t, f, "hello again")
	assert.NotEqual(t, res.Conversation.ID, next.Conversation.ID)
	assert.Equal(t, model.ConversationAutomated, next.Conversation.Status)
}

func TestCloseRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// an automated conversation closes directly
	quiet := ingest(t, f, "ok")
	conv, err := f.escalations.Close(ctx, testMerchant, quiet.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationClosed, conv.Status)

	// an escalated one must be resolved first
	hot := ingest(t, f, "where is my order? it should arrive today")
	require.True(t, hot.Escalated)
	_, err = f.escalations.Close(ctx, testMerchant, hot.Conversation.ID)
	var transition *InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = f.escalations.Resolve(ctx, testMerchant, hot.Conversation.ID, "delivered")
	require.NoError(t, err)
	conv, err = f.escalations.Close(ctx, testMerchant, hot.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationClosed, conv.Status)
}

func TestOperatorRecordMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := ingest(t, f, "is the red one available? how much? can you deliver?")
	require.True(t, res.Escalated)

	msg, err := f.escalations.Record(ctx, testMerchant, res.Conversation.ID, "op-1", "Yes, it is available for 150000 GNF.")
	require.NoError(t, err)
	assert.Equal(t, model.SenderOperator, msg.Sender)

	conv, err := f.escalations.Get(ctx, testMerchant, res.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.MessageCount)
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.escalations.Ingest(ctx, testMerchant, &model.IngestRequest{BuyerRef: "622001122", Text: "  "})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = f.escalations.Ingest(ctx, testMerchant, &model.IngestRequest{BuyerRef: "", Text: "hi"})
	assert.ErrorAs(t, err, &validation)
}
