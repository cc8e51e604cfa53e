package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Camus10737/warket/internal/model"
)

func TestClassifyNoEscalation(t *testing.T) {
	for _, text := range []string{
		"hello",
		"do you have the blue one in stock?",
		"merci beaucoup",
	} {
		c := classify(text)
		assert.False(t, c.Escalate, "text %q should not escalate", text)
	}
}

func TestClassifyDefect(t *testing.T) {
	c := classify("my shoes arrived broken, I want a refund")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonProductDefect, c.Reason)
}

func TestClassifyDefectOutranksDiscount(t *testing.T) {
	// mentions both a discount and a refund; the complaint wins
	c := classify("I asked for a discount but the item is broken, refund me")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonProductDefect, c.Reason)
}

func TestClassifyDiscount(t *testing.T) {
	c := classify("can you make it cheaper? any discount?")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonDiscount, c.Reason)
}

func TestClassifyDiscountFrench(t *testing.T) {
	c := classify("c'est trop cher, une remise possible?")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonDiscount, c.Reason)
}

func TestClassifyDelivery(t *testing.T) {
	c := classify("when will my order arrive")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonDelivery, c.Reason)
}

func TestClassifyComplexityByLength(t *testing.T) {
	c := classify(strings.Repeat("a", 201))
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonComplexity, c.Reason)
}

func TestClassifyComplexityByQuestions(t *testing.T) {
	assert.False(t, classify("ok? ok? ").Escalate)
	c := classify("one? two? three?")
	assert.True(t, c.Escalate)
	assert.Equal(t, model.ReasonComplexity, c.Reason)
}
