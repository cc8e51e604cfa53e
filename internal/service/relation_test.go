package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanBuyerRef(t *testing.T) {
	cases := map[string]string{
		"+224 622 00 11 22": "224622001122",
		"224-622-001122":    "224622001122",
		"  WhatsApp:User  ": "whatsapp:user",
	}
	for in, want := range cases {
		assert.Equal(t, want, cleanBuyerRef(in))
	}
}

func TestEnsureRelationDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.relations.Ensure(ctx, testMerchant, "+224 622 00 11 22", "Aissatou")
	require.NoError(t, err)

	// different formatting, same buyer
	second, err := f.relations.Ensure(ctx, testMerchant, "224622001122", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Aissatou", second.BuyerName)
}

func TestEnsureRelationPerMerchant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.relations.Ensure(ctx, "merchant-a", "622001122", "")
	require.NoError(t, err)
	b, err := f.relations.Ensure(ctx, "merchant-b", "622001122", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestEnsureRelationUpdatesName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.relations.Ensure(ctx, testMerchant, "622001122", "")
	require.NoError(t, err)

	got, err := f.relations.Ensure(ctx, testMerchant, "622001122", "Aissatou")
	require.NoError(t, err)
	assert.Equal(t, "Aissatou", got.BuyerName)
}

func TestEnsureRelationConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rel, err := f.relations.Ensure(ctx, testMerchant, "622001122", "")
			if err == nil {
				ids[i] = rel.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.Equal(t, ids[0], id)
	}

	relations, err := f.relations.List(ctx, testMerchant)
	require.NoError(t, err)
	assert.Len(t, relations, 1)
}

func TestEnsureRelationEmptyRef(t *testing.T) {
	f := newFixture(t)
	_, err := f.relations.Ensure(context.Background(), testMerchant, "  + -", "")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}
