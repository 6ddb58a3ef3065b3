package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyerlens/backend/internal/domain"
)

func openTestRepo(t *testing.T) *CartRepository {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "cart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCartRepository_Entries(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	added := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	lait := domain.CartEntry{
		ID:      "a",
		Record:  domain.PriceRecord{Item: "Lait", Brand: "Natrel", Quantity: domain.Float64(2), Unit: "l", UnitPrice: domain.Float64(4.99), StoreName: "IGA"},
		AddedAt: added,
	}
	pain := domain.CartEntry{ID: "b", Record: domain.PriceRecord{Item: "Pain"}, AddedAt: added.Add(time.Minute)}

	require.NoError(t, repo.Add(ctx, lait))
	require.NoError(t, repo.Add(ctx, pain))
	assert.Error(t, repo.Add(ctx, lait), "duplicate id")

	entries, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, 4.99, entries[0].Record.Price())
	assert.True(t, added.Equal(entries[0].AddedAt))
	assert.Nil(t, entries[1].Record.UnitPrice)

	require.NoError(t, repo.Remove(ctx, "a"))
	assert.ErrorIs(t, repo.Remove(ctx, "a"), domain.ErrCartItemNotFound)

	require.NoError(t, repo.Clear(ctx))
	entries, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCartRepository_Budget(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, ok, err := repo.Budget(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SetBudget(ctx, decimal.RequireFromString("80.50")))
	require.NoError(t, repo.SetBudget(ctx, decimal.RequireFromString("120.25")))

	budget, ok, err := repo.Budget(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "120.25", budget.StringFixed(2))
}
