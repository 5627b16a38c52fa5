package repositories_test

import (
	"context"
	"testing"

	"tienda/internal/models"
	"tienda/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryOrderRepository(t *testing.T) {
	repo := repositories.NewInMemoryOrderRepository()
	ctx := context.Background()

	order := newOrder("")
	require.NoError(t, repo.Create(ctx, order))
	assert.NotEmpty(t, order.ID)

	err := repo.CreateLineItems(ctx, newItems("unknown", "a"))
	assert.Error(t, err)
	require.NoError(t, repo.CreateLineItems(ctx, newItems(order.ID, "a", "b")))

	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 2)

	// Returned orders are copies
	stored.Status = models.StatusCancelled
	again, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, models.StatusPending, models.StatusUpdate{Status: models.StatusPaidCash}))
	err = repo.UpdateStatus(ctx, order.ID, models.StatusPending, models.StatusUpdate{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, repositories.ErrStatusConflict)

	require.NoError(t, repo.Delete(ctx, order.ID))
	require.NoError(t, repo.Delete(ctx, order.ID))
	_, err = repo.GetByID(ctx, order.ID)
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
	err = repo.UpdateStatus(ctx, order.ID, models.StatusPending, models.StatusUpdate{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestInMemoryOrderRepository_CreateWithItemsChecksOwner(t *testing.T) {
	repo := repositories.NewInMemoryOrderRepository()
	ctx := context.Background()

	err := repo.CreateWithItems(ctx, newOrder("order-1"), newItems("order-2", "a"))
	require.Error(t, err)
	_, err = repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)

	require.NoError(t, repo.CreateWithItems(ctx, newOrder("order-1"), newItems("order-1", "a")))
	stored, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 1)
}
