package repositories_test

import (
	"context"
	"fmt"
	"testing"

	"tienda/internal/models"
	"tienda/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGORMRepo(t *testing.T) *repositories.GORMOrderRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, repositories.AutoMigrate(db))
	return repositories.NewGORMOrderRepository(db)
}

func newOrder(id string) *models.Order {
	return &models.Order{
		ID:             id,
		CustomerName:   "Ana Pérez",
		CustomerEmail:  "ana@example.com",
		CustomerPhone:  "1155550000",
		DeliveryMethod: models.DeliveryPickup,
		PaymentMethod:  models.PaymentCash,
		Subtotal:       decimal.RequireFromString("57.50"),
		Total:          decimal.RequireFromString("57.50"),
		ExchangeRate:   decimal.NewFromInt(1500),
		TotalLocal:     decimal.NewFromInt(86250),
		Status:         models.StatusPending,
	}
}

func newItems(orderID string, ids ...string) []models.OrderLineItem {
	items := make([]models.OrderLineItem, len(ids))
	for i, id := range ids {
		items[i] = models.OrderLineItem{
			ID:          id,
			OrderID:     orderID,
			Position:    i,
			ProductName: "Item " + id,
			Quantity:    i + 1,
			UnitPrice:   decimal.RequireFromString("10.00"),
			Subtotal:    decimal.NewFromInt(int64(10 * (i + 1))),
		}
	}
	return items
}

func TestGORMOrderRepository_CreateWithItems(t *testing.T) {
	repo := newGORMRepo(t)
	ctx := context.Background()

	order := newOrder("order-1")
	require.NoError(t, repo.CreateWithItems(ctx, order, newItems("order-1", "b", "a", "c")))

	stored, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("57.50")), stored.Total.String())
	assert.True(t, stored.TotalLocal.Equal(decimal.NewFromInt(86250)))
	require.Len(t, stored.LineItems, 3)
	for i, item := range stored.LineItems {
		assert.Equal(t, i, item.Position)
	}
	assert.Equal(t, "b", stored.LineItems[0].ID)
}

func TestGORMOrderRepository_CreateWithItemsRollsBack(t *testing.T) {
	repo := newGORMRepo(t)
	ctx := context.Background()

	err := repo.CreateWithItems(ctx, newOrder("order-1"), newItems("order-1", "dup", "dup"))
	require.Error(t, err)

	_, err = repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}

func TestGORMOrderRepository_CreateThenLineItems(t *testing.T) {
	repo := newGORMRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newOrder("order-1")))
	require.NoError(t, repo.CreateLineItems(ctx, nil))
	require.NoError(t, repo.CreateLineItems(ctx, newItems("order-1", "a", "b")))

	stored, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 2)
}

func TestGORMOrderRepository_Delete(t *testing.T) {
	repo := newGORMRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateWithItems(ctx, newOrder("order-1"), newItems("order-1", "a")))
	require.NoError(t, repo.Delete(ctx, "order-1"))
	_, err := repo.GetByID(ctx, "order-1")
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)

	// Deleting again is not an error
	assert.NoError(t, repo.Delete(ctx, "order-1"))
}

func TestGORMOrderRepository_UpdateStatus(t *testing.T) {
	repo := newGORMRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newOrder("order-1")))

	err := repo.UpdateStatus(ctx, "order-1", models.StatusPending, models.StatusUpdate{
		Status:       models.StatusPending,
		PreferenceID: "pref-1",
	})
	require.NoError(t, err)

	err = repo.UpdateStatus(ctx, "order-1", models.StatusPending, models.StatusUpdate{
		Status:    models.StatusPaidElectronic,
		PaymentID: "pay-1",
	})
	require.NoError(t, err)

	stored, err := repo.GetByID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaidElectronic, stored.Status)
	assert.Equal(t, "pref-1", stored.PreferenceID)
	assert.Equal(t, "pay-1", stored.PaymentID)

	err = repo.UpdateStatus(ctx, "order-1", models.StatusPending, models.StatusUpdate{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, repositories.ErrStatusConflict)

	err = repo.UpdateStatus(ctx, "missing", models.StatusPending, models.StatusUpdate{Status: models.StatusCancelled})
	assert.ErrorIs(t, err, repositories.ErrOrderNotFound)
}
