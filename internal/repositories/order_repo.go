package repositories

import (
	"context"
	"errors"

	"tienda/internal/models"
)

var (
	// ErrOrderNotFound is returned when no order has the requested ID.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict is returned when an order's status changed between
	// being read and being updated.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// OrderRepository defines the interface for order data access.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	// Delete removes an order and its line items. Deleting a missing order
	// is not an error.
	Delete(ctx context.Context, id string) error
	// UpdateStatus applies update only if the order is still in status
	// expected.
	UpdateStatus(ctx context.Context, id string, expected models.OrderStatus, update models.StatusUpdate) error
}

// TransactionalOrderRepository is an OrderRepository able to write an order
// and its line items in one atomic operation.
type TransactionalOrderRepository interface {
	OrderRepository
	CreateWithItems(ctx context.Context, order *models.Order, items []models.OrderLineItem) error
}
