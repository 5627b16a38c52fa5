package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tienda/internal/models"

	"github.com/google/uuid"
)

// InMemoryOrderRepository is an in-memory implementation of
// TransactionalOrderRepository, used for local runs without a database.
type InMemoryOrderRepository struct {
	orders map[string]models.Order
	items  map[string][]models.OrderLineItem
	mu     sync.RWMutex
}

// NewInMemoryOrderRepository creates a new instance of InMemoryOrderRepository.
func NewInMemoryOrderRepository() *InMemoryOrderRepository {
	return &InMemoryOrderRepository{
		orders: make(map[string]models.Order),
		items:  make(map[string][]models.OrderLineItem),
	}
}

// GetByID returns an order by its ID, including its line items.
func (r *InMemoryOrderRepository) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
	}
	order.LineItems = append([]models.OrderLineItem(nil), r.items[id]...)
	return &order, nil
}

// Create adds a new order without line items.
func (r *InMemoryOrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insertOrder(order)
	return nil
}

// CreateLineItems adds line items to existing orders.
func (r *InMemoryOrderRepository) CreateLineItems(_ context.Context, items []models.OrderLineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwners(items); err != nil {
		return err
	}
	r.insertItems(items)
	return nil
}

// CreateWithItems adds an order and its line items under a single lock.
func (r *InMemoryOrderRepository) CreateWithItems(_ context.Context, order *models.Order, items []models.OrderLineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		if item.OrderID != order.ID {
			return fmt.Errorf("line item %s belongs to order %s, not %s", item.ID, item.OrderID, order.ID)
		}
	}
	r.insertOrder(order)
	r.insertItems(items)
	order.LineItems = items
	return nil
}

// Delete removes an order and its line items.
func (r *InMemoryOrderRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.orders, id)
	delete(r.items, id)
	return nil
}

// UpdateStatus updates the status of an order if it is still in status expected.
func (r *InMemoryOrderRepository) UpdateStatus(_ context.Context, id string, expected models.OrderStatus, update models.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order with ID %s not found for status update: %w", id, ErrOrderNotFound)
	}
	if order.Status != expected {
		return fmt.Errorf("order %s is no longer %s: %w", id, expected, ErrStatusConflict)
	}
	order.Status = update.Status
	if update.PreferenceID != "" {
		order.PreferenceID = update.PreferenceID
	}
	if update.PaymentID != "" {
		order.PaymentID = update.PaymentID
	}
	if update.ProofOfPaymentURL != "" {
		order.ProofOfPaymentURL = update.ProofOfPaymentURL
	}
	order.UpdatedAt = time.Now()
	r.orders[id] = order
	return nil
}

func (r *InMemoryOrderRepository) insertOrder(order *models.Order) {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := *order
	stored.LineItems = nil
	r.orders[order.ID] = stored
}

func (r *InMemoryOrderRepository) checkOwners(items []models.OrderLineItem) error {
	for _, item := range items {
		if _, ok := r.orders[item.OrderID]; !ok {
			return fmt.Errorf("line item %s references unknown order %s", item.ID, item.OrderID)
		}
	}
	return nil
}

func (r *InMemoryOrderRepository) insertItems(items []models.OrderLineItem) {
	now := time.Now()
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.CreatedAt = now
		r.items[item.OrderID] = append(r.items[item.OrderID], item)
	}
}
