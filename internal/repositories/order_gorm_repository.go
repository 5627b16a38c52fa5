package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tienda/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMOrderRepository is a GORM implementation of TransactionalOrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// AutoMigrate creates or updates the orders and order_line_items tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Order{}, &models.OrderLineItem{}); err != nil {
		return fmt.Errorf("failed to migrate order tables: %w", err)
	}
	return nil
}

// GetByID retrieves an order and its line items.
func (r *GORMOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order with ID %s: %w", id, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	return &order, nil
}

// Create inserts the order row only.
func (r *GORMOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// CreateLineItems inserts line items for an existing order.
func (r *GORMOrderRepository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&items).Error; err != nil {
		return fmt.Errorf("failed to create order line items: %w", err)
	}
	return nil
}

// CreateWithItems writes the order and its line items in one transaction.
func (r *GORMOrderRepository) CreateWithItems(ctx context.Context, order *models.Order, items []models.OrderLineItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		if err := tx.Create(&items).Error; err != nil {
			return fmt.Errorf("failed to create order line items: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	order.LineItems = items
	return nil
}

// Delete removes an order together with its line items.
func (r *GORMOrderRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderLineItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete line items of order %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Order{}).Error; err != nil {
			return fmt.Errorf("failed to delete order %s: %w", id, err)
		}
		return nil
	})
}

// UpdateStatus changes the status and payment references of an order,
// guarded by the status the caller last observed.
func (r *GORMOrderRepository) UpdateStatus(ctx context.Context, id string, expected models.OrderStatus, update models.StatusUpdate) error {
	values := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now(),
	}
	if update.PreferenceID != "" {
		values["preference_id"] = update.PreferenceID
	}
	if update.PaymentID != "" {
		values["payment_id"] = update.PaymentID
	}
	if update.ProofOfPaymentURL != "" {
		values["proof_of_payment_url"] = update.ProofOfPaymentURL
	}

	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update status of order %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check order %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("order with ID %s not found for status update: %w", id, ErrOrderNotFound)
	}
	return fmt.Errorf("order %s is no longer %s: %w", id, expected, ErrStatusConflict)
}
