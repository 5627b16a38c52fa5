package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tienda/internal/models"
	"tienda/internal/repositories"
	"tienda/internal/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Routing keys of the order events.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// EventPublisher sends order events to interested consumers.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// OrderEvent is the payload of every order event.
type OrderEvent struct {
	OrderID        string               `json:"order_id"`
	Status         models.OrderStatus   `json:"status"`
	PreviousStatus models.OrderStatus   `json:"previous_status,omitempty"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	Total          decimal.Decimal      `json:"total"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// SubmitOrderItem is one cart entry of an order submission.
type SubmitOrderItem struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// SubmitOrderInput is everything needed to place an order.
type SubmitOrderInput struct {
	CustomerName  string `json:"customer_name" validate:"required"`
	CustomerDNI   string `json:"customer_dni"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"required"`

	DeliveryMethod models.DeliveryMethod `json:"delivery_method" validate:"required,oneof=pickup carrier"`
	PaymentMethod  models.PaymentMethod  `json:"payment_method" validate:"required,oneof=cash electronic"`

	Street       string `json:"street"`
	Number       string `json:"number"`
	Floor        string `json:"floor"`
	Locality     string `json:"locality"`
	Province     string `json:"province"`
	PostalCode   string `json:"postal_code"`
	Instructions string `json:"instructions"`
	PickupDate   string `json:"pickup_date"`
	PickupTime   string `json:"pickup_time"`
	Notes        string `json:"notes"`

	Items []SubmitOrderItem `json:"items" validate:"required,min=1,dive"`

	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	// Total is optional. When present it must match the computed total.
	Total *decimal.Decimal `json:"total,omitempty"`
	// ExchangeRate is optional. When absent the current rate is used.
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
}

// StatusUpdateInput is a request to move an order to another status.
type StatusUpdateInput struct {
	Status            string `json:"status"`
	ProofOfPaymentURL string `json:"proof_of_payment_url,omitempty"`
	PreferenceID      string `json:"preference_id,omitempty"`
	PaymentID         string `json:"payment_id,omitempty"`
}

// CompensationPolicy bounds the retries of the compensating delete run when
// line items cannot be written after their order.
type CompensationPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultCompensationPolicy retries three times starting at 100ms.
var DefaultCompensationPolicy = CompensationPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// OrderService handles order submission and status reconciliation. It is
// the only component allowed to change an order after creation.
type OrderService struct {
	orderRepo    repositories.OrderRepository
	rates        RateProvider
	publisher    EventPublisher
	logger       *zap.Logger
	validate     *validator.Validate
	compensation CompensationPolicy
}

// NewOrderService creates a new OrderService. rates and publisher may be nil.
func NewOrderService(orderRepo repositories.OrderRepository, rates RateProvider, publisher EventPublisher, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo:    orderRepo,
		rates:        rates,
		publisher:    publisher,
		logger:       logger,
		validate:     validation.New(),
		compensation: DefaultCompensationPolicy,
	}
}

// SetCompensationPolicy overrides DefaultCompensationPolicy.
func (s *OrderService) SetCompensationPolicy(p CompensationPolicy) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	s.compensation = p
}

// GetOrder retrieves a single order with its line items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return order, nil
}

// Submit validates the input and creates one order with one line item per
// cart entry. Nothing is written when validation fails.
func (s *OrderService) Submit(ctx context.Context, in SubmitOrderInput) (*models.Order, error) {
	subtotal, total, verr := s.check(in)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	rate := decimal.Zero
	switch {
	case in.ExchangeRate != nil:
		rate = *in.ExchangeRate
	case s.rates != nil:
		rate = s.rates.Current(ctx).Value
	}

	now := time.Now()
	order := &models.Order{
		ID:             uuid.New().String(),
		CustomerName:   in.CustomerName,
		CustomerDNI:    in.CustomerDNI,
		CustomerEmail:  in.CustomerEmail,
		CustomerPhone:  in.CustomerPhone,
		DeliveryMethod: in.DeliveryMethod,
		Street:         in.Street,
		Number:         in.Number,
		Floor:          in.Floor,
		Locality:       in.Locality,
		Province:       in.Province,
		PostalCode:     in.PostalCode,
		Instructions:   in.Instructions,
		PickupDate:     in.PickupDate,
		PickupTime:     in.PickupTime,
		PaymentMethod:  in.PaymentMethod,
		Subtotal:       subtotal,
		Discount:       in.Discount,
		Shipping:       in.Shipping,
		Total:          total,
		ExchangeRate:   rate,
		TotalLocal:     total.Mul(rate).Round(2),
		Status:         models.StatusPending,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	items := make([]models.OrderLineItem, len(in.Items))
	for i, item := range in.Items {
		items[i] = models.OrderLineItem{
			ID:                 uuid.New().String(),
			OrderID:            order.ID,
			Position:           i,
			ProductID:          item.ProductID,
			ProductName:        item.Name,
			ProductDescription: item.Description,
			ImageURL:           item.ImageURL,
			SKU:                item.SKU,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			Subtotal:           lineSubtotal(item),
			CreatedAt:          now,
		}
	}

	if err := s.persist(ctx, order, items); err != nil {
		return nil, err
	}
	order.LineItems = items

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.Int("line_items", len(items)),
		zap.String("total", order.Total.String()),
		zap.String("payment_method", string(order.PaymentMethod)),
	)
	s.publish(EventOrderCreated, OrderEvent{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Total:         order.Total,
		OccurredAt:    now,
	})
	return order, nil
}

// check validates in and computes its subtotal and total.
func (s *OrderService) check(in SubmitOrderInput) (decimal.Decimal, decimal.Decimal, *ValidationError) {
	verr := &ValidationError{}
	verr.Merge(validation.Struct(s.validate, in))

	if in.DeliveryMethod.Valid() && in.PaymentMethod.Valid() && !in.PaymentMethod.AllowedFor(in.DeliveryMethod) {
		verr.Add("payment_method", "cash is only accepted for pickup")
	}

	subtotal := decimal.Zero
	for i, item := range in.Items {
		if item.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		subtotal = subtotal.Add(lineSubtotal(item))
	}
	if in.Discount.IsNegative() {
		verr.Add("discount", "must not be negative")
	}
	if in.Shipping.IsNegative() {
		verr.Add("shipping", "must not be negative")
	}
	if in.ExchangeRate != nil && !in.ExchangeRate.IsPositive() {
		verr.Add("exchange_rate", "must be greater than 0")
	}

	total := subtotal.Sub(in.Discount).Add(in.Shipping)
	if total.IsNegative() {
		verr.Add("discount", "must not exceed subtotal plus shipping")
	}
	if in.Total != nil && !in.Total.Round(2).Equal(total.Round(2)) {
		verr.Add("total", fmt.Sprintf("does not match computed total %s", total.StringFixed(2)))
	}
	return subtotal, total, verr
}

func lineSubtotal(item SubmitOrderItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// persist writes the order and its items atomically when the repository
// supports it, and otherwise falls back to insert-then-compensate.
func (s *OrderService) persist(ctx context.Context, order *models.Order, items []models.OrderLineItem) error {
	if tx, ok := s.orderRepo.(repositories.TransactionalOrderRepository); ok {
		if err := tx.CreateWithItems(ctx, order, items); err != nil {
			s.logger.Error("failed to persist order", zap.String("order_id", order.ID), zap.Error(err))
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		s.logger.Error("failed to insert order", zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to create order: %w", err)
	}
	if err := s.orderRepo.CreateLineItems(ctx, items); err != nil {
		s.logger.Error("failed to insert order line items, deleting order",
			zap.String("order_id", order.ID), zap.Int("line_items", len(items)), zap.Error(err))
		if cerr := s.compensate(ctx, order.ID); cerr != nil {
			s.logger.Error("compensating delete failed, order left without line items",
				zap.String("order_id", order.ID), zap.Error(cerr))
		}
		return fmt.Errorf("failed to create order line items: %w", err)
	}
	return nil
}

// compensate deletes orderID, retrying with exponential backoff. It keeps
// going after the caller's context is cancelled.
func (s *OrderService) compensate(ctx context.Context, orderID string) error {
	ctx = context.WithoutCancel(ctx)
	delay := s.compensation.BaseDelay

	var err error
	for attempt := 1; attempt <= s.compensation.Attempts; attempt++ {
		if err = s.orderRepo.Delete(ctx, orderID); err == nil {
			s.logger.Info("compensating delete succeeded", zap.String("order_id", orderID), zap.Int("attempt", attempt))
			return nil
		}
		s.logger.Warn("compensating delete failed",
			zap.String("order_id", orderID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt < s.compensation.Attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("failed to delete order %s after %d attempts: %w", orderID, s.compensation.Attempts, err)
}

// UpdateStatus moves an order to in.Status, attaching any payment
// references. Re-applying the current status succeeds without changing it.
// Unknown statuses are rejected before the store is touched.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, in StatusUpdateInput) (*models.Order, error) {
	if id == "" {
		return nil, validation.NewError("id", "is required")
	}
	status, err := models.ParseOrderStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	previous := order.Status
	if !previous.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, status)
	}

	update := models.StatusUpdate{
		Status:            status,
		PreferenceID:      in.PreferenceID,
		PaymentID:         in.PaymentID,
		ProofOfPaymentURL: in.ProofOfPaymentURL,
	}
	if err := s.orderRepo.UpdateStatus(ctx, id, previous, update); err != nil {
		if !errors.Is(err, ErrStatusConflict) && !errors.Is(err, ErrOrderNotFound) {
			s.logger.Error("failed to update order status", zap.String("order_id", id), zap.Error(err))
		}
		return nil, fmt.Errorf("failed to update status of order %s: %w", id, err)
	}

	order.Status = status
	if in.PreferenceID != "" {
		order.PreferenceID = in.PreferenceID
	}
	if in.PaymentID != "" {
		order.PaymentID = in.PaymentID
	}
	if in.ProofOfPaymentURL != "" {
		order.ProofOfPaymentURL = in.ProofOfPaymentURL
	}
	order.UpdatedAt = time.Now()

	if previous != status {
		s.logger.Info("order status changed",
			zap.String("order_id", id), zap.String("from", string(previous)), zap.String("to", string(status)))
		s.publish(EventOrderStatusChanged, OrderEvent{
			OrderID:        id,
			Status:         status,
			PreviousStatus: previous,
			PaymentMethod:  order.PaymentMethod,
			Total:          order.Total,
			OccurredAt:     order.UpdatedAt,
		})
	}
	return order, nil
}

func (s *OrderService) publish(routingKey string, event OrderEvent) {
	if s.publisher == nil {
		s.logger.Debug("no event publisher configured, skipping", zap.String("event", routingKey))
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal order event", zap.String("event", routingKey), zap.Error(err))
		return
	}
	if err := s.publisher.Publish(routingKey, body); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("event", routingKey), zap.String("order_id", event.OrderID), zap.Error(err))
	}
}
