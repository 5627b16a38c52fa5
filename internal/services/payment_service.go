package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tienda/internal/models"
	"tienda/internal/validation"
	"tienda/pkg/mercadopago"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NotificationPath is the route prefix of processor notifications. The
// token is appended as the last path segment.
const NotificationPath = "/api/v1/payments/notifications/"

// PreferenceCreator registers payment preferences with the processor.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	Sandbox() bool
}

// PreferenceItem is one charged line of a payment preference.
type PreferenceItem struct {
	Title     string          `json:"title" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PayerInput identifies who pays.
type PayerInput struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
	DNI   string `json:"dni"`
}

// PreferenceInput asks for a preference for an existing order. Items and
// payer default to the order's line items and customer.
type PreferenceInput struct {
	OrderID string           `json:"order_id" validate:"required"`
	Items   []PreferenceItem `json:"items" validate:"omitempty,dive"`
	Payer   *PayerInput      `json:"payer"`
}

// PreferenceResult is where the shopper must be sent to pay.
type PreferenceResult struct {
	OrderID      string `json:"order_id"`
	PreferenceID string `json:"preference_id"`
	RedirectURL  string `json:"redirect_url"`
}

// Notification is a payment status report from the processor.
type Notification struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
}

// PaymentService runs the electronic payment path.
type PaymentService struct {
	orders    *OrderService
	processor PreferenceCreator
	tokens    *NotificationTokenService
	baseURL   string
	currency  string
	logger    *zap.Logger
	validate  *validator.Validate
}

// NewPaymentService creates a new PaymentService. baseURL is the public
// root used to build back and notification URLs.
func NewPaymentService(orders *OrderService, processor PreferenceCreator, tokens *NotificationTokenService, baseURL, currency string, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		orders:    orders,
		processor: processor,
		tokens:    tokens,
		baseURL:   strings.TrimRight(baseURL, "/"),
		currency:  currency,
		logger:    logger,
		validate:  validation.New(),
	}
}

// CreatePreference registers a preference for a pending electronic order
// and stores its ID on the order. On processor failure the order is left
// untouched and ErrPaymentProcessor is returned; nothing is retried.
func (s *PaymentService) CreatePreference(ctx context.Context, in PreferenceInput) (*PreferenceResult, error) {
	if verr := validation.Struct(s.validate, in); verr != nil {
		return nil, verr
	}

	order, err := s.orders.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != models.PaymentElectronic || order.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: order %s is %s with %s payment",
			ErrOrderNotPayable, order.ID, order.Status, order.PaymentMethod)
	}

	token, err := s.tokens.Issue(order.ID)
	if err != nil {
		return nil, err
	}

	req := mercadopago.PreferenceRequest{
		Items: s.items(order, in.Items),
		Payer: payer(order, in.Payer),
		BackURLs: mercadopago.BackURLs{
			Success: s.baseURL + "/payment/success",
			Failure: s.baseURL + "/payment/failure",
			Pending: s.baseURL + "/payment/pending",
		},
		AutoReturn:        "approved",
		NotificationURL:   s.baseURL + NotificationPath + token,
		ExternalReference: order.ID,
	}

	pref, err := s.processor.CreatePreference(ctx, req)
	if err != nil {
		s.logger.Error("failed to create payment preference", zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrPaymentProcessor, err)
	}

	if _, err := s.orders.UpdateStatus(ctx, order.ID, StatusUpdateInput{
		Status:       string(models.StatusPending),
		PreferenceID: pref.ID,
	}); err != nil {
		s.logger.Error("failed to record preference on order",
			zap.String("order_id", order.ID), zap.String("preference_id", pref.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("payment preference created", zap.String("order_id", order.ID), zap.String("preference_id", pref.ID))
	return &PreferenceResult{
		OrderID:      order.ID,
		PreferenceID: pref.ID,
		RedirectURL:  pref.RedirectURL(s.processor.Sandbox()),
	}, nil
}

func (s *PaymentService) items(order *models.Order, in []PreferenceItem) []mercadopago.Item {
	if len(in) > 0 {
		out := make([]mercadopago.Item, len(in))
		for i, item := range in {
			out[i] = mercadopago.Item{
				Title:      item.Title,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
				CurrencyID: s.currency,
			}
		}
		return out
	}

	out := make([]mercadopago.Item, len(order.LineItems))
	for i, li := range order.LineItems {
		out[i] = mercadopago.Item{
			ID:         li.SKU,
			Title:      li.ProductName,
			Quantity:   li.Quantity,
			UnitPrice:  li.UnitPrice,
			CurrencyID: s.currency,
		}
	}
	return out
}

func payer(order *models.Order, in *PayerInput) mercadopago.Payer {
	p := PayerInput{
		Name:  order.CustomerName,
		Email: order.CustomerEmail,
		Phone: order.CustomerPhone,
		DNI:   order.CustomerDNI,
	}
	if in != nil {
		if in.Name != "" {
			p.Name = in.Name
		}
		if in.Email != "" {
			p.Email = in.Email
		}
		if in.Phone != "" {
			p.Phone = in.Phone
		}
		if in.DNI != "" {
			p.DNI = in.DNI
		}
	}

	out := mercadopago.Payer{Name: p.Name, Email: p.Email}
	if p.Phone != "" {
		out.Phone = &mercadopago.Phone{Number: p.Phone}
	}
	if p.DNI != "" {
		out.Identification = &mercadopago.Identification{Type: "DNI", Number: p.DNI}
	}
	return out
}

// HandleNotification applies a processor status report to orderID, which
// the caller has taken from a validated notification token. Approved
// payments mark the order paid-electronic, rejected or cancelled ones
// cancel it, and any other status is acknowledged without change. The
// report is not cross-checked with the processor.
func (s *PaymentService) HandleNotification(ctx context.Context, orderID string, n Notification) (*models.Order, error) {
	var target models.OrderStatus
	switch strings.ToLower(n.Status) {
	case "approved":
		target = models.StatusPaidElectronic
	case "rejected", "cancelled":
		target = models.StatusCancelled
	default:
		s.logger.Info("payment notification acknowledged without change",
			zap.String("order_id", orderID), zap.String("status", n.Status))
		return s.orders.GetOrder(ctx, orderID)
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, StatusUpdateInput{
		Status:    string(target),
		PaymentID: n.PaymentID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Warn("payment notification conflicts with order status",
				zap.String("order_id", orderID), zap.String("status", n.Status), zap.Error(err))
		}
		return nil, err
	}
	return order, nil
}
