package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tienda/internal/checkout"
	"tienda/internal/models"
	"tienda/internal/repositories"

	"go.uber.org/zap"
)

// CheckoutService drives checkout sessions through the checkout state
// machine and runs the order and payment workflows when the shopper pays.
type CheckoutService struct {
	sessions repositories.CheckoutSessionRepository
	catalog  repositories.CatalogRepository
	rates    RateProvider
	orders   *OrderService
	payments *PaymentService
	details  *checkout.DetailsValidator
	logger   *zap.Logger
	now      func() time.Time

	// mu serializes session read-modify-write cycles. paying marks sessions
	// with a payment in flight; it is held across the network calls of Pay.
	mu     sync.Mutex
	paying map[string]bool
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	sessions repositories.CheckoutSessionRepository,
	catalog repositories.CatalogRepository,
	rates RateProvider,
	orders *OrderService,
	payments *PaymentService,
	details *checkout.DetailsValidator,
	logger *zap.Logger,
) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		sessions: sessions,
		catalog:  catalog,
		rates:    rates,
		orders:   orders,
		payments: payments,
		details:  details,
		logger:   logger,
		now:      time.Now,
		paying:   make(map[string]bool),
	}
}

// Open starts a new checkout session with an empty cart and a freshly
// fetched exchange rate.
func (s *CheckoutService) Open(ctx context.Context) (*checkout.Session, error) {
	session := &checkout.Session{
		State: checkout.Start(checkout.NewCart()),
		Rate:  s.rates.Refresh(ctx),
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("failed to open checkout session: %w", err)
	}
	s.logger.Debug("checkout session opened", zap.String("session_id", session.ID))
	return session, nil
}

// Get returns a session with its exchange rate brought up to date.
func (s *CheckoutService) Get(ctx context.Context, id string) (*checkout.Session, error) {
	return s.mutate(ctx, id, func(st checkout.State) (checkout.State, error) {
		return st, nil
	})
}

// AddItem puts qty units of a catalog product in the session cart.
func (s *CheckoutService) AddItem(ctx context.Context, id, productID string, qty int) (*checkout.Session, error) {
	product, err := s.catalog.GetByID(productID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(st checkout.State) (checkout.State, error) {
		return checkout.AddItem(st, *product, qty)
	})
}

// RemoveItem drops a product from the session cart.
func (s *CheckoutService) RemoveItem(ctx context.Context, id, productID string) (*checkout.Session, error) {
	return s.mutate(ctx, id, func(st checkout.State) (checkout.State, error) {
		return checkout.RemoveItem(st, productID)
	})
}

// ClearCart empties the session cart.
func (s *CheckoutService) ClearCart(ctx context.Context, id string) (*checkout.Session, error) {
	return s.mutate(ctx, id, checkout.ClearCart)
}

// EditDetails opens the details form.
func (s *CheckoutService) EditDetails(ctx context.Context, id string) (*checkout.Session, error) {
	return s.mutate(ctx, id, checkout.EditDetails)
}

// SubmitDetails validates the form. On rejection the session stays on the
// form with the field errors and a *ValidationError is returned.
func (s *CheckoutService) SubmitDetails(ctx context.Context, id string, d checkout.Details) (*checkout.Session, error) {
	return s.mutate(ctx, id, func(st checkout.State) (checkout.State, error) {
		return checkout.SubmitDetails(st, d, s.details, s.now())
	})
}

// Back steps one screen back.
func (s *CheckoutService) Back(ctx context.Context, id string) (*checkout.Session, error) {
	return s.mutate(ctx, id, checkout.Back)
}

// SelectPayment chooses the payment method.
func (s *CheckoutService) SelectPayment(ctx context.Context, id string, method models.PaymentMethod) (*checkout.Session, error) {
	return s.mutate(ctx, id, func(st checkout.State) (checkout.State, error) {
		return checkout.SelectPayment(st, method)
	})
}

// Pay submits the order for the session and completes payment: cash orders
// are marked paid-cash and end in PaymentSuccess, electronic orders get a
// payment preference and end in Redirected. A failure keeps the session in
// PaymentSelection with a message so the shopper can retry. Only one Pay
// per session may run at a time; others get ErrSubmissionInFlight.
func (s *CheckoutService) Pay(ctx context.Context, id string, method models.PaymentMethod) (*checkout.Session, error) {
	rate := s.rates.Current(ctx)

	s.mu.Lock()
	sel, err := s.beginPayment(id, method, rate)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer func() {
		s.mu.Lock()
		delete(s.paying, id)
		s.mu.Unlock()
	}()

	next, payErr := s.pay(ctx, sel, rate)

	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.sessions.GetByID(id)
	if err != nil {
		return nil, err
	}
	session.State = next
	if err := s.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save checkout session %s: %w", id, err)
	}
	return session, payErr
}

// beginPayment moves the session to PaymentSelection with method chosen
// and marks it as paying. s.mu must be held.
func (s *CheckoutService) beginPayment(id string, method models.PaymentMethod, rate models.ExchangeRate) (checkout.PaymentSelection, error) {
	if s.paying[id] {
		return checkout.PaymentSelection{}, ErrSubmissionInFlight
	}
	session, err := s.sessions.GetByID(id)
	if err != nil {
		return checkout.PaymentSelection{}, err
	}

	st := session.State
	if method != "" {
		if st, err = checkout.SelectPayment(st, method); err != nil {
			return checkout.PaymentSelection{}, err
		}
	}
	sel, ok := st.(checkout.PaymentSelection)
	if !ok {
		return checkout.PaymentSelection{}, fmt.Errorf("pay in state %s: %w", st.Name(), checkout.ErrInvalidTransition)
	}

	session.State = sel
	session.Rate = rate
	if err := s.sessions.Save(session); err != nil {
		return checkout.PaymentSelection{}, fmt.Errorf("failed to save checkout session %s: %w", id, err)
	}
	s.paying[id] = true
	return sel, nil
}

func (s *CheckoutService) pay(ctx context.Context, sel checkout.PaymentSelection, rate models.ExchangeRate) (checkout.State, error) {
	order, err := s.placeOrder(ctx, sel, rate)
	if err != nil {
		return s.fail(sel, "", err)
	}

	switch sel.Payment {
	case models.PaymentCash:
		if _, err := s.orders.UpdateStatus(ctx, order.ID, StatusUpdateInput{Status: string(models.StatusPaidCash)}); err != nil {
			return s.fail(sel, order.ID, err)
		}
		return checkout.ConfirmPayment(sel, order.ID)
	case models.PaymentElectronic:
		pref, err := s.payments.CreatePreference(ctx, PreferenceInput{OrderID: order.ID})
		if err != nil {
			return s.fail(sel, order.ID, err)
		}
		return checkout.Redirect(sel, order.ID, pref.RedirectURL)
	}
	return s.fail(sel, order.ID, fmt.Errorf("unsupported payment method %q", sel.Payment))
}

// placeOrder resumes the order of a failed attempt when it still matches
// the selected payment method, and submits a new one otherwise. A pending
// order left behind by a different method is cancelled first.
func (s *CheckoutService) placeOrder(ctx context.Context, sel checkout.PaymentSelection, rate models.ExchangeRate) (*models.Order, error) {
	if sel.OrderID != "" {
		prev, err := s.orders.GetOrder(ctx, sel.OrderID)
		switch {
		case err != nil:
			s.logger.Warn("previous checkout order unavailable, placing a new one",
				zap.String("order_id", sel.OrderID), zap.Error(err))
		case prev.PaymentMethod == sel.Payment && prev.Status != models.StatusCancelled:
			return prev, nil
		case prev.Status == models.StatusPending:
			if _, err := s.orders.UpdateStatus(ctx, prev.ID, StatusUpdateInput{Status: string(models.StatusCancelled)}); err != nil {
				return nil, err
			}
		}
	}
	return s.orders.Submit(ctx, orderInput(sel, rate))
}

func (s *CheckoutService) fail(sel checkout.PaymentSelection, orderID string, err error) (checkout.State, error) {
	if orderID != "" {
		sel.OrderID = orderID
	}
	s.logger.Error("checkout payment failed",
		zap.String("order_id", orderID), zap.String("payment_method", string(sel.Payment)), zap.Error(err))
	next, ferr := checkout.FailPayment(sel, failureMessage(err))
	if ferr != nil {
		return sel, ferr
	}
	return next, err
}

func failureMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrPaymentProcessor):
		return "The payment could not be started. Please try again."
	default:
		return "The order could not be placed. Please try again."
	}
}

func orderInput(sel checkout.PaymentSelection, rate models.ExchangeRate) SubmitOrderInput {
	d := sel.Details
	entries := sel.Cart.Entries()
	items := make([]SubmitOrderItem, len(entries))
	for i, e := range entries {
		items[i] = SubmitOrderItem{
			ProductID:   e.ProductID,
			Name:        e.Name,
			Description: e.Description,
			ImageURL:    e.Image,
			SKU:         e.SKU,
			Quantity:    e.Quantity,
			UnitPrice:   e.UnitPrice,
		}
	}

	in := SubmitOrderInput{
		CustomerName:   d.Name,
		CustomerDNI:    d.DNI,
		CustomerEmail:  d.Email,
		CustomerPhone:  d.Phone,
		DeliveryMethod: d.DeliveryMethod,
		PaymentMethod:  sel.Payment,
		Street:         d.Street,
		Number:         d.Number,
		Floor:          d.Floor,
		Locality:       d.Locality,
		Province:       d.Province,
		PostalCode:     d.PostalCode,
		Instructions:   d.Instructions,
		PickupDate:     d.PickupDate,
		PickupTime:     d.PickupTime,
		Notes:          d.PickupNote(),
		Items:          items,
	}
	if rate.Value.IsPositive() {
		value := rate.Value
		in.ExchangeRate = &value
	}
	return in
}

// mutate applies fn to the session's state and saves the result, also when
// fn returns an error alongside a new state.
func (s *CheckoutService) mutate(ctx context.Context, id string, fn func(checkout.State) (checkout.State, error)) (*checkout.Session, error) {
	rate := s.rates.Current(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paying[id] {
		return nil, ErrSubmissionInFlight
	}
	session, err := s.sessions.GetByID(id)
	if err != nil {
		return nil, err
	}

	next, ferr := fn(session.State)
	if next != nil {
		session.State = next
	}
	session.Rate = rate
	if err := s.sessions.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save checkout session %s: %w", id, err)
	}
	return session, ferr
}

// PruneIdle drops sessions untouched for longer than maxAge.
func (s *CheckoutService) PruneIdle(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.sessions.DeleteOlderThan(s.now().Add(-maxAge))
	if removed > 0 {
		s.logger.Info("pruned idle checkout sessions", zap.Int("removed", removed))
	}
	return removed
}

// RunPruner calls PruneIdle every interval until ctx is cancelled.
func (s *CheckoutService) RunPruner(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PruneIdle(maxAge)
		}
	}
}
