// Package checkout models the storefront checkout form as an explicit state
// machine. Every transition is a pure function from one State to the next;
// no I/O happens here.
package checkout

import (
	"errors"
	"fmt"
	"time"

	"tienda/internal/models"
	"tienda/internal/validation"
)

// StateName identifies a State variant.
type StateName string

const (
	StateProductSummary             StateName = "product_summary"
	StatePersonalAndDeliveryDetails StateName = "personal_and_delivery_details"
	StatePaymentSelection           StateName = "payment_selection"
	StatePaymentSuccess             StateName = "payment_success"
	StateRedirected                 StateName = "redirected"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to the
	// current state.
	ErrInvalidTransition = errors.New("invalid checkout transition")
	// ErrEmptyCart is returned when an event needs at least one cart entry.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentNotAllowed is returned when the payment method cannot be
	// used with the chosen delivery method.
	ErrPaymentNotAllowed = errors.New("payment method not allowed for delivery method")
)

// State is one of ProductSummary, PersonalAndDeliveryDetails,
// PaymentSelection, PaymentSuccess or Redirected.
type State interface {
	Name() StateName
	sealed()
}

// ProductSummary is the initial state: the shopper reviews the cart.
type ProductSummary struct {
	Cart Cart
}

// PersonalAndDeliveryDetails is the form step. Errors holds the field
// messages of the last rejected submission.
type PersonalAndDeliveryDetails struct {
	Cart    Cart
	Details Details
	Errors  map[string]string
}

// PaymentSelection is reached once details are valid.
type PaymentSelection struct {
	Cart      Cart
	Details   Details
	Payment   models.PaymentMethod
	LastError string
	// OrderID is the order placed by a failed payment attempt. A retry
	// resumes it instead of placing another one.
	OrderID string
}

// PaymentSuccess is terminal for the cash path.
type PaymentSuccess struct {
	OrderID string
	Details Details
	Payment models.PaymentMethod
}

// Redirected is terminal for the electronic path: control has been handed
// to the payment processor and is not resumed.
type Redirected struct {
	OrderID     string
	RedirectURL string
}

func (ProductSummary) Name() StateName             { return StateProductSummary }
func (PersonalAndDeliveryDetails) Name() StateName { return StatePersonalAndDeliveryDetails }
func (PaymentSelection) Name() StateName           { return StatePaymentSelection }
func (PaymentSuccess) Name() StateName             { return StatePaymentSuccess }
func (Redirected) Name() StateName                 { return StateRedirected }

func (ProductSummary) sealed()             {}
func (PersonalAndDeliveryDetails) sealed() {}
func (PaymentSelection) sealed()           {}
func (PaymentSuccess) sealed()             {}
func (Redirected) sealed()                 {}

// Start returns the initial state for a cart.
func Start(cart Cart) State {
	return ProductSummary{Cart: cart}
}

// CartOf returns the cart carried by st; terminal states carry none.
func CartOf(st State) Cart {
	switch s := st.(type) {
	case ProductSummary:
		return s.Cart
	case PersonalAndDeliveryDetails:
		return s.Cart
	case PaymentSelection:
		return s.Cart
	}
	return Cart{}
}

func invalid(st State, event string) error {
	return fmt.Errorf("%s in state %s: %w", event, st.Name(), ErrInvalidTransition)
}

// AddItem adds qty units of product to the cart before payment selection.
func AddItem(st State, product models.Product, qty int) (State, error) {
	switch s := st.(type) {
	case ProductSummary:
		cart, err := s.Cart.Add(product, qty)
		if err != nil {
			return st, err
		}
		s.Cart = cart
		return s, nil
	case PersonalAndDeliveryDetails:
		cart, err := s.Cart.Add(product, qty)
		if err != nil {
			return st, err
		}
		s.Cart = cart
		return s, nil
	}
	return st, invalid(st, "add item")
}

// RemoveItem drops a product from the cart before payment selection.
func RemoveItem(st State, productID string) (State, error) {
	switch s := st.(type) {
	case ProductSummary:
		s.Cart = s.Cart.Remove(productID)
		return s, nil
	case PersonalAndDeliveryDetails:
		s.Cart = s.Cart.Remove(productID)
		return s, nil
	}
	return st, invalid(st, "remove item")
}

// ClearCart empties the cart and returns to the product summary.
func ClearCart(st State) (State, error) {
	switch st.(type) {
	case ProductSummary, PersonalAndDeliveryDetails:
		return ProductSummary{}, nil
	}
	return st, invalid(st, "clear cart")
}

// EditDetails opens the details form from the product summary.
func EditDetails(st State) (State, error) {
	s, ok := st.(ProductSummary)
	if !ok {
		return st, invalid(st, "edit details")
	}
	if s.Cart.Len() == 0 {
		return st, ErrEmptyCart
	}
	return PersonalAndDeliveryDetails{Cart: s.Cart}, nil
}

// SubmitDetails moves to payment selection when d passes v. On rejection it
// returns the details state carrying the field errors, together with the
// validation error.
func SubmitDetails(st State, d Details, v *DetailsValidator, now time.Time) (State, error) {
	var cart Cart
	switch s := st.(type) {
	case ProductSummary:
		cart = s.Cart
	case PersonalAndDeliveryDetails:
		cart = s.Cart
	default:
		return st, invalid(st, "submit details")
	}
	if cart.Len() == 0 {
		return st, ErrEmptyCart
	}

	if err := v.Validate(d, now); err != nil {
		next := PersonalAndDeliveryDetails{Cart: cart, Details: d}
		var verr *validation.Error
		if errors.As(err, &verr) {
			next.Errors = verr.Fields
		}
		return next, err
	}

	return PaymentSelection{
		Cart:    cart,
		Details: d,
		Payment: models.DefaultPaymentFor(d.DeliveryMethod),
	}, nil
}

// Back steps one screen back: payment selection returns to the form with
// the entered details, the form returns to the product summary.
func Back(st State) (State, error) {
	switch s := st.(type) {
	case PaymentSelection:
		return PersonalAndDeliveryDetails{Cart: s.Cart, Details: s.Details}, nil
	case PersonalAndDeliveryDetails:
		return ProductSummary{Cart: s.Cart}, nil
	}
	return st, invalid(st, "back")
}

// SelectPayment chooses the payment method. Cash is only accepted for pickup.
func SelectPayment(st State, method models.PaymentMethod) (State, error) {
	s, ok := st.(PaymentSelection)
	if !ok {
		return st, invalid(st, "select payment")
	}
	if !method.AllowedFor(s.Details.DeliveryMethod) {
		return st, fmt.Errorf("%s with %s delivery: %w", method, s.Details.DeliveryMethod, ErrPaymentNotAllowed)
	}
	s.Payment = method
	s.LastError = ""
	return s, nil
}

// ConfirmPayment completes the cash path. The cart is discarded.
func ConfirmPayment(st State, orderID string) (State, error) {
	s, ok := st.(PaymentSelection)
	if !ok || s.Payment != models.PaymentCash {
		return st, invalid(st, "confirm payment")
	}
	return PaymentSuccess{OrderID: orderID, Details: s.Details, Payment: s.Payment}, nil
}

// Redirect completes the electronic path by handing off to redirectURL.
func Redirect(st State, orderID, redirectURL string) (State, error) {
	s, ok := st.(PaymentSelection)
	if !ok || s.Payment != models.PaymentElectronic {
		return st, invalid(st, "redirect")
	}
	return Redirected{OrderID: orderID, RedirectURL: redirectURL}, nil
}

// FailPayment records a failed payment attempt; the shopper may retry.
func FailPayment(st State, message string) (State, error) {
	s, ok := st.(PaymentSelection)
	if !ok {
		return st, invalid(st, "fail payment")
	}
	s.LastError = message
	return s, nil
}
