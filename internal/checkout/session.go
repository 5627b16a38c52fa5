package checkout

import (
	"time"

	"tienda/internal/models"

	"github.com/shopspring/decimal"
)

// Session is one shopper's pass through the checkout form.
type Session struct {
	ID        string
	State     State
	Rate      models.ExchangeRate
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal is the cart subtotal in source currency.
func (s *Session) Subtotal() decimal.Decimal {
	return CartOf(s.State).Subtotal()
}

// SubtotalLocal is the cart subtotal converted at the session's rate.
func (s *Session) SubtotalLocal() decimal.Decimal {
	return Convert(s.Subtotal(), s.Rate.Value)
}
