package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DeliveryMethod is how the customer receives the order.
type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCarrier DeliveryMethod = "carrier"
)

// Valid reports whether d is a recognized delivery method.
func (d DeliveryMethod) Valid() bool {
	return d == DeliveryPickup || d == DeliveryCarrier
}

// PaymentMethod is how the customer pays for the order.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentElectronic PaymentMethod = "electronic"
)

// Valid reports whether p is a recognized payment method.
func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentElectronic
}

// AllowedFor reports whether the payment method may be used with the given
// delivery method. Cash is only collected at pickup.
func (p PaymentMethod) AllowedFor(d DeliveryMethod) bool {
	if p == PaymentCash {
		return d == DeliveryPickup
	}
	return p.Valid()
}

// DefaultPaymentFor returns the payment method preselected for a delivery method.
func DefaultPaymentFor(d DeliveryMethod) PaymentMethod {
	if d == DeliveryCarrier {
		return PaymentElectronic
	}
	return PaymentCash
}

// OrderStatus is the lifecycle state of a persisted order.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusPaidCash       OrderStatus = "paid-cash"
	StatusPaidElectronic OrderStatus = "paid-electronic"
	StatusCancelled      OrderStatus = "cancelled"
)

// ParseOrderStatus converts a raw string into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusPaidCash, StatusPaidElectronic, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid order status: %s", s)
}

// Terminal reports whether no further status change is possible.
func (s OrderStatus) Terminal() bool {
	return s != StatusPending
}

// CanTransitionTo reports whether moving from s to next keeps the status
// moving forward. Re-applying the current status is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	return s == StatusPending
}

// Order represents a customer order.
type Order struct {
	ID string `json:"id" gorm:"primaryKey;type:varchar(36)"`

	CustomerName  string `json:"customer_name" gorm:"type:varchar(200);not null"`
	CustomerDNI   string `json:"customer_dni" gorm:"type:varchar(20)"`
	CustomerEmail string `json:"customer_email" gorm:"type:varchar(255);not null"`
	CustomerPhone string `json:"customer_phone" gorm:"type:varchar(50);not null"`

	DeliveryMethod DeliveryMethod `json:"delivery_method" gorm:"type:varchar(20);not null"`
	Street         string         `json:"street,omitempty"`
	Number         string         `json:"number,omitempty"`
	Floor          string         `json:"floor,omitempty"`
	Locality       string         `json:"locality,omitempty"`
	Province       string         `json:"province,omitempty"`
	PostalCode     string         `json:"postal_code,omitempty"`
	Instructions   string         `json:"instructions,omitempty"`
	PickupDate     string         `json:"pickup_date,omitempty" gorm:"type:varchar(10)"` // YYYY-MM-DD
	PickupTime     string         `json:"pickup_time,omitempty" gorm:"type:varchar(5)"`  // HH:MM

	PaymentMethod PaymentMethod `json:"payment_method" gorm:"type:varchar(20);not null"`

	Subtotal     decimal.Decimal `json:"subtotal" gorm:"type:numeric(14,2);not null"`
	Discount     decimal.Decimal `json:"discount" gorm:"type:numeric(14,2);not null"`
	Shipping     decimal.Decimal `json:"shipping" gorm:"type:numeric(14,2);not null"`
	Total        decimal.Decimal `json:"total" gorm:"type:numeric(14,2);not null"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" gorm:"type:numeric(14,4)"`
	TotalLocal   decimal.Decimal `json:"total_local" gorm:"type:numeric(18,2)"`

	Status OrderStatus `json:"status" gorm:"type:varchar(20);not null;index"`

	PreferenceID      string `json:"preference_id,omitempty"`
	PaymentID         string `json:"payment_id,omitempty"`
	ProofOfPaymentURL string `json:"proof_of_payment_url,omitempty"`
	Notes             string `json:"notes,omitempty"`

	LineItems []OrderLineItem `json:"line_items,omitempty" gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderLineItem is a snapshot of one cart entry at the time of ordering.
// It does not follow later catalog changes.
type OrderLineItem struct {
	ID                 string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID            string          `json:"order_id" gorm:"type:varchar(36);not null;index"`
	Position           int             `json:"position"`
	ProductID          string          `json:"product_id" gorm:"type:varchar(64)"`
	ProductName        string          `json:"product_name" gorm:"not null"`
	ProductDescription string          `json:"product_description,omitempty"`
	ImageURL           string          `json:"image_url,omitempty"`
	SKU                string          `json:"sku,omitempty"`
	Quantity           int             `json:"quantity" gorm:"not null"`
	UnitPrice          decimal.Decimal `json:"unit_price" gorm:"type:numeric(14,2);not null"`
	Subtotal           decimal.Decimal `json:"subtotal" gorm:"type:numeric(14,2);not null"`
	CreatedAt          time.Time       `json:"created_at"`
}

// StatusUpdate carries the fields the reconciliation path may change.
type StatusUpdate struct {
	Status            OrderStatus
	PreferenceID      string
	PaymentID         string
	ProofOfPaymentURL string
}

// ExchangeRate is a source-currency-per-target-currency quote.
type ExchangeRate struct {
	Value     decimal.Decimal `json:"value"`
	Source    RateSource      `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// RateSource tells whether a rate came from the quote API or the fallback.
type RateSource string

const (
	RateLive     RateSource = "live"
	RateFallback RateSource = "fallback"
)
