package services

import (
	"errors"

	"tienda/internal/repositories"
	"tienda/internal/validation"
)

// ValidationError reports invalid client input, keyed by JSON field path.
type ValidationError = validation.Error

var (
	ErrOrderNotFound      = repositories.ErrOrderNotFound
	ErrStatusConflict     = repositories.ErrStatusConflict
	ErrSessionNotFound    = repositories.ErrSessionNotFound
	ErrProductNotFound    = repositories.ErrProductNotFound
	ErrInvalidStatus      = errors.New("invalid order status")
	ErrInvalidTransition  = errors.New("order status cannot move backwards")
	ErrPaymentProcessor   = errors.New("payment processor request failed")
	ErrOrderNotPayable    = errors.New("order cannot be paid electronically")
	ErrSubmissionInFlight = errors.New("a checkout submission is already in progress")
	ErrInvalidToken       = errors.New("invalid notification token")
)
