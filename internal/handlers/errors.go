package handlers

import (
	"errors"

	"tienda/internal/checkout"
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError maps service errors to HTTP responses. Unexpected errors are
// logged and answered with message only, without internal detail.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, message string) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  verr.Fields,
		})
	case errors.Is(err, services.ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid order status",
			"error":   err.Error(),
		})
	case errors.Is(err, checkout.ErrPaymentNotAllowed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{"payment_method": "cash is only accepted for pickup"},
		})
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Resource not found",
			"error":   err.Error(),
		})
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrStatusConflict),
		errors.Is(err, services.ErrOrderNotPayable),
		errors.Is(err, services.ErrSubmissionInFlight),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrEmptyCart):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Request conflicts with the current state",
			"error":   err.Error(),
		})
	case errors.Is(err, services.ErrPaymentProcessor):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "The payment could not be started, please try again",
		})
	}

	logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}
