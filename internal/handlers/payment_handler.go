package handlers

import (
	"tienda/internal/middleware"
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// PaymentHandler handles payment preference requests and processor
// notifications.
type PaymentHandler struct {
	service *services.PaymentService
	tokens  *services.NotificationTokenService
	logger  *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(service *services.PaymentService, tokens *services.NotificationTokenService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		tokens:  tokens,
		logger:  logger,
	}
}

// RegisterRoutes registers the payment routes with the Fiber app.
func (h *PaymentHandler) RegisterRoutes(router fiber.Router) {
	paymentRoutes := router.Group("/payments")
	paymentRoutes.Post("/preferences", h.HandleCreatePreference)
	// Reachable only with the token issued for the order
	paymentRoutes.Post("/notifications/:token", middleware.NotificationTokenRequired(h.tokens, h.logger), h.HandleNotification)
}

// HandleCreatePreference creates a payment preference for an order.
func (h *PaymentHandler) HandleCreatePreference(c *fiber.Ctx) error {
	var input services.PreferenceInput
	if err := c.BodyParser(&input); err != nil {
		return badBody(c, err)
	}

	result, err := h.service.CreatePreference(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.logger, err, "Could not create payment preference")
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleNotification applies a payment status report from the processor.
func (h *PaymentHandler) HandleNotification(c *fiber.Ctx) error {
	var n services.Notification
	if err := c.BodyParser(&n); err != nil {
		return badBody(c, err)
	}

	order, err := h.service.HandleNotification(c.UserContext(), middleware.NotificationOrderID(c), n)
	if err != nil {
		return respondError(c, h.logger, err, "Could not process payment notification")
	}
	return c.JSON(fiber.Map{
		"id":     order.ID,
		"status": order.Status,
	})
}
