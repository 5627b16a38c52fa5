package middleware

import (
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderIDKey is the Locals key holding the order a notification token was
// issued for.
const OrderIDKey = "notification_order_id"

// NotificationTokenRequired is a Fiber middleware that checks the
// capability token carried in the :token route parameter.
func NotificationTokenRequired(tokens *services.NotificationTokenService, logger *zap.Logger) fiber.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		token := c.Params("token")
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Notification token is required",
			})
		}

		orderID, err := tokens.Validate(token)
		if err != nil {
			logger.Warn("notification token rejected", zap.String("ip", c.IP()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired notification token",
			})
		}

		// Store the order for the notification handler
		c.Locals(OrderIDKey, orderID)

		return c.Next()
	}
}

// NotificationOrderID returns the order stored by NotificationTokenRequired.
func NotificationOrderID(c *fiber.Ctx) string {
	id, _ := c.Locals(OrderIDKey).(string)
	return id
}
