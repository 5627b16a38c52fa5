package handlers

import (
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service *services.OrderService
	logger  *zap.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(service *services.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the order routes with the Fiber app.
func (h *OrderHandler) RegisterRoutes(router fiber.Router) {
	orderRoutes := router.Group("/orders")
	orderRoutes.Post("/", h.HandleCreateOrder)
	orderRoutes.Get("/:id", h.HandleGetOrderByID)
	orderRoutes.Patch("/:id/status", h.HandleUpdateOrderStatus)
}

// HandleGetOrderByID retrieves a single order with its line items.
func (h *OrderHandler) HandleGetOrderByID(c *fiber.Ctx) error {
	order, err := h.service.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Could not retrieve order")
	}
	return c.JSON(order)
}

// HandleCreateOrder submits a new order.
func (h *OrderHandler) HandleCreateOrder(c *fiber.Ctx) error {
	var input services.SubmitOrderInput
	if err := c.BodyParser(&input); err != nil {
		return badBody(c, err)
	}

	order, err := h.service.Submit(c.UserContext(), input)
	if err != nil {
		return respondError(c, h.logger, err, "Could not create order")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          order.ID,
		"status":      order.Status,
		"total":       order.Total,
		"total_local": order.TotalLocal,
	})
}

// HandleUpdateOrderStatus moves an order to another status.
func (h *OrderHandler) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	var input services.StatusUpdateInput
	if err := c.BodyParser(&input); err != nil {
		return badBody(c, err)
	}

	order, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), input)
	if err != nil {
		return respondError(c, h.logger, err, "Could not update order status")
	}

	return c.JSON(fiber.Map{
		"id":     order.ID,
		"status": order.Status,
	})
}
