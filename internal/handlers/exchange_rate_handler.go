package handlers

import (
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ExchangeRateHandler serves the current exchange rate.
type ExchangeRateHandler struct {
	rates services.RateProvider
}

// NewExchangeRateHandler creates a new ExchangeRateHandler.
func NewExchangeRateHandler(rates services.RateProvider) *ExchangeRateHandler {
	return &ExchangeRateHandler{rates: rates}
}

// RegisterRoutes registers the exchange rate route with the Fiber app.
func (h *ExchangeRateHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/exchange-rate", h.HandleGetExchangeRate)
}

// HandleGetExchangeRate never fails; a fallback rate is reported as such.
func (h *ExchangeRateHandler) HandleGetExchangeRate(c *fiber.Ctx) error {
	return c.JSON(h.rates.Current(c.UserContext()))
}
