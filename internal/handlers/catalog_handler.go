package handlers

import (
	"tienda/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CatalogHandler handles HTTP requests for the product catalog.
type CatalogHandler struct {
	service *services.CatalogService
	logger  *zap.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(service *services.CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the catalog routes with the Fiber app.
func (h *CatalogHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/products", h.HandleGetProducts)
	router.Get("/products/:id", h.HandleGetProductByID)
	router.Get("/categories", h.HandleGetCategories)
}

// HandleGetProducts lists the catalog, optionally filtered by ?category=.
func (h *CatalogHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.GetProducts(c.Query("category"))
	if err != nil {
		return respondError(c, h.logger, err, "Could not retrieve products")
	}
	return c.JSON(products)
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *CatalogHandler) HandleGetProductByID(c *fiber.Ctx) error {
	product, err := h.service.GetProductByID(c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Could not retrieve product")
	}
	return c.JSON(product)
}

// HandleGetCategories lists the catalog categories.
func (h *CatalogHandler) HandleGetCategories(c *fiber.Ctx) error {
	categories, err := h.service.GetCategories()
	if err != nil {
		return respondError(c, h.logger, err, "Could not retrieve categories")
	}
	return c.JSON(categories)
}
