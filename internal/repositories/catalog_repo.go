package repositories

import (
	"errors"

	"tienda/internal/models"
)

// ErrProductNotFound is returned when no catalog product has the requested ID.
var ErrProductNotFound = errors.New("product not found")

// CatalogRepository defines read-only access to the product catalog.
type CatalogRepository interface {
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	GetByCategory(category string) ([]models.Product, error)
	Categories() ([]string, error)
}
