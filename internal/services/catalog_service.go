package services

import (
	"tienda/internal/models"
	"tienda/internal/repositories"
)

// CatalogService handles read access to the product catalog.
type CatalogService struct {
	repo repositories.CatalogRepository
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(repo repositories.CatalogRepository) *CatalogService {
	return &CatalogService{
		repo: repo,
	}
}

// GetProducts retrieves all products, or only those of category when it is
// not empty.
func (s *CatalogService) GetProducts(category string) ([]models.Product, error) {
	if category == "" {
		return s.repo.GetAll()
	}
	return s.repo.GetByCategory(category)
}

// GetProductByID retrieves a single product by its ID.
func (s *CatalogService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// GetCategories lists the catalog categories in display order.
func (s *CatalogService) GetCategories() ([]string, error) {
	return s.repo.Categories()
}
