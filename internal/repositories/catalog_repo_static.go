package repositories

import (
	"fmt"

	"tienda/internal/models"
)

// StaticCatalogRepository serves a fixed product list loaded at startup.
// It is never written to after construction, so reads need no locking.
type StaticCatalogRepository struct {
	products []models.Product
	byID     map[string]int
}

// NewStaticCatalogRepository creates a catalog from the given products,
// keeping their order. Duplicate IDs are rejected.
func NewStaticCatalogRepository(products []models.Product) (*StaticCatalogRepository, error) {
	r := &StaticCatalogRepository{
		products: make([]models.Product, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	copy(r.products, products)
	for i, p := range r.products {
		if p.ID == "" {
			return nil, fmt.Errorf("product %q has no ID", p.Name)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product ID %s", p.ID)
		}
		if len(p.PriceTiers) == 0 {
			return nil, fmt.Errorf("product %s has no price tiers", p.ID)
		}
		r.byID[p.ID] = i
	}
	return r, nil
}

// GetAll returns all products in catalog order.
func (r *StaticCatalogRepository) GetAll() ([]models.Product, error) {
	out := make([]models.Product, len(r.products))
	copy(out, r.products)
	return out, nil
}

// GetByID returns a product by its ID.
func (r *StaticCatalogRepository) GetByID(id string) (*models.Product, error) {
	i, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
	}
	p := r.products[i]
	return &p, nil
}

// GetByCategory returns the products of one category in catalog order.
func (r *StaticCatalogRepository) GetByCategory(category string) ([]models.Product, error) {
	out := make([]models.Product, 0)
	for _, p := range r.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

// Categories returns the distinct categories in order of first appearance.
func (r *StaticCatalogRepository) Categories() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.products {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out, nil
}
