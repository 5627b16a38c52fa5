package services_test

import (
	"fmt"
	"testing"

	"tienda/internal/models"
	"tienda/internal/repositories"
	"tienda/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCatalogRepository is a mock implementation of repositories.CatalogRepository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetAll() ([]models.Product, error) {
	args := m.Called()
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockCatalogRepository) GetByID(id string) (*models.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockCatalogRepository) GetByCategory(category string) ([]models.Product, error) {
	args := m.Called(category)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockCatalogRepository) Categories() ([]string, error) {
	args := m.Called()
	return args.Get(0).([]string), args.Error(1)
}

func TestCatalogService_GetProducts(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	service := services.NewCatalogService(mockRepo)

	all := []models.Product{
		{ID: "cable-usbc", Name: "Cable USB-C", Category: "Accesorios Apple"},
		{ID: "perfume-1", Name: "Perfume", Category: "Perfumes"},
	}
	mockRepo.On("GetAll").Return(all, nil).Once()
	mockRepo.On("GetByCategory", "Perfumes").Return(all[1:], nil).Once()

	products, err := service.GetProducts("")
	assert.NoError(t, err)
	assert.Len(t, products, 2)

	products, err = service.GetProducts("Perfumes")
	assert.NoError(t, err)
	assert.Equal(t, all[1:], products)
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetProductByID(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	service := services.NewCatalogService(mockRepo)

	expected := &models.Product{ID: "cable-usbc", Name: "Cable USB-C"}

	// Test successful retrieval
	mockRepo.On("GetByID", "cable-usbc").Return(expected, nil).Once()
	product, err := service.GetProductByID("cable-usbc")
	assert.NoError(t, err)
	assert.Equal(t, expected, product)

	// Test product not found
	mockRepo.On("GetByID", "99").Return(nil, fmt.Errorf("product with ID 99: %w", repositories.ErrProductNotFound)).Once()
	product, err = service.GetProductByID("99")
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	assert.Nil(t, product)
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetCategories(t *testing.T) {
	mockRepo := new(MockCatalogRepository)
	service := services.NewCatalogService(mockRepo)

	mockRepo.On("Categories").Return([]string{"Accesorios Apple", "Varios"}, nil).Once()
	categories, err := service.GetCategories()
	assert.NoError(t, err)
	assert.Equal(t, []string{"Accesorios Apple", "Varios"}, categories)
	mockRepo.AssertExpectations(t)
}
