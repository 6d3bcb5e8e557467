package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"snacktrack-backend/internal/apperr"
	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/model"
	"snacktrack-backend/internal/store"
)

// ProductInput is the editable part of a product.
type ProductInput struct {
	Name     string
	Category string
	Price    decimal.Decimal
	Stock    int
}

// ProductService manages the product catalogue.
type ProductService struct {
	store  store.ProductStore
	logger zerolog.Logger
}

// NewProductService creates a new ProductService.
func NewProductService(s store.ProductStore) *ProductService {
	return &ProductService{store: s, logger: log.WithComponent("products")}
}

func validateProduct(in ProductInput) (model.Category, error) {
	if blank(in.Name) {
		return "", apperr.Validation("name is required")
	}
	category, ok := model.ParseCategory(in.Category)
	if !ok {
		return "", apperr.Validation("unknown category %q", in.Category)
	}
	if in.Price.IsNegative() {
		return "", apperr.Validation("price must not be negative")
	}
	if in.Stock < 0 {
		return "", apperr.Validation("stock must not be negative")
	}
	return category, nil
}

// Create validates and stores a new product with no allocated capacity.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*model.Product, error) {
	category, err := validateProduct(in)
	if err != nil {
		return nil, err
	}
	p := &model.Product{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(in.Name),
		Category: category,
		Price:    in.Price,
		Stock:    in.Stock,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, apperr.Persistence("create product", err)
	}
	loggerFrom(ctx, &s.logger).Info().Str("product_id", p.ID).Str("name", p.Name).Msg("product created")
	return p, nil
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, lookupError("product", id, err)
	}
	return p, nil
}

// List returns every product.
func (s *ProductService) List(ctx context.Context) ([]model.Product, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, apperr.Persistence("list products", err)
	}
	return products, nil
}

// Update overwrites name, category, price and stock. The allocated
// capacity is owned by the slot engine and never changes here.
func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, lookupError("product", id, err)
	}
	category, err := validateProduct(in)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Category = category
	p.Price = in.Price
	p.Stock = in.Stock

	if err := s.store.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundWithID("product", id)
		}
		return nil, apperr.Persistence("update product", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the product. Slots that reference it keep the dangling id
// and resolve to a null product.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return lookupError("product", id, err)
	}
	loggerFrom(ctx, &s.logger).Info().Str("product_id", id).Msg("product deleted")
	return nil
}
