package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ProductService implements the business logic for catalog operations.
type ProductService struct {
	repo     repository.ProductRepository
	cache    ProductCache
	producer *event.Producer
	gate     *authz.Gate
	logger   *slog.Logger
}

// NewProductService creates a new product service. cache may be nil.
func NewProductService(repo repository.ProductRepository, cache ProductCache, producer *event.Producer, gate *authz.Gate, logger *slog.Logger) *ProductService {
	return &ProductService{
		repo:     repo,
		cache:    cache,
		producer: producer,
		gate:     gate,
		logger:   logger,
	}
}

// CreateProductInput holds the parameters for creating a product.
type CreateProductInput struct {
	Name         string
	Brand        string
	Category     string
	Description  string
	Image        string
	Price        int64
	CountInStock int
}

// UpdateProductInput holds the parameters for updating a product.
type UpdateProductInput struct {
	Name         *string
	Brand        *string
	Category     *string
	Description  *string
	Image        *string
	Price        *int64
	CountInStock *int
}

// List returns one page of the catalog.
func (s *ProductService) List(ctx context.Context, p authz.Principal, q catalog.Query) (*pagination.Result[domain.Product], error) {
	if err := s.gate.Require(p, authz.ProductList); err != nil {
		return nil, err
	}

	products, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	result := pagination.NewResult(products, total, q.Page)
	return &result, nil
}

// Top returns the highest rated products.
func (s *ProductService) Top(ctx context.Context, p authz.Principal, limit int) ([]domain.Product, error) {
	if err := s.gate.Require(p, authz.ProductTop); err != nil {
		return nil, err
	}

	q := catalog.TopQuery(limit)
	limit = q.Page.PerPage

	if s.cache != nil {
		cached, ok, err := s.cache.GetTop(ctx, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "product cache read failed", slog.String("error", err.Error()))
		}
		if ok {
			return cached, nil
		}
	}

	products, _, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list top products: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetTop(ctx, limit, products); err != nil {
			s.logger.WarnContext(ctx, "product cache write failed", slog.String("error", err.Error()))
		}
	}
	return products, nil
}

// Get returns a product with its reviews.
func (s *ProductService) Get(ctx context.Context, p authz.Principal, id string) (*domain.Product, error) {
	if err := s.gate.Require(p, authz.ProductGet); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetProduct(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "product cache read failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
		if ok {
			return cached, nil
		}
	}

	product, err := s.repo.GetWithReviews(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.logger.WarnContext(ctx, "product cache write failed",
				slog.String("product_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return product, nil
}

// Create adds a product owned by the calling admin.
func (s *ProductService) Create(ctx context.Context, p authz.Principal, input *CreateProductInput) (*domain.Product, error) {
	if err := s.gate.Require(p, authz.ProductCreate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.InvalidInput("product name is required")
	}
	if input.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if input.CountInStock < 0 {
		return nil, apperrors.InvalidInput("count in stock must not be negative")
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:           uuid.New().String(),
		OwnerID:      p.UserID,
		Name:         strings.TrimSpace(input.Name),
		Brand:        input.Brand,
		Category:     input.Category,
		Description:  input.Description,
		Image:        input.Image,
		Price:        input.Price,
		CountInStock: input.CountInStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	invalidate(ctx, s.cache, s.logger)

	if err := s.producer.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("owner_id", product.OwnerID),
	)
	return product, nil
}

// Update applies partial updates to an existing product.
func (s *ProductService) Update(ctx context.Context, p authz.Principal, id string, input *UpdateProductInput) (*domain.Product, error) {
	if err := s.gate.Require(p, authz.ProductUpdate); err != nil {
		return nil, err
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product for update: %w", err)
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, apperrors.InvalidInput("product name must not be empty")
		}
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Brand != nil {
		product.Brand = *input.Brand
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Image != nil {
		product.Image = *input.Image
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, apperrors.InvalidInput("price must not be negative")
		}
		product.Price = *input.Price
	}
	if input.CountInStock != nil {
		if *input.CountInStock < 0 {
			return nil, apperrors.InvalidInput("count in stock must not be negative")
		}
		product.CountInStock = *input.CountInStock
	}
	product.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, product, input.CountInStock != nil); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	invalidate(ctx, s.cache, s.logger, product.ID)

	if err := s.producer.PublishProductUpdated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.updated event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product updated", slog.String("product_id", product.ID))
	return product, nil
}

// Delete removes a product. Products referenced by an order are kept.
func (s *ProductService) Delete(ctx context.Context, p authz.Principal, id string) error {
	if err := s.gate.Require(p, authz.ProductDelete); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	invalidate(ctx, s.cache, s.logger, id)

	if err := s.producer.PublishProductDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product deleted", slog.String("product_id", id))
	return nil
}
