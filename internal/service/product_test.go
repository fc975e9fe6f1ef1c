package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

func newTestProductService(t *testing.T, repo *mockProductRepository, cache ProductCache) *ProductService {
	t.Helper()
	return NewProductService(repo, cache, nil, newTestGate(t), logger.Discard())
}

func TestProductService_Create_RequiresAdmin(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	input := &CreateProductInput{Name: "Airpods", Price: 89_99, CountInStock: 10}

	_, err := svc.Create(context.Background(), authz.Anonymous, input)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = svc.Create(context.Background(), alice, input)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProductService_Create_Success(t *testing.T) {
	repo := new(mockProductRepository)
	cache := new(mockProductCache)
	svc := newTestProductService(t, repo, cache)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)
	cache.On("Invalidate", ctx, mock.Anything).Return(nil)

	product, err := svc.Create(ctx, admin, &CreateProductInput{
		Name:         "  Airpods Wireless  ",
		Brand:        "Apple",
		Category:     "Electronics",
		Price:        89_99,
		CountInStock: 10,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)
	assert.Equal(t, "Airpods Wireless", product.Name)
	assert.Equal(t, admin.UserID, product.OwnerID)
	assert.Equal(t, 0, product.NumReviews)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestProductService_Create_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateProductInput
	}{
		{"blank name", CreateProductInput{Name: "  ", Price: 100}},
		{"negative price", CreateProductInput{Name: "x", Price: -1}},
		{"negative stock", CreateProductInput{Name: "x", CountInStock: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockProductRepository)
			svc := newTestProductService(t, repo, nil)

			_, err := svc.Create(context.Background(), admin, &tt.input)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestProductService_Get_CacheHit(t *testing.T) {
	repo := new(mockProductRepository)
	cache := new(mockProductCache)
	svc := newTestProductService(t, repo, cache)
	ctx := context.Background()

	cached := &domain.Product{ID: "p-1", Name: "Cached"}
	cache.On("GetProduct", ctx, "p-1").Return(cached, true, nil)

	got, err := svc.Get(ctx, authz.Anonymous, "p-1")

	require.NoError(t, err)
	assert.Equal(t, "Cached", got.Name)
	repo.AssertNotCalled(t, "GetWithReviews", mock.Anything, mock.Anything)
}

func TestProductService_Get_CacheMissLoadsAndStores(t *testing.T) {
	repo := new(mockProductRepository)
	cache := new(mockProductCache)
	svc := newTestProductService(t, repo, cache)
	ctx := context.Background()

	product := &domain.Product{ID: "p-1", Name: "Fresh", Reviews: []domain.Review{}}
	cache.On("GetProduct", ctx, "p-1").Return(nil, false, nil)
	repo.On("GetWithReviews", ctx, "p-1").Return(product, nil)
	cache.On("SetProduct", ctx, product).Return(nil)

	got, err := svc.Get(ctx, authz.Anonymous, "p-1")

	require.NoError(t, err)
	assert.Equal(t, "Fresh", got.Name)
	repo.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestProductService_Get_NotFound(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	ctx := context.Background()

	repo.On("GetWithReviews", ctx, "missing").Return(nil, apperrors.NotFound("product", "missing"))

	_, err := svc.Get(ctx, authz.Anonymous, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProductService_Top_CacheErrorFallsBackToStore(t *testing.T) {
	repo := new(mockProductRepository)
	cache := new(mockProductCache)
	svc := newTestProductService(t, repo, cache)
	ctx := context.Background()

	top := []domain.Product{{ID: "p-2", Rating: 5}, {ID: "p-1", Rating: 4}}
	cache.On("GetTop", ctx, catalog.DefaultTopLimit).Return(nil, false, errors.New("redis down"))
	repo.On("List", ctx, catalog.TopQuery(0)).Return(top, 2, nil)
	cache.On("SetTop", ctx, catalog.DefaultTopLimit, top).Return(errors.New("redis down"))

	got, err := svc.Top(ctx, authz.Anonymous, 0)

	require.NoError(t, err)
	assert.Equal(t, top, got)
	repo.AssertExpectations(t)
}

func TestProductService_Update_Partial(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	ctx := context.Background()

	existing := &domain.Product{ID: "p-1", Name: "Old", Brand: "Acme", Price: 10_00}
	repo.On("GetByID", ctx, "p-1").Return(existing, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(p *domain.Product) bool {
		return p.Name == "New" && p.Brand == "Acme" && p.Price == 12_50
	}), false).Return(nil)

	got, err := svc.Update(ctx, admin, "p-1", &UpdateProductInput{Name: strPtr("New"), Price: int64Ptr(12_50)})

	require.NoError(t, err)
	assert.Equal(t, "New", got.Name)
	repo.AssertExpectations(t)
}

func TestProductService_Update_RejectsNegativePrice(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	ctx := context.Background()

	repo.On("GetByID", ctx, "p-1").Return(&domain.Product{ID: "p-1", Name: "Old"}, nil)

	_, err := svc.Update(ctx, admin, "p-1", &UpdateProductInput{Price: int64Ptr(-5)})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestProductService_Delete_Referenced(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	ctx := context.Background()

	repo.On("Delete", ctx, "p-1").Return(domain.ErrProductReferenced)

	err := svc.Delete(ctx, admin, "p-1")

	assert.ErrorIs(t, err, domain.ErrProductReferenced)
	assert.Equal(t, 409, apperrors.HTTPStatus(err))
}

func TestProductService_Update_WritesStockOnlyWhenGiven(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestProductService(t, repo, nil)
	ctx := context.Background()

	repo.On("GetByID", ctx, "p-1").Return(&domain.Product{ID: "p-1", Name: "Old", CountInStock: 3}, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(p *domain.Product) bool {
		return p.CountInStock == 9
	}), true).Return(nil)

	got, err := svc.Update(ctx, admin, "p-1", &UpdateProductInput{CountInStock: intPtr(9)})

	require.NoError(t, err)
	assert.Equal(t, 9, got.CountInStock)
	repo.AssertExpectations(t)
}
