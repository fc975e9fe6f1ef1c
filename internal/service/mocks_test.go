package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/pagination"
)

// --- Mock Repositories ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) GetWithReviews(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, q catalog.Query) ([]domain.Product, int, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Update(ctx context.Context, p *domain.Product, setStock bool) error {
	args := m.Called(ctx, p, setStock)
	return args.Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) AppendReview(ctx context.Context, r *domain.Review, expectedVersion int64, summary domain.ReviewSummary) error {
	args := m.Called(ctx, r, expectedVersion, summary)
	return args.Error(0)
}

func (m *mockReviewRepository) ListByProduct(ctx context.Context, productID string, page pagination.Params) ([]domain.Review, int, error) {
	args := m.Called(ctx, productID, page)
	return args.Get(0).([]domain.Review), args.Int(1), args.Error(2)
}

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, o *domain.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time, result json.RawMessage) error {
	args := m.Called(ctx, id, paidAt, result)
	return args.Error(0)
}

func (m *mockOrderRepository) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	args := m.Called(ctx, id, deliveredAt)
	return args.Error(0)
}

func (m *mockOrderRepository) DeleteUnpaid(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOrderRepository) Summary(ctx context.Context) (domain.OrderSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.OrderSummary), args.Error(1)
}

// --- Mock Cache ---

type mockProductCache struct {
	mock.Mock
}

func (m *mockProductCache) GetProduct(ctx context.Context, id string) (*domain.Product, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Product), args.Bool(1), args.Error(2)
}

func (m *mockProductCache) SetProduct(ctx context.Context, p *domain.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProductCache) GetTop(ctx context.Context, limit int) ([]domain.Product, bool, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Bool(1), args.Error(2)
}

func (m *mockProductCache) SetTop(ctx context.Context, limit int, ps []domain.Product) error {
	args := m.Called(ctx, limit, ps)
	return args.Error(0)
}

func (m *mockProductCache) Invalidate(ctx context.Context, ids ...string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// --- Test Helpers ---

var (
	admin = authz.Principal{UserID: "u-admin", Name: "Admin", IsAdmin: true}
	alice = authz.Principal{UserID: "u-alice", Name: "Alice"}
	bob   = authz.Principal{UserID: "u-bob", Name: "Bob"}
)

func newTestGate(t *testing.T) *authz.Gate {
	t.Helper()
	gate, err := authz.NewGate(nil)
	require.NoError(t, err)
	return gate
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
