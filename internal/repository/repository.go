package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ErrStateChanged is returned by conditional order updates that matched no
// row because the order is missing or no longer in the required state. The
// caller re-reads the order to find out which.
var ErrStateChanged = errors.New("order state changed")

// ErrContention is wrapped around store errors that aborted an atomic unit
// only because of concurrent access, such as a deadlock between two orders
// locking the same products. The unit can be rerun.
var ErrContention = errors.New("transient write contention")

// ProductRepository defines the interface for product persistence operations.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, p *domain.Product) error

	// GetByID retrieves a product without its reviews.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetWithReviews retrieves a product with all of its reviews loaded.
	GetWithReviews(ctx context.Context, id string) (*domain.Product, error)

	// List returns one page of products matching q and the total match count.
	List(ctx context.Context, q catalog.Query) ([]domain.Product, int, error)

	// Update overwrites the editable fields of a product. The review
	// aggregate and version are left untouched, and stock is written only
	// when setStock is true. p.CountInStock is refreshed from the store.
	Update(ctx context.Context, p *domain.Product, setStock bool) error

	// Delete removes a product and its reviews. It fails with
	// domain.ErrProductReferenced while an order line points at it.
	Delete(ctx context.Context, id string) error
}

// ReviewRepository defines the interface for review persistence operations.
type ReviewRepository interface {
	// AppendReview stores r and the new aggregate as one atomic unit, provided
	// the product version still equals expectedVersion. It returns
	// domain.ErrVersionConflict when the version moved and
	// domain.ErrDuplicateReview when the user already reviewed the product.
	AppendReview(ctx context.Context, r *domain.Review, expectedVersion int64, summary domain.ReviewSummary) error

	// ListByProduct returns one page of a product's reviews, newest first.
	ListByProduct(ctx context.Context, productID string, page pagination.Params) ([]domain.Review, int, error)
}

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	UserID *string
	Page   pagination.Params
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts an order and its lines atomically. When
	// o.StockDecremented is set, the stock of every line's product is
	// decremented in the same unit, and nothing is applied if any product has
	// too little stock (domain.ErrOutOfStock).
	Create(ctx context.Context, o *domain.Order) error

	// GetByID retrieves an order with its lines.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the filter, newest first, with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// MarkPaid sets the paid flag, time and payment result iff the order is
	// not yet paid. Otherwise it returns ErrStateChanged.
	MarkPaid(ctx context.Context, id string, paidAt time.Time, result json.RawMessage) error

	// MarkDelivered sets the delivered flag and time iff the order is paid
	// and not yet delivered. Otherwise it returns ErrStateChanged.
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error

	// DeleteUnpaid removes an unpaid order and restores the stock it took.
	// A paid or missing order yields ErrStateChanged.
	DeleteUnpaid(ctx context.Context, id string) error

	// Summary returns the admin dashboard totals.
	Summary(ctx context.Context) (domain.OrderSummary, error)
}
