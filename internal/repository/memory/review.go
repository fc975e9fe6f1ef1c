package memory

import (
	"context"
	"slices"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ReviewRepository implements repository.ReviewRepository in memory.
type ReviewRepository struct {
	s *Store
}

// NewReviewRepository creates a review repository backed by s.
func NewReviewRepository(s *Store) *ReviewRepository {
	return &ReviewRepository{s: s}
}

// AppendReview compares the product version under the store lock and, when
// it still matches, appends the review and swaps in the new aggregate.
func (r *ReviewRepository) AppendReview(_ context.Context, rv *domain.Review, expectedVersion int64, summary domain.ReviewSummary) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[rv.ProductID]
	if !ok {
		return apperrors.NotFound("product", rv.ProductID)
	}
	if p.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.s.reviews[rv.ProductID] {
		if existing.UserID == rv.UserID {
			return domain.ErrDuplicateReview
		}
	}

	r.s.reviews[rv.ProductID] = append(r.s.reviews[rv.ProductID], *rv)
	p.Rating = summary.Rating
	p.NumReviews = summary.NumReviews
	p.Version++
	p.UpdatedAt = rv.CreatedAt
	return nil
}

func (r *ReviewRepository) ListByProduct(_ context.Context, productID string, page pagination.Params) ([]domain.Review, int, error) {
	r.s.mu.RLock()
	reviews := slices.Clone(r.s.reviews[productID])
	r.s.mu.RUnlock()

	slices.Reverse(reviews)
	start, end := page.Window(len(reviews))
	out := reviews[start:end]
	if out == nil {
		out = []domain.Review{}
	}
	return out, len(reviews), nil
}
