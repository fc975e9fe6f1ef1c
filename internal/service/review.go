package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/pagination"
)

// AddReviewInput holds the parameters for adding a review.
type AddReviewInput struct {
	ProductID string
	Rating    int
	Comment   string
}

// AddReviewResult is the review and the product aggregate after it.
type AddReviewResult struct {
	Review     *domain.Review `json:"review"`
	Rating     float64        `json:"rating"`
	NumReviews int            `json:"num_reviews"`
}

// ReviewService implements the business logic for review operations.
type ReviewService struct {
	products repository.ProductRepository
	reviews  repository.ReviewRepository
	cache    ProductCache
	producer *event.Producer
	gate     *authz.Gate
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewReviewService creates a new review service. cache may be nil.
func NewReviewService(
	products repository.ProductRepository,
	reviews repository.ReviewRepository,
	cache ProductCache,
	producer *event.Producer,
	gate *authz.Gate,
	policy RetryPolicy,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		products: products,
		reviews:  reviews,
		cache:    cache,
		producer: producer,
		gate:     gate,
		policy:   policy,
		logger:   logger,
	}
}

func isVersionConflict(err error) bool {
	if errors.Is(err, domain.ErrVersionConflict) {
		reviewConflictsTotal.Inc()
		return true
	}
	return false
}

// AddReview appends a review from p and recomputes the product's rating and
// review count. Concurrent appends on the same product serialize through a
// version check on the product; the loser re-reads and retries.
func (s *ReviewService) AddReview(ctx context.Context, p authz.Principal, input *AddReviewInput) (*AddReviewResult, error) {
	if err := s.gate.Require(p, authz.ReviewAdd); err != nil {
		return nil, err
	}

	review := &domain.Review{
		ID:        uuid.New().String(),
		ProductID: input.ProductID,
		UserID:    p.UserID,
		Name:      p.DisplayName(),
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	if err := review.Validate(); err != nil {
		return nil, err
	}

	var summary domain.ReviewSummary
	err := retry(ctx, s.policy, s.logger, "add review", isVersionConflict, func() error {
		product, err := s.products.GetWithReviews(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.HasReviewFrom(p.UserID) {
			return domain.ErrDuplicateReview
		}

		review.CreatedAt = time.Now().UTC()
		summary = domain.Summarize(append(product.Reviews, *review))
		return s.reviews.AppendReview(ctx, review, product.Version, summary)
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return nil, domain.ErrConcurrentWrite.WithMessage("product %s is being reviewed concurrently, try again", input.ProductID)
		}
		return nil, fmt.Errorf("add review: %w", err)
	}

	reviewsAddedTotal.Inc()
	invalidate(ctx, s.cache, s.logger, input.ProductID)

	if err := s.producer.PublishReviewAdded(ctx, review, summary); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.added event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review created",
		slog.String("review_id", review.ID),
		slog.String("product_id", review.ProductID),
		slog.String("user_id", review.UserID),
		slog.Int("rating", review.Rating),
	)

	return &AddReviewResult{
		Review:     review,
		Rating:     summary.Rating,
		NumReviews: summary.NumReviews,
	}, nil
}

// ListReviews returns one page of a product's reviews, newest first.
func (s *ReviewService) ListReviews(ctx context.Context, p authz.Principal, productID string, page pagination.Params) (*pagination.Result[domain.Review], error) {
	if err := s.gate.Require(p, authz.ReviewList); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, fmt.Errorf("get product for reviews: %w", err)
	}

	reviews, total, err := s.reviews.ListByProduct(ctx, productID, page)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	result := pagination.NewResult(reviews, total, page)
	return &result, nil
}
