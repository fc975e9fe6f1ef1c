package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/pagination"
)

const (
	reviewColumns        = `id, product_id, user_id, name, rating, comment, created_at`
	reviewUniqueUserName = "reviews_product_user_key"
)

func scanReview(row pgx.Row, rv *domain.Review, extra ...any) error {
	dest := []any{&rv.ID, &rv.ProductID, &rv.UserID, &rv.Name, &rv.Rating, &rv.Comment, &rv.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// AppendReview bumps the product version and aggregate with a conditional
// update and inserts the review in the same transaction.
func (r *ReviewRepository) AppendReview(ctx context.Context, rv *domain.Review, expectedVersion int64, summary domain.ReviewSummary) (err error) {
	ctx, end := database.TraceQuery(ctx, "AppendReview", "UPDATE products ... ; INSERT INTO reviews ...")
	defer func() { end(err) }()

	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET rating = $1, num_reviews = $2, version = version + 1, updated_at = $3
			WHERE id = $4 AND version = $5`,
			summary.Rating, summary.NumReviews, time.Now().UTC(), rv.ProductID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update review aggregate: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionConflict
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO reviews (`+reviewColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rv.ID, rv.ProductID, rv.UserID, rv.Name, rv.Rating, rv.Comment, rv.CreatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err, reviewUniqueUserName) {
				return domain.ErrDuplicateReview
			}
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
}

// ListByProduct returns one page of a product's reviews, newest first.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page pagination.Params) (_ []domain.Review, _ int, err error) {
	query := `
		SELECT ` + reviewColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, productID, page.PerPage, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var total int
	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err = scanReview(rows, &rv, &total); err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, total, nil
}
