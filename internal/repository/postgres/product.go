package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const productColumns = `id, owner_id, name, brand, category, description, image, price,
	count_in_stock, rating, num_reviews, version, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row pgx.Row, p *domain.Product, extra ...any) error {
	dest := []any{
		&p.ID, &p.OwnerID, &p.Name, &p.Brand, &p.Category, &p.Description, &p.Image,
		&p.Price, &p.CountInStock, &p.Rating, &p.NumReviews, &p.Version,
		&p.CreatedAt, &p.UpdatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "CreateProduct", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.OwnerID, p.Name, p.Brand, p.Category, p.Description, p.Image,
		p.Price, p.CountInStock, p.Rating, p.NumReviews, p.Version,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "id", p.ID)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product without its reviews.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	var p domain.Product
	if err = scanProduct(r.pool.QueryRow(ctx, query, id), &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

// GetWithReviews retrieves a product and all of its reviews, newest first.
func (r *ProductRepository) GetWithReviews(ctx context.Context, id string) (*domain.Product, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC, id`, id)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	p.Reviews = make([]domain.Review, 0, p.NumReviews)
	for rows.Next() {
		var rv domain.Review
		if err := scanReview(rows, &rv); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		p.Reviews = append(p.Reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}
	return p, nil
}

// List returns one page of products matching q with the total count.
func (r *ProductRepository) List(ctx context.Context, q catalog.Query) (_ []domain.Product, _ int, err error) {
	var (
		where string
		args  []any
	)
	if q.Keyword != "" {
		where = `WHERE name ILIKE $1 ESCAPE '\'`
		args = append(args, catalog.LikePattern(q.Keyword))
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		productColumns, where, catalog.OrderBy(q.Sort), len(args)+1, len(args)+2,
	)
	args = append(args, q.Page.PerPage, q.Page.Offset)

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var total int
	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err = scanProduct(rows, &p, &total); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	// An out-of-range page returns no rows and therefore no window count.
	if len(products) == 0 && q.Page.Offset > 0 {
		total, err = r.count(ctx, where, args[:len(args)-2])
		if err != nil {
			return nil, 0, err
		}
	}
	return products, total, nil
}

func (r *ProductRepository) count(ctx context.Context, where string, args []any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}

// Update overwrites the editable fields of a product. Stock is only written
// when setStock is set, so a concurrent order decrement is never undone; p
// is refreshed with the stored stock either way.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product, setStock bool) (err error) {
	query := `
		UPDATE products
		SET name = $1, brand = $2, category = $3, description = $4, image = $5, price = $6,
			count_in_stock = CASE WHEN $7::boolean THEN $8 ELSE count_in_stock END,
			updated_at = $9
		WHERE id = $10
		RETURNING count_in_stock`

	ctx, end := database.TraceQuery(ctx, "UpdateProduct", query)
	defer func() { end(err) }()

	err = r.pool.QueryRow(ctx, query,
		p.Name, p.Brand, p.Category, p.Description, p.Image, p.Price,
		setStock, p.CountInStock, p.UpdatedAt, p.ID,
	).Scan(&p.CountInStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("product", p.ID)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Delete removes a product. Reviews cascade; order lines restrict.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteProduct", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return domain.ErrProductReferenced.WithMessage("product %s is referenced by existing orders", id)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}
