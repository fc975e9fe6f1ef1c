package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const orderColumns = `id, user_id, shipping_address, payment_method, items_price, shipping_price,
	tax_price, total_price, is_paid, paid_at, payment_result, is_delivered, delivered_at,
	stock_decremented, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func scanOrder(row pgx.Row, o *domain.Order, extra ...any) error {
	var addressJSON, resultJSON []byte
	dest := []any{
		&o.ID, &o.UserID, &addressJSON, &o.PaymentMethod,
		&o.ItemsPrice, &o.ShippingPrice, &o.TaxPrice, &o.TotalPrice,
		&o.IsPaid, &o.PaidAt, &resultJSON, &o.IsDelivered, &o.DeliveredAt,
		&o.StockDecremented, &o.CreatedAt, &o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &o.ShippingAddress); err != nil {
			return fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	if len(resultJSON) > 0 && string(resultJSON) != "null" {
		o.PaymentResult = json.RawMessage(resultJSON)
	}
	return nil
}

// Create decrements stock when requested and inserts the order and its lines
// in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateOrder", "INSERT INTO orders ...")
	defer func() { end(err) }()

	addressJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if o.StockDecremented {
			for _, d := range stockDeltas(o.Lines) {
				tag, err := tx.Exec(ctx, `
					UPDATE products
					SET count_in_stock = count_in_stock - $1, updated_at = $2
					WHERE id = $3 AND count_in_stock >= $1`,
					d.qty, o.CreatedAt, d.productID,
				)
				if err != nil {
					return fmt.Errorf("decrement stock: %w", err)
				}
				if tag.RowsAffected() == 0 {
					return domain.ErrOutOfStock.WithMessage("product %s does not have %d items in stock", d.productID, d.qty)
				}
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			o.ID, o.UserID, addressJSON, o.PaymentMethod,
			o.ItemsPrice, o.ShippingPrice, o.TaxPrice, o.TotalPrice,
			o.IsPaid, o.PaidAt, nullableJSON(o.PaymentResult), o.IsDelivered, o.DeliveredAt,
			o.StockDecremented, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, l := range o.Lines {
			_, err = tx.Exec(ctx, `
				INSERT INTO order_lines (order_id, line_no, product_id, name, image, price, qty)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				o.ID, i, l.ProductID, l.Name, l.Image, l.Price, l.Qty,
			)
			if err != nil {
				if database.IsForeignKeyViolation(err) {
					return apperrors.NotFound("product", l.ProductID)
				}
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
	return contention(err)
}

// GetByID retrieves an order and its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	defer func() { end(err) }()

	var o domain.Order
	if err = scanOrder(r.pool.QueryRow(ctx, query, id), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	lines, err := r.loadLines(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	if o.Lines == nil {
		o.Lines = []domain.OrderLine{}
	}
	return &o, nil
}

// List returns orders matching the filter, newest first, with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) (_ []domain.Order, _ int, err error) {
	var (
		where string
		args  []any
	)
	if filter.UserID != nil {
		where = "WHERE user_id = $1"
		args = append(args, *filter.UserID)
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Page.PerPage, filter.Page.Offset)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var total int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err = scanOrder(rows, &o, &total); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	if len(orders) == 0 {
		return orders, total, nil
	}

	// Batch-load lines for all orders in a single query.
	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []domain.OrderLine{}
		}
	}
	return orders, total, nil
}

func (r *OrderRepository) loadLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, name, image, price, qty
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			l       domain.OrderLine
		)
		if err := rows.Scan(&orderID, &l.ProductID, &l.Name, &l.Image, &l.Price, &l.Qty); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out[orderID] = append(out[orderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return out, nil
}

// MarkPaid sets the paid fields iff the order is unpaid.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time, result json.RawMessage) (err error) {
	query := `
		UPDATE orders
		SET is_paid = TRUE, paid_at = $1, payment_result = $2, updated_at = $1
		WHERE id = $3 AND is_paid = FALSE`

	ctx, end := database.TraceQuery(ctx, "MarkOrderPaid", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, paidAt, nullableJSON(result), id)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStateChanged
	}
	return nil
}

// MarkDelivered sets the delivered fields iff the order is paid and undelivered.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) (err error) {
	query := `
		UPDATE orders
		SET is_delivered = TRUE, delivered_at = $1, updated_at = $1
		WHERE id = $2 AND is_paid = TRUE AND is_delivered = FALSE`

	ctx, end := database.TraceQuery(ctx, "MarkOrderDelivered", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, deliveredAt, id)
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrStateChanged
	}
	return nil
}

// DeleteUnpaid removes an unpaid order and, if it took stock, gives it back
// in the same transaction.
func (r *OrderRepository) DeleteUnpaid(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, "DeleteUnpaidOrder", "DELETE FROM orders ...")
	defer func() { end(err) }()

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT product_id, qty FROM order_lines WHERE order_id = $1 ORDER BY line_no`, id)
		if err != nil {
			return fmt.Errorf("load order lines: %w", err)
		}
		var lines []domain.OrderLine
		for rows.Next() {
			var l domain.OrderLine
			if err := rows.Scan(&l.ProductID, &l.Qty); err != nil {
				rows.Close()
				return fmt.Errorf("scan order line: %w", err)
			}
			lines = append(lines, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate order lines: %w", err)
		}

		var decremented bool
		err = tx.QueryRow(ctx, `
			DELETE FROM orders
			WHERE id = $1 AND is_paid = FALSE
			RETURNING stock_decremented`, id).Scan(&decremented)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrStateChanged
			}
			return fmt.Errorf("delete order: %w", err)
		}

		if !decremented {
			return nil
		}
		now := time.Now().UTC()
		for _, d := range stockDeltas(lines) {
			if _, err := tx.Exec(ctx, `
				UPDATE products
				SET count_in_stock = count_in_stock + $1, updated_at = $2
				WHERE id = $3`,
				d.qty, now, d.productID,
			); err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}
		return nil
	})
	return contention(err)
}

// Summary returns the admin dashboard totals.
func (r *OrderRepository) Summary(ctx context.Context) (_ domain.OrderSummary, err error) {
	query := `
		SELECT count(*),
			count(*) FILTER (WHERE is_paid),
			COALESCE(SUM(total_price) FILTER (WHERE is_paid), 0),
			count(*) FILTER (WHERE is_delivered)
		FROM orders`

	ctx, end := database.TraceQuery(ctx, "OrderSummary", query)
	defer func() { end(err) }()

	var s domain.OrderSummary
	if err = r.pool.QueryRow(ctx, query).Scan(&s.OrderCount, &s.PaidCount, &s.PaidRevenue, &s.Delivered); err != nil {
		return domain.OrderSummary{}, fmt.Errorf("order summary: %w", err)
	}
	return s, nil
}

type stockDelta struct {
	productID string
	qty       int
}

// stockDeltas merges lines per product and sorts them by product id. Every
// transaction touching stock locks product rows in this order, so two orders
// over the same products cannot deadlock on each other.
func stockDeltas(lines []domain.OrderLine) []stockDelta {
	byProduct := make(map[string]int, len(lines))
	for _, l := range lines {
		byProduct[l.ProductID] += l.Qty
	}
	out := make([]stockDelta, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, stockDelta{productID: id, qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

// contention marks deadlocks and serialization failures as retryable.
func contention(err error) error {
	if err != nil && database.IsTransientConflict(err) {
		return fmt.Errorf("%w: %w", repository.ErrContention, err)
	}
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
