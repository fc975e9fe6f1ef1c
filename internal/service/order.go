package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// OrderService implements the order lifecycle.
type OrderService struct {
	orders         repository.OrderRepository
	products       repository.ProductRepository
	cache          ProductCache
	producer       *event.Producer
	gate           *authz.Gate
	decrementStock bool
	policy         RetryPolicy
	logger         *slog.Logger
	now            func() time.Time
}

// OrderServiceConfig holds the order behaviour switches.
type OrderServiceConfig struct {
	// DecrementStock takes stock at order creation and returns it on cancel.
	DecrementStock bool
	// RetryPolicy reruns stock-touching writes that lost to a deadlock or a
	// serialization failure. A zero MaxAttempts selects DefaultRetryPolicy.
	RetryPolicy RetryPolicy
}

// NewOrderService creates a new order service. cache may be nil.
func NewOrderService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	cache ProductCache,
	producer *event.Producer,
	gate *authz.Gate,
	cfg OrderServiceConfig,
	logger *slog.Logger,
) *OrderService {
	policy := cfg.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	return &OrderService{
		orders:         orders,
		products:       products,
		cache:          cache,
		producer:       producer,
		gate:           gate,
		decrementStock: cfg.DecrementStock,
		policy:         policy,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// OrderLineInput is one requested cart line.
type OrderLineInput struct {
	ProductID string
	Qty       int
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	Lines           []OrderLineInput
	ShippingAddress domain.Address
	PaymentMethod   string
}

// Create prices the cart from current catalog prices and stores the order
// for p. Line name, image and price are snapshotted.
func (s *OrderService) Create(ctx context.Context, p authz.Principal, input *CreateOrderInput) (*domain.Order, error) {
	if err := s.gate.Require(p, authz.OrderCreate); err != nil {
		return nil, err
	}
	if len(input.Lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		return nil, apperrors.InvalidInput("payment method is required")
	}

	lines := make([]domain.OrderLine, len(input.Lines))
	for i, in := range input.Lines {
		if in.Qty < 1 {
			return nil, domain.ErrInvalidQuantity.WithMessage("line %d: quantity must be at least 1, got %d", i, in.Qty)
		}
		product, err := s.products.GetByID(ctx, in.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product for order line %d: %w", i, err)
		}
		lines[i] = domain.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			Price:     product.Price,
			Qty:       in.Qty,
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:               uuid.New().String(),
		UserID:           p.UserID,
		Lines:            lines,
		ShippingAddress:  input.ShippingAddress,
		PaymentMethod:    strings.TrimSpace(input.PaymentMethod),
		StockDecremented: s.decrementStock,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	breakdown, err := pricing.Compute(order.PricingLines())
	if err != nil {
		return nil, fmt.Errorf("price order: %w", err)
	}
	order.ApplyBreakdown(breakdown)

	err = retry(ctx, s.policy, s.logger, "create order", isContention, func() error {
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return nil, domain.ErrConcurrentWrite.WithMessage("stock for this order is being updated concurrently, try again")
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	ordersCreatedTotal.Inc()
	if order.StockDecremented {
		invalidate(ctx, s.cache, s.logger, productIDs(order)...)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("total_price", pricing.Format(order.TotalPrice)),
	)
	return order, nil
}

// Get returns an order to its owner or an admin.
func (s *OrderService) Get(ctx context.Context, p authz.Principal, id string) (*domain.Order, error) {
	if err := s.gate.Require(p, authz.OrderGet); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := s.gate.Authorize(p, authz.OrderGet, order.UserID); err != nil {
		return nil, err
	}

	if err := VerifyPricing(order); err != nil {
		s.logger.ErrorContext(ctx, "stored order prices do not match recomputation",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	return order, nil
}

// ListMine returns p's orders, newest first.
func (s *OrderService) ListMine(ctx context.Context, p authz.Principal, page pagination.Params) (*pagination.Result[domain.Order], error) {
	if err := s.gate.Require(p, authz.OrderListMine); err != nil {
		return nil, err
	}
	userID := p.UserID
	return s.list(ctx, repository.OrderFilter{UserID: &userID, Page: page})
}

// ListAll returns every order, newest first.
func (s *OrderService) ListAll(ctx context.Context, p authz.Principal, page pagination.Params) (*pagination.Result[domain.Order], error) {
	if err := s.gate.Require(p, authz.OrderListAll); err != nil {
		return nil, err
	}
	return s.list(ctx, repository.OrderFilter{Page: page})
}

func (s *OrderService) list(ctx context.Context, filter repository.OrderFilter) (*pagination.Result[domain.Order], error) {
	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	result := pagination.NewResult(orders, total, filter.Page)
	return &result, nil
}

// Summary returns the admin dashboard totals.
func (s *OrderService) Summary(ctx context.Context, p authz.Principal) (*domain.OrderSummary, error) {
	if err := s.gate.Require(p, authz.OrderSummary); err != nil {
		return nil, err
	}
	summary, err := s.orders.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("order summary: %w", err)
	}
	return &summary, nil
}

// MarkPaid records payment for the owner's order. The stored paid time is
// never overwritten.
func (s *OrderService) MarkPaid(ctx context.Context, p authz.Principal, id string, result json.RawMessage) (*domain.Order, error) {
	order, err := s.loadForTransition(ctx, p, authz.OrderPay, id, domain.OrderStatusPaid)
	if err != nil {
		return nil, err
	}

	paidAt := s.now()
	if err := s.orders.MarkPaid(ctx, id, paidAt, result); err != nil {
		return nil, s.transitionFailed(ctx, id, domain.OrderStatusPaid, err)
	}
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.PaymentResult = result
	order.UpdatedAt = paidAt

	s.afterTransition(ctx, order, domain.OrderStatusPaid)
	return order, nil
}

// MarkDelivered records delivery of a paid order.
func (s *OrderService) MarkDelivered(ctx context.Context, p authz.Principal, id string) (*domain.Order, error) {
	order, err := s.loadForTransition(ctx, p, authz.OrderDeliver, id, domain.OrderStatusDelivered)
	if err != nil {
		return nil, err
	}

	deliveredAt := s.now()
	if err := s.orders.MarkDelivered(ctx, id, deliveredAt); err != nil {
		return nil, s.transitionFailed(ctx, id, domain.OrderStatusDelivered, err)
	}
	order.IsDelivered = true
	order.DeliveredAt = &deliveredAt
	order.UpdatedAt = deliveredAt

	s.afterTransition(ctx, order, domain.OrderStatusDelivered)
	return order, nil
}

// Cancel removes the owner's unpaid order and returns any stock it took.
func (s *OrderService) Cancel(ctx context.Context, p authz.Principal, id string) error {
	order, err := s.loadForTransition(ctx, p, authz.OrderCancel, id, domain.OrderStatusCancelled)
	if err != nil {
		return err
	}

	err = retry(ctx, s.policy, s.logger, "cancel order", isContention, func() error {
		return s.orders.DeleteUnpaid(ctx, id)
	})
	if err != nil {
		if errors.Is(err, errRetriesExhausted) {
			return domain.ErrConcurrentWrite.WithMessage("order %s is being cancelled concurrently, try again", id)
		}
		return s.transitionFailed(ctx, id, domain.OrderStatusCancelled, err)
	}
	if order.StockDecremented {
		invalidate(ctx, s.cache, s.logger, productIDs(order)...)
	}

	s.afterTransition(ctx, order, domain.OrderStatusCancelled)
	return nil
}

// loadForTransition runs the gate, loads the order and checks the state graph.
func (s *OrderService) loadForTransition(ctx context.Context, p authz.Principal, op authz.Operation, id, target string) (*domain.Order, error) {
	if err := s.gate.Require(p, op); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := s.gate.Authorize(p, op, order.UserID); err != nil {
		return nil, err
	}
	if err := order.CheckTransition(target); err != nil {
		return nil, err
	}
	return order, nil
}

func isContention(err error) bool {
	if errors.Is(err, repository.ErrContention) {
		orderContentionTotal.Inc()
		return true
	}
	return false
}

// transitionFailed turns a lost conditional update into the lifecycle error
// for the order's current state.
func (s *OrderService) transitionFailed(ctx context.Context, id, target string, err error) error {
	if !errors.Is(err, repository.ErrStateChanged) {
		return fmt.Errorf("move order to %s: %w", target, err)
	}

	current, getErr := s.orders.GetByID(ctx, id)
	if getErr != nil {
		return fmt.Errorf("reload order: %w", getErr)
	}
	if err := current.CheckTransition(target); err != nil {
		return err
	}
	return domain.ErrInvalidTransition.WithMessage("order %s changed concurrently", id)
}

func (s *OrderService) afterTransition(ctx context.Context, order *domain.Order, status string) {
	orderTransitionsTotal.WithLabelValues(status).Inc()

	if err := s.producer.PublishOrderStatus(ctx, order, status); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order status event",
			slog.String("order_id", order.ID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", order.ID),
		slog.String("status", status),
	)
}

// VerifyPricing re-derives the breakdown from the stored lines and compares
// it with the stored amounts.
func VerifyPricing(o *domain.Order) error {
	return pricing.Verify(o.PricingLines(), o.Breakdown())
}

func productIDs(o *domain.Order) []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
