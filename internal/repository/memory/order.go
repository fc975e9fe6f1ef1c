package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// OrderRepository implements repository.OrderRepository in memory.
type OrderRepository struct {
	s *Store
}

// NewOrderRepository creates an order repository backed by s.
func NewOrderRepository(s *Store) *OrderRepository {
	return &OrderRepository{s: s}
}

// Create checks every line's stock before applying any decrement, so a
// failing order leaves all stock untouched.
func (r *OrderRepository) Create(_ context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[o.ID]; ok {
		return apperrors.AlreadyExists("order", "id", o.ID)
	}

	need := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		p, ok := r.s.products[l.ProductID]
		if !ok {
			return apperrors.NotFound("product", l.ProductID)
		}
		need[l.ProductID] += l.Qty
		if o.StockDecremented && p.CountInStock < need[l.ProductID] {
			return domain.ErrOutOfStock.WithMessage("product %s does not have %d items in stock", l.ProductID, need[l.ProductID])
		}
	}
	if o.StockDecremented {
		for id, qty := range need {
			p := r.s.products[id]
			p.CountInStock -= qty
			p.UpdatedAt = o.CreatedAt
		}
	}

	cp := copyOrder(o)
	r.s.orders[o.ID] = &cp
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (r *OrderRepository) List(_ context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	r.s.mu.RLock()
	matched := make([]domain.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	start, end := filter.Page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (r *OrderRepository) MarkPaid(_ context.Context, id string, paidAt time.Time, result json.RawMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok || o.IsPaid {
		return repository.ErrStateChanged
	}
	o.IsPaid = true
	o.PaidAt = &paidAt
	o.PaymentResult = append(json.RawMessage(nil), result...)
	o.UpdatedAt = paidAt
	return nil
}

func (r *OrderRepository) MarkDelivered(_ context.Context, id string, deliveredAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok || !o.IsPaid || o.IsDelivered {
		return repository.ErrStateChanged
	}
	o.IsDelivered = true
	o.DeliveredAt = &deliveredAt
	o.UpdatedAt = deliveredAt
	return nil
}

func (r *OrderRepository) DeleteUnpaid(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok || o.IsPaid {
		return repository.ErrStateChanged
	}
	if o.StockDecremented {
		for _, l := range o.Lines {
			if p, ok := r.s.products[l.ProductID]; ok {
				p.CountInStock += l.Qty
			}
		}
	}
	delete(r.s.orders, id)
	return nil
}

func (r *OrderRepository) Summary(_ context.Context) (domain.OrderSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var s domain.OrderSummary
	for _, o := range r.s.orders {
		s.OrderCount++
		if o.IsPaid {
			s.PaidCount++
			s.PaidRevenue += o.TotalPrice
		}
		if o.IsDelivered {
			s.Delivered++
		}
	}
	return s, nil
}
