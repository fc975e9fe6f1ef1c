// Package memory provides repository implementations held in process memory.
// All repositories created from one Store share a single lock, so multi-row
// operations such as order creation with stock decrement are atomic.
package memory

import (
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Store is the shared state behind the memory repositories.
type Store struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
	reviews  map[string][]domain.Review // by product id, oldest first
	orders   map[string]*domain.Order
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]*domain.Product),
		reviews:  make(map[string][]domain.Review),
		orders:   make(map[string]*domain.Order),
	}
}

func copyProduct(p *domain.Product) domain.Product {
	cp := *p
	cp.Reviews = nil
	return cp
}

func copyOrder(o *domain.Order) domain.Order {
	cp := *o
	cp.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if cp.Lines == nil {
		cp.Lines = []domain.OrderLine{}
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		cp.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		cp.PaymentResult = append([]byte(nil), o.PaymentResult...)
	}
	return cp
}
