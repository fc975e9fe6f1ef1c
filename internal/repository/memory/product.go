package memory

import (
	"context"
	"slices"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// ProductRepository implements repository.ProductRepository in memory.
type ProductRepository struct {
	s *Store
}

// NewProductRepository creates a product repository backed by s.
func NewProductRepository(s *Store) *ProductRepository {
	return &ProductRepository{s: s}
}

func (r *ProductRepository) Create(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[p.ID]; ok {
		return apperrors.AlreadyExists("product", "id", p.ID)
	}
	cp := copyProduct(p)
	r.s.products[p.ID] = &cp
	return nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	cp := copyProduct(p)
	return &cp, nil
}

func (r *ProductRepository) GetWithReviews(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	cp := copyProduct(p)
	cp.Reviews = slices.Clone(r.s.reviews[id])
	slices.Reverse(cp.Reviews)
	if cp.Reviews == nil {
		cp.Reviews = []domain.Review{}
	}
	return &cp, nil
}

func (r *ProductRepository) List(_ context.Context, q catalog.Query) ([]domain.Product, int, error) {
	r.s.mu.RLock()
	all := make([]domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		all = append(all, copyProduct(p))
	}
	r.s.mu.RUnlock()

	page, total := catalog.Apply(all, q)
	return page, total, nil
}

func (r *ProductRepository) Update(_ context.Context, p *domain.Product, setStock bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.products[p.ID]
	if !ok {
		return apperrors.NotFound("product", p.ID)
	}
	cur.Name = p.Name
	cur.Brand = p.Brand
	cur.Category = p.Category
	cur.Description = p.Description
	cur.Image = p.Image
	cur.Price = p.Price
	if setStock {
		cur.CountInStock = p.CountInStock
	}
	cur.UpdatedAt = p.UpdatedAt
	p.CountInStock = cur.CountInStock
	return nil
}

func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	for _, o := range r.s.orders {
		for _, l := range o.Lines {
			if l.ProductID == id {
				return domain.ErrProductReferenced.WithMessage("product %s is referenced by order %s", id, o.ID)
			}
		}
	}
	delete(r.s.products, id)
	delete(r.s.reviews, id)
	return nil
}
