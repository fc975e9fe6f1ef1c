package service

import (
	"context"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
)

// ProductCache is the read cache the services consult for product views.
// A nil ProductCache disables caching.
type ProductCache interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, bool, error)
	SetProduct(ctx context.Context, p *domain.Product) error
	GetTop(ctx context.Context, limit int) ([]domain.Product, bool, error)
	SetTop(ctx context.Context, limit int, ps []domain.Product) error
	Invalidate(ctx context.Context, ids ...string) error
}

// invalidate drops cached views of ids. Cache failures only log.
func invalidate(ctx context.Context, cache ProductCache, logger *slog.Logger, ids ...string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, ids...); err != nil {
		logger.WarnContext(ctx, "failed to invalidate product cache",
			slog.Any("product_ids", ids),
			slog.String("error", err.Error()),
		)
	}
}
