package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// catalogMaxAge is the Cache-Control max-age for public catalog reads.
const catalogMaxAge = 30

// RouterConfig holds the transport settings of the router.
type RouterConfig struct {
	ServiceName       string
	CORS              middleware.CORSConfig
	RateLimitRPS      float64
	RateLimitBurst    int
	PprofAllowedCIDRs []string
	TokenValidator    middleware.TokenValidator
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	productService *service.ProductService,
	reviewService *service.ReviewService,
	orderService *service.OrderService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health checks and metrics bypass rate limiting and auth.
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	productHandler := NewProductHandler(productService, logger)
	reviewHandler := NewReviewHandler(reviewService, logger)
	orderHandler := NewOrderHandler(orderService, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		r.Use(middleware.CORS(cfg.CORS))
		r.Use(middleware.Authenticate(cfg.TokenValidator))
		r.Use(middleware.RequestLogger(logger))

		// Product API endpoints
		r.Route("/api/v1/products", func(r chi.Router) {
			r.With(middleware.CacheControl(catalogMaxAge)).Get("/", productHandler.ListProducts)
			r.With(middleware.CacheControl(catalogMaxAge)).Get("/top", productHandler.TopProducts)
			r.With(middleware.CacheControl(catalogMaxAge)).Get("/{id}", productHandler.GetProduct)
			r.Post("/", productHandler.CreateProduct)
			r.Put("/{id}", productHandler.UpdateProduct)
			r.Delete("/{id}", productHandler.DeleteProduct)

			// Review API endpoints (nested under products)
			r.Get("/{id}/reviews", reviewHandler.ListReviews)
			r.Post("/{id}/reviews", reviewHandler.CreateReview)
		})

		// Order API endpoints
		r.Route("/api/v1/orders", func(r chi.Router) {
			r.Use(middleware.NoStore)

			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/mine", orderHandler.ListMyOrders)
			r.Get("/summary", orderHandler.Summary)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Put("/{id}/pay", orderHandler.PayOrder)
			r.Put("/{id}/deliver", orderHandler.DeliverOrder)
			r.Delete("/{id}", orderHandler.CancelOrder)
		})
	})

	return r
}
