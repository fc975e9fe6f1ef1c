package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topic constants for storefront domain events.
const (
	TopicProductCreated = "storefront.product.created"
	TopicProductUpdated = "storefront.product.updated"
	TopicProductDeleted = "storefront.product.deleted"
	TopicReviewAdded    = "storefront.review.added"
	TopicOrderCreated   = "storefront.order.created"
	TopicOrderPaid      = "storefront.order.paid"
	TopicOrderDelivered = "storefront.order.delivered"
	TopicOrderCancelled = "storefront.order.cancelled"
)

// Aggregate type constants.
const (
	AggregateTypeProduct = "product"
	AggregateTypeOrder   = "order"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// ProductData is the payload for product lifecycle events.
type ProductData struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	CountInStock int    `json:"count_in_stock"`
}

// ReviewAddedData is the payload for a review.added event.
type ReviewAddedData struct {
	ReviewID   string  `json:"review_id"`
	ProductID  string  `json:"product_id"`
	UserID     string  `json:"user_id"`
	Rating     int     `json:"rating"`
	NewRating  float64 `json:"new_rating"`
	NumReviews int     `json:"num_reviews"`
}

// OrderLineData is the event payload for an order line.
type OrderLineData struct {
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
	Qty       int    `json:"qty"`
}

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Lines      []OrderLineData `json:"lines"`
	TotalPrice int64           `json:"total_price"`
}

// OrderStatusData is the payload for paid, delivered and cancelled events.
type OrderStatusData struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
}

// Producer publishes storefront domain events. A nil Producer, or one
// without a publisher, discards every event.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if p == nil || p.pub == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.pub.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

func productData(pr *domain.Product) ProductData {
	return ProductData{ID: pr.ID, Name: pr.Name, Price: pr.Price, CountInStock: pr.CountInStock}
}

// PublishProductCreated publishes a product.created event.
func (p *Producer) PublishProductCreated(ctx context.Context, pr *domain.Product) error {
	return p.publish(ctx, TopicProductCreated, pr.ID, AggregateTypeProduct, productData(pr))
}

// PublishProductUpdated publishes a product.updated event.
func (p *Producer) PublishProductUpdated(ctx context.Context, pr *domain.Product) error {
	return p.publish(ctx, TopicProductUpdated, pr.ID, AggregateTypeProduct, productData(pr))
}

// PublishProductDeleted publishes a product.deleted event.
func (p *Producer) PublishProductDeleted(ctx context.Context, productID string) error {
	return p.publish(ctx, TopicProductDeleted, productID, AggregateTypeProduct, ProductData{ID: productID})
}

// PublishReviewAdded publishes a review.added event with the new aggregate.
func (p *Producer) PublishReviewAdded(ctx context.Context, r *domain.Review, summary domain.ReviewSummary) error {
	return p.publish(ctx, TopicReviewAdded, r.ProductID, AggregateTypeProduct, ReviewAddedData{
		ReviewID:   r.ID,
		ProductID:  r.ProductID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		NewRating:  summary.Rating,
		NumReviews: summary.NumReviews,
	})
}

// PublishOrderCreated publishes an order.created event.
func (p *Producer) PublishOrderCreated(ctx context.Context, o *domain.Order) error {
	lines := make([]OrderLineData, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = OrderLineData{ProductID: l.ProductID, Price: l.Price, Qty: l.Qty}
	}
	return p.publish(ctx, TopicOrderCreated, o.ID, AggregateTypeOrder, OrderCreatedData{
		ID:         o.ID,
		UserID:     o.UserID,
		Lines:      lines,
		TotalPrice: o.TotalPrice,
	})
}

// PublishOrderStatus publishes the event for a lifecycle move to status.
func (p *Producer) PublishOrderStatus(ctx context.Context, o *domain.Order, status string) error {
	var topic string
	switch status {
	case domain.OrderStatusPaid:
		topic = TopicOrderPaid
	case domain.OrderStatusDelivered:
		topic = TopicOrderDelivered
	case domain.OrderStatusCancelled:
		topic = TopicOrderCancelled
	default:
		return fmt.Errorf("no event topic for order status %q", status)
	}
	return p.publish(ctx, topic, o.ID, AggregateTypeOrder, OrderStatusData{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  status,
	})
}
