package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

type published struct {
	topic string
	event *pkgkafka.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, published{topic: topic, event: e})
	return nil
}

func TestProducer_PublishOrderCreated(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewProducer(rec, logger.Discard())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	o := &domain.Order{ID: "o-1", UserID: "u-1", TotalPrice: 126_50, Lines: []domain.OrderLine{{ProductID: "p-1", Price: 60_00, Qty: 1}}}
	require.NoError(t, p.PublishOrderCreated(ctx, o))

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, TopicOrderCreated, got.topic)
	assert.Equal(t, "o-1", got.event.AggregateID)
	assert.Equal(t, AggregateTypeOrder, got.event.AggregateType)
	assert.Equal(t, SourceStorefront, got.event.Source)
	assert.Equal(t, "corr-1", got.event.CorrelationID)

	var data OrderCreatedData
	require.NoError(t, json.Unmarshal(got.event.Data, &data))
	assert.Equal(t, int64(126_50), data.TotalPrice)
	require.Len(t, data.Lines, 1)
}

func TestProducer_PublishOrderStatus(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewProducer(rec, logger.Discard())
	o := &domain.Order{ID: "o-1", UserID: "u-1"}

	require.NoError(t, p.PublishOrderStatus(context.Background(), o, domain.OrderStatusPaid))
	require.NoError(t, p.PublishOrderStatus(context.Background(), o, domain.OrderStatusDelivered))
	require.NoError(t, p.PublishOrderStatus(context.Background(), o, domain.OrderStatusCancelled))
	assert.Error(t, p.PublishOrderStatus(context.Background(), o, "shipped"))

	topics := []string{rec.events[0].topic, rec.events[1].topic, rec.events[2].topic}
	assert.Equal(t, []string{TopicOrderPaid, TopicOrderDelivered, TopicOrderCancelled}, topics)
}

func TestProducer_NilDiscards(t *testing.T) {
	var p *Producer
	assert.NoError(t, p.PublishProductDeleted(context.Background(), "p-1"))
	assert.NoError(t, NewProducer(nil, logger.Discard()).PublishProductDeleted(context.Background(), "p-1"))
}

func TestProducer_WrapsPublishError(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	p := NewProducer(rec, logger.Discard())

	err := p.PublishReviewAdded(context.Background(), &domain.Review{ID: "r-1", ProductID: "p-1"}, domain.ReviewSummary{Rating: 5, NumReviews: 1})
	assert.ErrorContains(t, err, "publish storefront.review.added event")
	assert.ErrorContains(t, err, "broker down")
}

func TestBreakerPublisher_TripsAndRecovers(t *testing.T) {
	rec := &recordingPublisher{err: errors.New("broker down")}
	cfg := BreakerConfig{
		Name:         "test-trip",
		MaxRequests:  1,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
	b := NewBreakerPublisher(rec, cfg, logger.Discard())
	ev, err := pkgkafka.NewEvent(TopicProductCreated, "p-1", AggregateTypeProduct, SourceStorefront, ProductData{ID: "p-1"})
	require.NoError(t, err)

	assert.Error(t, b.Publish(context.Background(), TopicProductCreated, ev))
	assert.Error(t, b.Publish(context.Background(), TopicProductCreated, ev))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err = b.Publish(context.Background(), TopicProductCreated, ev)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	assert.Eventually(t, func() bool {
		return b.Publish(context.Background(), TopicProductCreated, ev) == nil
	}, time.Second, 20*time.Millisecond)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
