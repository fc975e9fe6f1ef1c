package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ordersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Total number of orders created.",
	})

	orderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_transitions_total",
		Help: "Total number of order lifecycle transitions by target status.",
	}, []string{"status"})

	reviewsAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_reviews_added_total",
		Help: "Total number of reviews added.",
	})

	reviewConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_review_version_conflicts_total",
		Help: "Total number of review appends that lost a version race and were retried.",
	})

	orderContentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_order_stock_contention_total",
		Help: "Total number of order writes aborted by a deadlock or serialization failure.",
	})
)

func init() {
	prometheus.MustRegister(ordersCreatedTotal, orderTransitionsTotal, reviewsAddedTotal, reviewConflictsTotal, orderContentionTotal)
}
