package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts orders assembled from pending items.
	OrdersCreatedTotal *prometheus.CounterVec
	// ItemsAggregatedTotal counts items claimed into orders.
	ItemsAggregatedTotal prometheus.Counter
	// AggregationRunsTotal counts aggregation sweeps by outcome.
	AggregationRunsTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// GatewayRequestsTotal counts payment gateway calls by operation and outcome.
	GatewayRequestsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers billing Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of orders created per currency.",
		}, []string{"currency"})
		ItemsAggregatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_aggregated_total",
			Help:      "Count of pending items claimed into orders.",
		})
		AggregationRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_runs_total",
			Help:      "Count of aggregation sweeps by result.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"result"})
		GatewayRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Count of payment gateway requests by operation and outcome.",
		}, []string{"operation", "result"})

		registerCollector(reg, OrdersCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCreatedTotal = v
			}
		})
		registerCollector(reg, ItemsAggregatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				ItemsAggregatedTotal = v
			}
		})
		registerCollector(reg, AggregationRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AggregationRunsTotal = v
			}
		})
		registerCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		registerCollector(reg, GatewayRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayRequestsTotal = v
			}
		})
	})
}
