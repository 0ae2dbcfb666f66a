package billing

import "github.com/noah-isme/backend-billing/internal/obs"

// Metric collectors are registered at boot; the helpers tolerate a bare
// process (tests) where registration never happened.

func countOrderCreated(currency string, items int) {
	if obs.OrdersCreatedTotal != nil {
		obs.OrdersCreatedTotal.WithLabelValues(currency).Inc()
	}
	if obs.ItemsAggregatedTotal != nil {
		obs.ItemsAggregatedTotal.Add(float64(items))
	}
}

func countAggregationRun(result string) {
	if obs.AggregationRunsTotal != nil {
		obs.AggregationRunsTotal.WithLabelValues(result).Inc()
	}
}

func countWebhook(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(result).Inc()
	}
}

func countGateway(operation, result string) {
	if obs.GatewayRequestsTotal != nil {
		obs.GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
	}
}
