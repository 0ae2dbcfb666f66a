package events

// Topic constants for domain events emitted by the billing engine.
const (
	TopicOrderCreated  = "billing.order.created"
	TopicPaymentPaid   = "billing.payment.paid"
	TopicPaymentFailed = "billing.payment.failed"
)

// DefaultTopics returns the canonical list of topics external subscribers
// can attach to.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicPaymentPaid,
		TopicPaymentFailed,
	}
}
