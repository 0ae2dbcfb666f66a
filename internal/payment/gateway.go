package payment

import (
	"context"
	"time"
)

// Status is the observable state of a gateway payment resource. The gateway
// owns the state machine; this service only reacts to the states surfaced
// through webhooks and lookups.
type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Payment is the gateway-owned payment resource referenced by an order.
type Payment struct {
	ID          string
	Status      Status
	AmountCents int64
	Currency    string
	Description string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// IsPaid reports whether the gateway confirmed the payment.
func (p Payment) IsPaid() bool { return p.Status == StatusPaid }

// IsFailed reports whether the payment terminally failed; expired and
// canceled payments count as failed for reconciliation purposes.
func (p Payment) IsFailed() bool {
	switch p.Status {
	case StatusFailed, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the payment is still awaiting an outcome.
func (p Payment) IsOpen() bool {
	return p.Status == StatusOpen || p.Status == StatusPending
}

// CreateRequest captures the information required to open a payment with the
// gateway.
type CreateRequest struct {
	AmountCents int64
	Currency    string
	Description string
	WebhookURL  string
	Metadata    map[string]string
}

// Gateway abstracts the operations required from the upstream payment
// provider. Create failures must not leave a payment identifier behind: the
// caller only records the identifier from a successful response.
type Gateway interface {
	Create(ctx context.Context, req CreateRequest) (Payment, error)
	Find(ctx context.Context, id string) (Payment, error)
}
