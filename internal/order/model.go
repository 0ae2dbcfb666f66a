package order

import (
	"time"

	"github.com/google/uuid"
)

// ItemState tracks the processing lifecycle of a charge item.
type ItemState string

const (
	// ItemPending marks an item scheduled for a future aggregation run.
	ItemPending ItemState = "pending"
	// ItemProcessed marks an item claimed by an order. Processed items are
	// never mutated again.
	ItemProcessed ItemState = "processed"
)

// PaymentStatus tracks the payment lifecycle of an order. Transitions are
// monotonic: paid is terminal, failed may be retried with a new payment
// attempt.
type PaymentStatus string

const (
	StatusUnpaid PaymentStatus = "unpaid"
	StatusPaid   PaymentStatus = "paid"
	StatusFailed PaymentStatus = "failed"
)

// Owner is the billable entity an item and order belong to. The locale is an
// optional per-owner override for amount formatting.
type Owner struct {
	ID     uuid.UUID
	Locale string
}

// Item represents one billable charge against an owner. Items are created by
// application code scheduling a charge and become due once their process date
// has passed; an aggregation run then claims them into exactly one order.
type Item struct {
	ID          uuid.UUID
	Owner       Owner
	Currency    string
	AmountCents int64
	Description string
	State       ItemState
	ProcessAt   time.Time
	OrderID     *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Due reports whether the item is eligible for processing at the given time.
func (i Item) Due(now time.Time) bool {
	return i.State == ItemPending && !i.ProcessAt.After(now)
}

// Order aggregates one or more items sharing the same owner and currency.
// Orders are append-only ledger entries: they are never destroyed and their
// total is fixed at creation time.
type Order struct {
	ID          uuid.UUID
	Number      string
	Owner       Owner
	Currency    string
	TotalCents  int64
	Status      PaymentStatus
	PaymentID   string
	Items       []Item
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalOf sums the amounts of the provided items.
func TotalOf(items []Item) int64 {
	var total int64
	for _, it := range items {
		total += it.AmountCents
	}
	return total
}
