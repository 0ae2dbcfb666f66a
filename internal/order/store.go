package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an order cannot be located.
var ErrNotFound = errors.New("order: not found")

// ErrItemsClaimed is returned when another aggregation run already claimed
// one of the items being bound to a new order.
var ErrItemsClaimed = errors.New("order: items already claimed")

// Store is the persistence contract for orders. Implementations must make
// CreateFromItems atomic: the order row, the item claims and the sequence
// read happen in one transaction so overlapping aggregation runs cannot
// double-bill.
type Store interface {
	Counter
	// CreateFromItems persists an order for the given items, marks each item
	// processed and numbers the order via the provided NumberFunc. Items
	// already claimed elsewhere cause ErrItemsClaimed and no state change.
	CreateFromItems(ctx context.Context, number NumberFunc, items []Item) (Order, error)
	// FindByPaymentID returns the order referencing the given external
	// payment identifier, or ErrNotFound.
	FindByPaymentID(ctx context.Context, paymentID string) (Order, error)
	// SetPaymentID stores the external payment identifier on the order.
	SetPaymentID(ctx context.Context, orderID uuid.UUID, paymentID string) error
	// MarkPaid transitions the order to paid if it is not paid yet and
	// reports whether the transition happened. Paid is terminal.
	MarkPaid(ctx context.Context, orderID uuid.UUID) (bool, error)
	// MarkFailed transitions an unpaid order to failed and reports whether
	// the transition happened.
	MarkFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	// Get returns the order with its items, or ErrNotFound.
	Get(ctx context.Context, orderID uuid.UUID) (Order, error)
	// ListByOwner returns the owner's orders, most recent first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Order, error)
	// ListPaymentRetryable returns unpaid orders that have no payment
	// identifier yet, i.e. orders whose gateway submission failed.
	ListPaymentRetryable(ctx context.Context) ([]Order, error)
}

// ItemStore is the persistence contract for charge items.
type ItemStore interface {
	// Schedule persists a new pending item.
	Schedule(ctx context.Context, item Item) (Item, error)
	// ListDue returns the items eligible for processing at the given time:
	// pending state and a process date that has passed.
	ListDue(ctx context.Context, now time.Time) ([]Item, error)
}
