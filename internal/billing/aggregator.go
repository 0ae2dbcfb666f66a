package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/order"
)

// Aggregator sweeps due items into orders. One sweep produces at most one
// order per distinct (owner, currency) pair and claims every due item into
// exactly one order.
type Aggregator struct {
	Items     order.ItemStore
	Orders    order.Store
	Assembler *Assembler
	Now       func() time.Time
	Log       zerolog.Logger
}

type groupKey struct {
	owner    uuid.UUID
	currency string
}

// Run fetches the items due at the current time, partitions them by owner
// and currency and assembles one order per group. Groups keep the fetch
// order of their items. A sweep with nothing due returns an empty slice and
// nil error. Per-group failures are joined and returned alongside the orders
// that did get created.
func (ag *Aggregator) Run(ctx context.Context) ([]order.Order, error) {
	items, err := ag.Items.ListDue(ctx, ag.now())
	if err != nil {
		countAggregationRun("error")
		return nil, fmt.Errorf("billing: list due items: %w", err)
	}
	keys, groups := partition(items)

	var (
		orders []order.Order
		errs   error
	)
	for _, key := range keys {
		ord, err := ag.Assembler.CreateFromItems(ctx, groups[key])
		if errors.Is(err, order.ErrItemsClaimed) {
			// a concurrent sweep won the claim; nothing to bill here
			ag.Log.Warn().
				Str("owner_id", key.owner.String()).
				Str("currency", key.currency).
				Msg("items claimed by concurrent aggregation run")
			continue
		}
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		ord, payErr := ag.Assembler.ProcessPayment(ctx, ord)
		if payErr != nil {
			errs = errors.Join(errs, payErr)
		}
		orders = append(orders, ord)
	}

	errs = errors.Join(errs, ag.retrySubmissions(ctx))

	switch {
	case errs != nil:
		countAggregationRun("partial")
	case len(orders) == 0:
		countAggregationRun("empty")
	default:
		countAggregationRun("ok")
	}
	return orders, errs
}

// retrySubmissions resubmits unpaid orders whose earlier gateway call failed
// and left them without a payment identifier.
func (ag *Aggregator) retrySubmissions(ctx context.Context) error {
	if ag.Orders == nil {
		return nil
	}
	stale, err := ag.Orders.ListPaymentRetryable(ctx)
	if err != nil {
		return fmt.Errorf("billing: list retryable orders: %w", err)
	}
	var errs error
	for _, ord := range stale {
		if _, err := ag.Assembler.ProcessPayment(ctx, ord); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (ag *Aggregator) now() time.Time {
	if ag.Now != nil {
		return ag.Now()
	}
	return time.Now()
}

func partition(items []order.Item) ([]groupKey, map[groupKey][]order.Item) {
	keys := make([]groupKey, 0)
	groups := make(map[groupKey][]order.Item)
	for _, it := range items {
		key := groupKey{owner: it.Owner.ID, currency: it.Currency}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], it)
	}
	return keys, groups
}
