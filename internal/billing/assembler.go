package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/order"
	"github.com/noah-isme/backend-billing/internal/payment"
)

// Assembler turns a same-owner same-currency group of due items into a
// persisted order and submits it to the payment gateway.
type Assembler struct {
	Store      order.Store
	Gateway    payment.Gateway
	Registry   *currency.Registry
	Events     *events.Bus
	Numbers    order.NumberGenerator
	WebhookURL string
	Log        zerolog.Logger
}

// CreateFromItems persists an order covering the given items and claims each
// of them. The group must be non-empty and homogeneous in owner and currency;
// the aggregator's partitioning guarantees that, so a violation here is a
// programming error.
func (a *Assembler) CreateFromItems(ctx context.Context, items []order.Item) (order.Order, error) {
	if len(items) == 0 {
		return order.Order{}, common.InvariantError("cannot assemble an order from zero items")
	}
	owner := items[0].Owner.ID
	code := items[0].Currency
	for _, it := range items[1:] {
		if it.Owner.ID != owner || it.Currency != code {
			return order.Order{}, common.InvariantError("items span multiple owners or currencies")
		}
	}

	ord, err := a.Store.CreateFromItems(ctx, a.Numbers.Format, items)
	if err != nil {
		return order.Order{}, fmt.Errorf("billing: create order: %w", err)
	}
	countOrderCreated(ord.Currency, len(items))

	if a.Events != nil {
		payload := map[string]any{
			"orderId":      ord.ID,
			"number":       ord.Number,
			"ownerId":      ord.Owner.ID,
			"currency":     ord.Currency,
			"totalCents":   ord.TotalCents,
			"displayTotal": a.displayTotal(ord),
			"items":        len(items),
		}
		if _, emitErr := a.Events.Emit(ctx, events.TopicOrderCreated, ord.ID, payload); emitErr != nil {
			a.Log.Error().Err(emitErr).Str("order_id", ord.ID.String()).Msg("emit order created event")
		}
	}

	a.Log.Info().
		Str("order_id", ord.ID.String()).
		Str("number", ord.Number).
		Str("owner_id", ord.Owner.ID.String()).
		Str("currency", ord.Currency).
		Int64("total_cents", ord.TotalCents).
		Int("items", len(items)).
		Msg("order created")
	return ord, nil
}

// ProcessPayment opens a gateway payment for the order's total and records
// the returned payment identifier. On gateway failure the order keeps no
// payment identifier and the error is propagated; a later aggregation run
// retries the submission.
func (a *Assembler) ProcessPayment(ctx context.Context, ord order.Order) (order.Order, error) {
	req := payment.CreateRequest{
		AmountCents: ord.TotalCents,
		Currency:    ord.Currency,
		Description: "Order " + ord.Number,
		WebhookURL:  a.WebhookURL,
		Metadata: map[string]string{
			"order_id": ord.ID.String(),
			"owner_id": ord.Owner.ID.String(),
		},
	}
	p, err := a.Gateway.Create(ctx, req)
	if err != nil {
		countGateway("create", "error")
		return ord, fmt.Errorf("billing: submit order %s: %w", ord.Number, err)
	}
	countGateway("create", "ok")

	if err := a.Store.SetPaymentID(ctx, ord.ID, p.ID); err != nil {
		return ord, fmt.Errorf("billing: record payment id for order %s: %w", ord.Number, err)
	}
	ord.PaymentID = p.ID
	a.Log.Info().
		Str("order_id", ord.ID.String()).
		Str("payment_id", p.ID).
		Msg("payment submitted")
	return ord, nil
}

func (a *Assembler) displayTotal(ord order.Order) string {
	if a.Registry == nil {
		return ""
	}
	return a.Registry.FormatAmountIn(ord.TotalCents, ord.Owner.Locale)
}
