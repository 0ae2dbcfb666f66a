package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/order"
	"github.com/noah-isme/backend-billing/internal/payment"
)

// Reconciler applies the gateway's authoritative payment state to the local
// order when a webhook announces a change. Reconciliation is serialized per
// payment id through a Redis lock, and the terminal transitions are guarded
// by conditional updates in the store, so duplicate and concurrent webhooks
// settle an order exactly once.
type Reconciler struct {
	Orders  order.Store
	Gateway payment.Gateway
	Locks   lock.Locker
	Events  *events.Bus
	LockTTL time.Duration
	Log     zerolog.Logger
}

// Reconcile looks up the order referencing the payment id and applies the
// gateway state. Unknown payment ids and already-paid orders are no-ops;
// refunds and chargebacks after a paid state are deliberately ignored.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return common.InvariantError("payment id is required")
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return r.Locks.WithLock(ctx, "billing:reconcile:"+paymentID, ttl, func(ctx context.Context) error {
		return r.reconcile(ctx, paymentID)
	})
}

func (r *Reconciler) reconcile(ctx context.Context, paymentID string) error {
	ord, err := r.Orders.FindByPaymentID(ctx, paymentID)
	if errors.Is(err, order.ErrNotFound) {
		r.Log.Warn().Str("payment_id", paymentID).Msg("webhook for unknown payment id")
		countWebhook("unknown")
		return nil
	}
	if err != nil {
		countWebhook("error")
		return fmt.Errorf("billing: find order for payment %s: %w", paymentID, err)
	}
	if ord.Status == order.StatusPaid {
		countWebhook("duplicate")
		return nil
	}

	p, err := r.Gateway.Find(ctx, paymentID)
	if err != nil {
		countGateway("find", "error")
		countWebhook("error")
		return fmt.Errorf("billing: fetch payment %s: %w", paymentID, err)
	}
	countGateway("find", "ok")

	switch {
	case p.IsPaid():
		return r.settle(ctx, ord, p)
	case p.IsFailed():
		return r.fail(ctx, ord, p)
	default:
		// open or pending: the gateway will call back again
		countWebhook("open")
		return nil
	}
}

func (r *Reconciler) settle(ctx context.Context, ord order.Order, p payment.Payment) error {
	changed, err := r.Orders.MarkPaid(ctx, ord.ID)
	if err != nil {
		countWebhook("error")
		return fmt.Errorf("billing: mark order %s paid: %w", ord.Number, err)
	}
	if !changed {
		countWebhook("duplicate")
		return nil
	}
	countWebhook("paid")
	r.emit(ctx, events.TopicPaymentPaid, ord, p)
	r.Log.Info().
		Str("order_id", ord.ID.String()).
		Str("payment_id", p.ID).
		Msg("order settled")
	return nil
}

func (r *Reconciler) fail(ctx context.Context, ord order.Order, p payment.Payment) error {
	changed, err := r.Orders.MarkFailed(ctx, ord.ID)
	if err != nil {
		countWebhook("error")
		return fmt.Errorf("billing: mark order %s failed: %w", ord.Number, err)
	}
	if !changed {
		countWebhook("duplicate")
		return nil
	}
	countWebhook("failed")
	r.emit(ctx, events.TopicPaymentFailed, ord, p)
	r.Log.Info().
		Str("order_id", ord.ID.String()).
		Str("payment_id", p.ID).
		Str("gateway_status", string(p.Status)).
		Msg("payment failed")
	return nil
}

func (r *Reconciler) emit(ctx context.Context, topic string, ord order.Order, p payment.Payment) {
	if r.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId":       ord.ID,
		"number":        ord.Number,
		"paymentId":     p.ID,
		"gatewayStatus": string(p.Status),
		"amountCents":   ord.TotalCents,
		"currency":      ord.Currency,
	}
	if _, err := r.Events.Emit(ctx, topic, ord.ID, payload); err != nil {
		r.Log.Error().Err(err).Str("topic", topic).Str("order_id", ord.ID.String()).Msg("emit payment event")
	}
}
