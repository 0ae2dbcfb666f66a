package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/currency"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/order"
)

func fixedClock(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.March, 14, 9, 0, 0, 0, time.UTC)
	}
}

func newAssembler(t *testing.T, store *memStore, gateway *stubGateway, sink *memEvents) *billing.Assembler {
	t.Helper()
	registry, err := currency.New(currency.Config{Code: "eur", Locale: "en"})
	require.NoError(t, err)
	return &billing.Assembler{
		Store:      store,
		Gateway:    gateway,
		Registry:   registry,
		Events:     &events.Bus{Store: sink},
		Numbers:    order.NumberGenerator{Offset: 1000, Now: fixedClock(2024)},
		WebhookURL: "https://billing.example.com/webhooks/mollie",
		Log:        zerolog.Nop(),
	}
}

func pendingItem(owner uuid.UUID, currency string, cents int64) order.Item {
	return order.Item{
		ID:          uuid.New(),
		Owner:       order.Owner{ID: owner},
		Currency:    currency,
		AmountCents: cents,
		Description: "subscription cycle",
		State:       order.ItemPending,
		ProcessAt:   time.Now().Add(-time.Hour),
	}
}

func TestCreateFromItemsRejectsEmptyGroup(t *testing.T) {
	asm := newAssembler(t, newMemStore(), &stubGateway{}, &memEvents{})
	_, err := asm.CreateFromItems(context.Background(), nil)
	require.Error(t, err)
	require.True(t, common.IsCode(err, common.CodeInvariant))
}

func TestCreateFromItemsRejectsMixedGroups(t *testing.T) {
	asm := newAssembler(t, newMemStore(), &stubGateway{}, &memEvents{})
	ownerA, ownerB := uuid.New(), uuid.New()

	_, err := asm.CreateFromItems(context.Background(), []order.Item{
		pendingItem(ownerA, "eur", 100),
		pendingItem(ownerB, "eur", 200),
	})
	require.True(t, common.IsCode(err, common.CodeInvariant))

	_, err = asm.CreateFromItems(context.Background(), []order.Item{
		pendingItem(ownerA, "eur", 100),
		pendingItem(ownerA, "usd", 200),
	})
	require.True(t, common.IsCode(err, common.CodeInvariant))
}

func TestCreateFromItemsPersistsOrderAndClaimsItems(t *testing.T) {
	store := newMemStore()
	sink := &memEvents{}
	asm := newAssembler(t, store, &stubGateway{}, sink)
	owner := uuid.New()

	items := []order.Item{
		pendingItem(owner, "eur", 1050),
		pendingItem(owner, "eur", 2499),
	}
	ord, err := asm.CreateFromItems(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, int64(3549), ord.TotalCents)
	require.Equal(t, order.StatusUnpaid, ord.Status)
	require.Equal(t, "2024-0010-0001", ord.Number)
	require.Len(t, ord.Items, 2)

	for _, it := range items {
		stored := store.items[it.ID]
		require.Equal(t, order.ItemProcessed, stored.State)
		require.NotNil(t, stored.OrderID)
		require.Equal(t, ord.ID, *stored.OrderID)
	}

	created := sink.byTopic(events.TopicOrderCreated)
	require.Len(t, created, 1)
	require.Equal(t, ord.ID, created[0].AggregateID)
}

func TestProcessPaymentRecordsPaymentID(t *testing.T) {
	store := newMemStore()
	gateway := &stubGateway{}
	asm := newAssembler(t, store, gateway, &memEvents{})
	owner := uuid.New()

	ord, err := asm.CreateFromItems(context.Background(), []order.Item{pendingItem(owner, "eur", 1099)})
	require.NoError(t, err)

	ord, err = asm.ProcessPayment(context.Background(), ord)
	require.NoError(t, err)
	require.Equal(t, "tr_1", ord.PaymentID)

	require.Len(t, gateway.created, 1)
	req := gateway.created[0]
	require.Equal(t, int64(1099), req.AmountCents)
	require.Equal(t, "eur", req.Currency)
	require.Equal(t, "Order "+ord.Number, req.Description)
	require.Equal(t, ord.ID.String(), req.Metadata["order_id"])

	stored, err := store.Get(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, "tr_1", stored.PaymentID)
}

func TestProcessPaymentGatewayFailureLeavesOrderUnpaid(t *testing.T) {
	store := newMemStore()
	gateway := &stubGateway{createErr: common.GatewayError("gateway unavailable", errors.New("503"))}
	asm := newAssembler(t, store, gateway, &memEvents{})

	ord, err := asm.CreateFromItems(context.Background(), []order.Item{pendingItem(uuid.New(), "eur", 500)})
	require.NoError(t, err)

	_, err = asm.ProcessPayment(context.Background(), ord)
	require.Error(t, err)
	require.True(t, common.IsCode(err, common.CodeGateway))

	stored, err := store.Get(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusUnpaid, stored.Status)
	require.Empty(t, stored.PaymentID)
}
