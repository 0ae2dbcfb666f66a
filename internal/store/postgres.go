package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/order"
)

// Postgres implements the order, item and event persistence contracts on a
// pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

// Count returns the number of persisted orders.
func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&count)
	return count, err
}

const orderColumns = `id, number, owner_id, owner_locale, currency, total_cents, status, payment_id, created_at, updated_at`

// CreateFromItems creates the order and claims its items in one transaction.
// The order number is drawn from a dedicated sequence inside the same
// transaction, so concurrent aggregation runs cannot produce duplicates. An
// item that lost its pending state to a concurrent run aborts the whole
// transaction with ErrItemsClaimed.
func (s *Postgres) CreateFromItems(ctx context.Context, number order.NumberFunc, items []order.Item) (order.Order, error) {
	if len(items) == 0 {
		return order.Order{}, errors.New("store: no items to claim")
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return order.Order{}, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return order.Order{}, fmt.Errorf("store: next order sequence: %w", err)
	}

	first := items[0]
	ord := order.Order{
		Number:     number(seq),
		Owner:      first.Owner,
		Currency:   first.Currency,
		TotalCents: order.TotalOf(items),
		Status:     order.StatusUnpaid,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (number, owner_id, owner_locale, currency, total_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		ord.Number, ord.Owner.ID, ord.Owner.Locale, ord.Currency, ord.TotalCents, string(ord.Status),
	).Scan(&ord.ID, &ord.CreatedAt, &ord.UpdatedAt)
	if err != nil {
		return order.Order{}, fmt.Errorf("store: insert order: %w", err)
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID.String()
	}
	tag, err := tx.Exec(ctx, `
		UPDATE order_items
		SET state = 'processed', order_id = $1, updated_at = now()
		WHERE id = ANY($2::uuid[]) AND state = 'pending'`,
		ord.ID, ids)
	if err != nil {
		return order.Order{}, fmt.Errorf("store: claim items: %w", err)
	}
	if tag.RowsAffected() != int64(len(items)) {
		return order.Order{}, order.ErrItemsClaimed
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("store: commit: %w", err)
	}

	ord.Items = make([]order.Item, len(items))
	for i, it := range items {
		it.State = order.ItemProcessed
		oid := ord.ID
		it.OrderID = &oid
		ord.Items[i] = it
	}
	return ord, nil
}

// FindByPaymentID returns the order referencing the payment identifier.
func (s *Postgres) FindByPaymentID(ctx context.Context, paymentID string) (order.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_id = $1`, paymentID)
	return scanOrder(row)
}

// SetPaymentID records the external payment identifier on the order.
func (s *Postgres) SetPaymentID(ctx context.Context, orderID uuid.UUID, paymentID string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE orders SET payment_id = $2, updated_at = now() WHERE id = $1`, orderID, paymentID)
	if err != nil {
		return fmt.Errorf("store: set payment id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// MarkPaid conditionally settles the order. The WHERE clause is the database
// side of the exactly-once guarantee: a second webhook for the same payment
// matches zero rows.
func (s *Postgres) MarkPaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET status = 'paid', updated_at = now()
		WHERE id = $1 AND status <> 'paid'`, orderID)
	if err != nil {
		return false, fmt.Errorf("store: mark paid: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed conditionally moves an unpaid order to failed.
func (s *Postgres) MarkFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'unpaid'`, orderID)
	if err != nil {
		return false, fmt.Errorf("store: mark failed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns the order with its items.
func (s *Postgres) Get(ctx context.Context, orderID uuid.UUID) (order.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	ord, err := scanOrder(row)
	if err != nil {
		return order.Order{}, err
	}
	ord.Items, err = s.itemsForOrder(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	return ord, nil
}

// ListByOwner returns the owner's orders, most recent first, without items.
func (s *Postgres) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListPaymentRetryable returns unpaid orders with no payment identifier.
func (s *Postgres) ListPaymentRetryable(ctx context.Context) ([]order.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'unpaid' AND payment_id = '' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("store: list retryable orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

const itemColumns = `id, owner_id, owner_locale, currency, amount_cents, description, state, process_at, order_id, created_at, updated_at`

// Schedule persists a new pending item.
func (s *Postgres) Schedule(ctx context.Context, item order.Item) (order.Item, error) {
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO order_items (owner_id, owner_locale, currency, amount_cents, description, state, process_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING id, created_at, updated_at`,
		item.Owner.ID, item.Owner.Locale, item.Currency, item.AmountCents, item.Description, item.ProcessAt,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return order.Item{}, fmt.Errorf("store: schedule item: %w", err)
	}
	item.State = order.ItemPending
	return item, nil
}

// ListDue returns pending items whose process date has passed, in creation
// order so aggregation groups preserve scheduling order.
func (s *Postgres) ListDue(ctx context.Context, now time.Time) ([]order.Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM order_items
		WHERE state = 'pending' AND process_at <= $1
		ORDER BY created_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("store: list due items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Postgres) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+itemColumns+` FROM order_items
		WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("store: list order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertEvent persists a domain event for the events bus.
func (s *Postgres) InsertEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	ev := events.Event{Topic: topic, AggregateID: aggregateID, Payload: payload}
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, occurred_at`,
		topic, aggregateID, payload,
	).Scan(&ev.ID, &ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("store: insert event: %w", err)
	}
	return ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order.Order, error) {
	var (
		ord    order.Order
		status string
	)
	err := row.Scan(
		&ord.ID, &ord.Number, &ord.Owner.ID, &ord.Owner.Locale, &ord.Currency,
		&ord.TotalCents, &status, &ord.PaymentID, &ord.CreatedAt, &ord.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("store: scan order: %w", err)
	}
	ord.Status = order.PaymentStatus(status)
	return ord, nil
}

func scanItem(row rowScanner) (order.Item, error) {
	var (
		item  order.Item
		state string
	)
	err := row.Scan(
		&item.ID, &item.Owner.ID, &item.Owner.Locale, &item.Currency, &item.AmountCents,
		&item.Description, &state, &item.ProcessAt, &item.OrderID, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return order.Item{}, fmt.Errorf("store: scan item: %w", err)
	}
	item.State = order.ItemState(state)
	return item, nil
}

func collectOrders(rows pgx.Rows) ([]order.Order, error) {
	var orders []order.Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, ord)
	}
	return orders, rows.Err()
}
