package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/order"
	"github.com/noah-isme/backend-billing/internal/payment"
)

// memStore is an in-memory order.Store + order.ItemStore with the same
// atomicity guarantees the Postgres store provides: claims are all-or-nothing
// and the paid/failed transitions are conditional.
type memStore struct {
	mu       sync.Mutex
	seq      int64
	orders   map[uuid.UUID]*order.Order
	orderSeq []uuid.UUID
	items    map[uuid.UUID]*order.Item
	itemSeq  []uuid.UUID

	createErr     error
	setPaymentErr error
	listDueErr    error
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[uuid.UUID]*order.Order),
		items:  make(map[uuid.UUID]*order.Item),
	}
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq, nil
}

func (s *memStore) CreateFromItems(_ context.Context, number order.NumberFunc, items []order.Item) (order.Order, error) {
	if s.createErr != nil {
		return order.Order{}, s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if stored, ok := s.items[it.ID]; ok && stored.State == order.ItemProcessed {
			return order.Order{}, order.ErrItemsClaimed
		}
	}
	s.seq++
	ord := order.Order{
		ID:         uuid.New(),
		Number:     number(s.seq),
		Owner:      items[0].Owner,
		Currency:   items[0].Currency,
		TotalCents: order.TotalOf(items),
		Status:     order.StatusUnpaid,
		CreatedAt:  time.Now(),
	}
	for _, it := range items {
		it.State = order.ItemProcessed
		oid := ord.ID
		it.OrderID = &oid
		if _, ok := s.items[it.ID]; !ok {
			s.itemSeq = append(s.itemSeq, it.ID)
		}
		stored := it
		s.items[it.ID] = &stored
		ord.Items = append(ord.Items, it)
	}
	s.orders[ord.ID] = &ord
	s.orderSeq = append(s.orderSeq, ord.ID)
	return ord, nil
}

func (s *memStore) FindByPaymentID(_ context.Context, paymentID string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ord := range s.orders {
		if ord.PaymentID == paymentID {
			return *ord, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (s *memStore) SetPaymentID(_ context.Context, orderID uuid.UUID, paymentID string) error {
	if s.setPaymentErr != nil {
		return s.setPaymentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	ord.PaymentID = paymentID
	return nil
}

func (s *memStore) MarkPaid(_ context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	if ord.Status == order.StatusPaid {
		return false, nil
	}
	ord.Status = order.StatusPaid
	return true, nil
}

func (s *memStore) MarkFailed(_ context.Context, orderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	if ord.Status != order.StatusUnpaid {
		return false, nil
	}
	ord.Status = order.StatusFailed
	return true, nil
}

func (s *memStore) Get(_ context.Context, orderID uuid.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return *ord, nil
}

func (s *memStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, id := range s.orderSeq {
		if ord := s.orders[id]; ord.Owner.ID == ownerID {
			out = append(out, *ord)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListPaymentRetryable(context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Order
	for _, id := range s.orderSeq {
		if ord := s.orders[id]; ord.Status == order.StatusUnpaid && ord.PaymentID == "" {
			out = append(out, *ord)
		}
	}
	return out, nil
}

func (s *memStore) Schedule(_ context.Context, item order.Item) (order.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.State = order.ItemPending
	item.CreatedAt = time.Now()
	stored := item
	s.items[item.ID] = &stored
	s.itemSeq = append(s.itemSeq, item.ID)
	return item, nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time) ([]order.Item, error) {
	if s.listDueErr != nil {
		return nil, s.listDueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []order.Item
	for _, id := range s.itemSeq {
		if it := s.items[id]; it.Due(now) {
			out = append(out, *it)
		}
	}
	return out, nil
}

// stubGateway records create requests and serves canned payment lookups.
type stubGateway struct {
	mu        sync.Mutex
	created   []payment.CreateRequest
	createErr error
	payments  map[string]payment.Payment
	findErr   error
	findCalls int
}

func (g *stubGateway) Create(_ context.Context, req payment.CreateRequest) (payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.Payment{}, g.createErr
	}
	g.created = append(g.created, req)
	p := payment.Payment{
		ID:          fmt.Sprintf("tr_%d", len(g.created)),
		Status:      payment.StatusOpen,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}
	if g.payments == nil {
		g.payments = make(map[string]payment.Payment)
	}
	g.payments[p.ID] = p
	return p, nil
}

func (g *stubGateway) Find(_ context.Context, id string) (payment.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.findCalls++
	if g.findErr != nil {
		return payment.Payment{}, g.findErr
	}
	p, ok := g.payments[id]
	if !ok {
		return payment.Payment{}, fmt.Errorf("unknown payment %s", id)
	}
	return p, nil
}

func (g *stubGateway) setStatus(id string, status payment.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payments == nil {
		g.payments = make(map[string]payment.Payment)
	}
	p := g.payments[id]
	p.ID = id
	p.Status = status
	g.payments[id] = p
}

// memEvents is an in-memory events.Store.
type memEvents struct {
	mu     sync.Mutex
	stored []events.Event
}

func (s *memEvents) InsertEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}
	s.stored = append(s.stored, ev)
	return ev, nil
}

func (s *memEvents) byTopic(topic string) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, ev := range s.stored {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}
