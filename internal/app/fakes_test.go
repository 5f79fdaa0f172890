package app

import (
	"context"
	"sync"
	"time"

	"github.com/tamtam29/flashsale-app/internal/domain"
)

type fakeSaleStore struct {
	mu    sync.Mutex
	sales map[string]domain.Sale
	gets  int
	err   error
}

func newFakeSaleStore(sales ...domain.Sale) *fakeSaleStore {
	s := &fakeSaleStore{sales: make(map[string]domain.Sale)}
	for _, sale := range sales {
		s.sales[sale.ID] = sale
	}
	return s
}

func (s *fakeSaleStore) GetByID(_ context.Context, saleID string) (domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return domain.Sale{}, s.err
	}
	sale, ok := s.sales[saleID]
	if !ok {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return sale, nil
}

func (s *fakeSaleStore) List(_ context.Context) ([]domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, sale)
	}
	return out, nil
}

func (s *fakeSaleStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

type fakeOrderStore struct {
	mu        sync.Mutex
	orders    map[string]domain.Order // keyed saleID+"/"+userID
	createErr error
	countErr  error
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]domain.Order)}
}

func orderKey(saleID, userID string) string { return saleID + "/" + userID }

func (s *fakeOrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeOrderStore) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	key := orderKey(order.SaleID, order.UserID)
	if _, exists := s.orders[key]; exists {
		return domain.ErrDuplicateOrder
	}
	s.orders[key] = order
	return nil
}

func (s *fakeOrderStore) CountConfirmed(_ context.Context, saleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	count := 0
	for _, o := range s.orders {
		if o.SaleID == saleID && o.Status == domain.OrderStatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (s *fakeOrderStore) ListUserIDs(_ context.Context, saleID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, o := range s.orders {
		if o.SaleID == saleID && o.Status == domain.OrderStatusConfirmed {
			ids = append(ids, o.UserID)
		}
	}
	return ids, nil
}

func (s *fakeOrderStore) FindBySaleAndUser(_ context.Context, saleID, userID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderKey(saleID, userID)]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *fakeOrderStore) DeleteBySale(_ context.Context, saleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, o := range s.orders {
		if o.SaleID == saleID {
			delete(s.orders, key)
			deleted++
		}
	}
	return deleted, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	deleted map[string]int
	count   int
}

func newFakeAuditStore(countForSale int) *fakeAuditStore {
	return &fakeAuditStore{deleted: make(map[string]int), count: countForSale}
}

func (s *fakeAuditStore) DeleteBySale(_ context.Context, saleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[saleID] = s.count
	n := s.count
	s.count = 0
	return n, nil
}

// fakeReservationStore mirrors the Redis store's semantics: the duplicate
// check runs before the stock check and the whole reserve step is atomic
// under one lock.
type fakeReservationStore struct {
	mu         sync.Mutex
	stock      map[string]int
	purchasers map[string]map[string]struct{}
	reserveErr error
}

func newFakeReservationStore() *fakeReservationStore {
	return &fakeReservationStore{
		stock:      make(map[string]int),
		purchasers: make(map[string]map[string]struct{}),
	}
}

func (s *fakeReservationStore) TryReserve(_ context.Context, saleID, userID string) (domain.PurchaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserveErr != nil {
		return 0, s.reserveErr
	}
	users := s.purchasers[saleID]
	if users == nil {
		users = make(map[string]struct{})
		s.purchasers[saleID] = users
	}
	if _, ok := users[userID]; ok {
		return domain.OutcomeDuplicate, nil
	}
	if s.stock[saleID] <= 0 {
		return domain.OutcomeSoldOut, nil
	}
	s.stock[saleID]--
	users[userID] = struct{}{}
	return domain.OutcomeGranted, nil
}

func (s *fakeReservationStore) Stock(_ context.Context, saleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[saleID], nil
}

func (s *fakeReservationStore) SetStock(_ context.Context, saleID string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[saleID] = stock
	return nil
}

func (s *fakeReservationStore) AddPurchasers(_ context.Context, saleID string, userIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(userIDs) == 0 {
		return nil
	}
	users := s.purchasers[saleID]
	if users == nil {
		users = make(map[string]struct{})
		s.purchasers[saleID] = users
	}
	for _, id := range userIDs {
		users[id] = struct{}{}
	}
	return nil
}

func (s *fakeReservationStore) ResetSale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stock, saleID)
	delete(s.purchasers, saleID)
	return nil
}

func (s *fakeReservationStore) purchaserCount(saleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.purchasers[saleID])
}

type enqueued struct {
	saleID   string
	userID   string
	issuedAt time.Time
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []enqueued
}

func (e *recordingEnqueuer) Enqueue(saleID, userID string, issuedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, enqueued{saleID: saleID, userID: userID, issuedAt: issuedAt})
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type auditCall struct {
	saleID    string
	userID    string
	eventType domain.AuditEventType
	metadata  map[string]any
}

type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *recordingAudit) LogEvent(saleID, userID string, eventType domain.AuditEventType, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{saleID: saleID, userID: userID, eventType: eventType, metadata: metadata})
}

func (a *recordingAudit) eventsOfType(eventType domain.AuditEventType) []auditCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []auditCall
	for _, c := range a.calls {
		if c.eventType == eventType {
			out = append(out, c)
		}
	}
	return out
}

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]domain.AuditEvent
	err     error
}

func (w *recordingWriter) InsertBatch(_ context.Context, events []domain.AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	batch := make([]domain.AuditEvent, len(events))
	copy(batch, events)
	w.batches = append(w.batches, batch)
	return nil
}

func (w *recordingWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func (w *recordingWriter) totalEvents() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, b := range w.batches {
		total += len(b)
	}
	return total
}

type recordingPublisher struct {
	mu     sync.Mutex
	calls  []enqueued
	err    error
	signal chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{signal: make(chan struct{}, 64)}
}

func (p *recordingPublisher) PublishReservation(_ context.Context, saleID, userID string, issuedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		p.signal <- struct{}{}
		return p.err
	}
	p.calls = append(p.calls, enqueued{saleID: saleID, userID: userID, issuedAt: issuedAt})
	p.signal <- struct{}{}
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
