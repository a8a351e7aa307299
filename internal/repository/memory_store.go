package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"eventrental/internal/calendar"
	"eventrental/internal/db"
	apperrors "eventrental/internal/errors"
)

// MemoryStore implements the same operations as PostgresStore with in-memory maps.
// Write transactions hold one store-wide lock; reads outside a transaction share it.
type MemoryStore struct {
	mu           sync.RWMutex
	products     map[string]db.Product
	reservations map[string]db.Reservation
	orders       map[string]db.Order
	admins       map[string]db.Admin
	nextAdminID  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:     make(map[string]db.Product),
		reservations: make(map[string]db.Reservation),
		orders:       make(map[string]db.Order),
		admins:       make(map[string]db.Admin),
	}
}

type memTxKey struct{}

// memTx records how to undo each write so a failed transaction leaves no trace.
type memTx struct {
	write bool
	undo  []func()
}

func memTxFromContext(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := memTxFromContext(ctx); tx != nil {
		if !tx.write {
			return apperrors.ErrReadOnlyTx
		}
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{write: true}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (s *MemoryStore) WithReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if memTxFromContext(ctx) != nil {
		return fn(ctx)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, memTxKey{}, &memTx{}))
}

// read acquires the shared lock unless ctx already runs inside a transaction.
func (s *MemoryStore) read(ctx context.Context) func() {
	if memTxFromContext(ctx) != nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// write acquires the exclusive lock outside transactions and returns the undo recorder.
func (s *MemoryStore) write(ctx context.Context) (record func(func()), unlock func(), err error) {
	tx := memTxFromContext(ctx)
	if tx == nil {
		s.mu.Lock()
		return func(func()) {}, s.mu.Unlock, nil
	}
	if !tx.write {
		return nil, nil, apperrors.ErrReadOnlyTx
	}
	return func(u func()) { tx.undo = append(tx.undo, u) }, func() {}, nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*db.Product, error) {
	defer s.read(ctx)()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrProductNotFound, id)
	}
	return &p, nil
}

func (s *MemoryStore) GetProducts(ctx context.Context, ids []string) (map[string]db.Product, error) {
	defer s.read(ctx)()
	return s.productsByID(ids), nil
}

// LockProducts needs a write transaction; the store-wide lock already serializes writers.
func (s *MemoryStore) LockProducts(ctx context.Context, ids []string) (map[string]db.Product, error) {
	if tx := memTxFromContext(ctx); tx == nil || !tx.write {
		return nil, fmt.Errorf("lock products: no write transaction in context")
	}
	return s.productsByID(ids), nil
}

func (s *MemoryStore) productsByID(ids []string) map[string]db.Product {
	out := make(map[string]db.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out
}

func (s *MemoryStore) ListProducts(ctx context.Context, activeOnly bool) ([]db.Product, error) {
	defer s.read(ctx)()
	var out []db.Product
	for _, p := range s.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpsertProduct(ctx context.Context, p *db.Product) error {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	now := time.Now().UTC()
	prev, existed := s.products[p.ID]
	if existed {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = *p
	record(func() {
		if existed {
			s.products[p.ID] = prev
		} else {
			delete(s.products, p.ID)
		}
	})
	return nil
}

func (s *MemoryStore) SumActiveReservations(ctx context.Context, productIDs []string, rng calendar.Range, now time.Time) (map[string]int, error) {
	defer s.read(ctx)()
	wanted := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	sums := make(map[string]int)
	for _, r := range s.reservations {
		if wanted[r.ProductID] && r.LiveAt(now) && r.Range().Overlaps(rng) {
			sums[r.ProductID] += r.Quantity
		}
	}
	return sums, nil
}

func (s *MemoryStore) InsertReservations(ctx context.Context, reservations []db.Reservation) error {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	for _, r := range reservations {
		if _, exists := s.reservations[r.ID]; exists {
			return fmt.Errorf("reservation %s already exists", r.ID)
		}
	}
	for _, r := range reservations {
		s.reservations[r.ID] = r
		id := r.ID
		record(func() { delete(s.reservations, id) })
	}
	return nil
}

func (s *MemoryStore) ListReservationsByOrder(ctx context.Context, orderID string) ([]db.Reservation, error) {
	defer s.read(ctx)()
	var out []db.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) TransitionHeld(ctx context.Context, orderID string, status db.ReservationStatus, now time.Time) (int, error) {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for id, r := range s.reservations {
		if r.OrderID != orderID || r.Status != db.ReservationHeld {
			continue
		}
		s.setReservation(record, id, r, status, now)
		n++
	}
	return n, nil
}

func (s *MemoryStore) ReleaseExpiredHolds(ctx context.Context, now time.Time, productIDs []string) (int, []string, error) {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return 0, nil, err
	}
	defer unlock()

	var only map[string]bool
	if len(productIDs) > 0 {
		only = make(map[string]bool, len(productIDs))
		for _, id := range productIDs {
			only[id] = true
		}
	}

	count := 0
	seen := make(map[string]struct{})
	var orderIDs []string
	for id, r := range s.reservations {
		if r.Status != db.ReservationHeld || r.ExpiresAt == nil || r.ExpiresAt.After(now) {
			continue
		}
		if only != nil && !only[r.ProductID] {
			continue
		}
		s.setReservation(record, id, r, db.ReservationReleased, now)
		count++
		if _, ok := seen[r.OrderID]; !ok {
			seen[r.OrderID] = struct{}{}
			orderIDs = append(orderIDs, r.OrderID)
		}
	}
	sort.Strings(orderIDs)
	return count, orderIDs, nil
}

func (s *MemoryStore) setReservation(record func(func()), id string, prev db.Reservation, status db.ReservationStatus, now time.Time) {
	next := prev
	next.Status = status
	next.ExpiresAt = nil
	next.UpdatedAt = now
	s.reservations[id] = next
	record(func() { s.reservations[id] = prev })
}

func (s *MemoryStore) ExpireAbandonedOrders(ctx context.Context, orderIDs []string, now time.Time) (int, error) {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n := 0
	for _, id := range orderIDs {
		o, ok := s.orders[id]
		if !ok || o.Status != db.OrderPendingPayment || s.hasHeld(id) {
			continue
		}
		s.setOrder(record, o, func(o *db.Order) {
			o.Status = db.OrderExpired
			o.UpdatedAt = now
		})
		n++
	}
	return n, nil
}

func (s *MemoryStore) hasHeld(orderID string) bool {
	for _, r := range s.reservations {
		if r.OrderID == orderID && r.Status == db.ReservationHeld {
			return true
		}
	}
	return false
}

func (s *MemoryStore) setOrder(record func(func()), prev db.Order, mutate func(*db.Order)) {
	next := prev
	mutate(&next)
	s.orders[prev.ID] = next
	record(func() { s.orders[prev.ID] = prev })
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *db.Order) error {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	for _, existing := range s.orders {
		if existing.Code == o.Code {
			return fmt.Errorf("order code %s already exists", o.Code)
		}
	}
	stored := *o
	stored.Lines = append([]db.OrderLine(nil), o.Lines...)
	for i := range stored.Lines {
		stored.Lines[i].OrderID = o.ID
	}
	s.orders[o.ID] = stored
	id := o.ID
	record(func() { delete(s.orders, id) })
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*db.Order, error) {
	defer s.read(ctx)()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, id)
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) GetOrderByCode(ctx context.Context, code, email string) (*db.Order, error) {
	defer s.read(ctx)()
	for _, o := range s.orders {
		if o.Code == code && strings.EqualFold(o.CustomerEmail, email) {
			return copyOrder(o), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, code)
}

func copyOrder(o db.Order) *db.Order {
	o.Lines = append([]db.OrderLine(nil), o.Lines...)
	return &o
}

func (s *MemoryStore) ListOrders(ctx context.Context, status db.OrderStatus) ([]db.Order, error) {
	defer s.read(ctx)()
	var out []db.Order
	for _, o := range s.orders {
		if status != "" && o.Status != status {
			continue
		}
		o.Lines = nil
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, from []db.OrderStatus, to db.OrderStatus, now time.Time) (bool, error) {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	for _, st := range from {
		if o.Status == st {
			s.setOrder(record, o, func(o *db.Order) {
				o.Status = to
				o.UpdatedAt = now
			})
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SetOrderPaymentSession(ctx context.Context, orderID, sessionID string, now time.Time) error {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, orderID)
	}
	s.setOrder(record, o, func(o *db.Order) {
		o.PaymentSessionID = sessionID
		o.UpdatedAt = now
	})
	return nil
}

func (s *MemoryStore) GetAdminByEmail(ctx context.Context, email string) (*db.Admin, error) {
	defer s.read(ctx)()
	a, ok := s.admins[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *MemoryStore) CreateAdmin(ctx context.Context, email, passwordHash string) error {
	record, unlock, err := s.write(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	key := strings.ToLower(email)
	if _, exists := s.admins[key]; exists {
		return ErrAdminExists
	}
	s.nextAdminID++
	s.admins[key] = db.Admin{ID: s.nextAdminID, Email: email, PasswordHash: passwordHash}
	record(func() { delete(s.admins, key) })
	return nil
}
