package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventrental/internal/calendar"
	"eventrental/internal/clock"
	"eventrental/internal/db"
	"eventrental/internal/entities"
	apperrors "eventrental/internal/errors"
)

// DefaultHoldTTL is how long a checkout keeps inventory while the customer pays.
const DefaultHoldTTL = 15 * time.Minute

// TxRunner runs fn inside a store transaction carried by ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	WithReadTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryStore is the persistence AvailabilityService needs.
type InventoryStore interface {
	TxRunner
	GetProduct(ctx context.Context, id string) (*db.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]db.Product, error)
	LockProducts(ctx context.Context, ids []string) (map[string]db.Product, error)
	SumActiveReservations(ctx context.Context, productIDs []string, rng calendar.Range, now time.Time) (map[string]int, error)
	InsertReservations(ctx context.Context, reservations []db.Reservation) error
	ListReservationsByOrder(ctx context.Context, orderID string) ([]db.Reservation, error)
	TransitionHeld(ctx context.Context, orderID string, status db.ReservationStatus, now time.Time) (int, error)
	ReleaseExpiredHolds(ctx context.Context, now time.Time, productIDs []string) (int, []string, error)
	ExpireAbandonedOrders(ctx context.Context, orderIDs []string, now time.Time) (int, error)
}

// AvailabilityService tracks how much of each product is free over date ranges and
// manages the holds that keep inventory for unpaid orders.
type AvailabilityService struct {
	store   InventoryStore
	clock   clock.Clock
	logger  *zap.Logger
	holdTTL time.Duration
}

type AvailabilityOption func(*AvailabilityService)

func WithHoldTTL(ttl time.Duration) AvailabilityOption {
	return func(s *AvailabilityService) {
		if ttl > 0 {
			s.holdTTL = ttl
		}
	}
}

func WithAvailabilityClock(c clock.Clock) AvailabilityOption {
	return func(s *AvailabilityService) { s.clock = c }
}

func NewAvailabilityService(store InventoryStore, logger *zap.Logger, opts ...AvailabilityOption) *AvailabilityService {
	s := &AvailabilityService{
		store:   store,
		clock:   clock.NewSystem(),
		logger:  logger,
		holdTTL: DefaultHoldTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FreeQuantity is advisory: it takes no locks and the answer may be stale by the time
// the customer checks out.
func (s *AvailabilityService) FreeQuantity(ctx context.Context, productID string, rng calendar.Range) (int, error) {
	if err := rng.Validate(); err != nil {
		return 0, err
	}
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	sums, err := s.store.SumActiveReservations(ctx, []string{productID}, rng, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("free quantity for %s: %w", productID, err)
	}
	return max(product.TotalQuantity-sums[productID], 0), nil
}

// ValidateCart checks every item against one consistent snapshot and reports one
// shortage per product that cannot be satisfied. Items naming the same product are
// combined. Called inside a write transaction it sees that transaction's state.
func (s *AvailabilityService) ValidateCart(ctx context.Context, items []entities.CartItem, rng calendar.Range) ([]entities.Shortage, error) {
	requested, ids, err := combineItems(items)
	if err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var shortages []entities.Shortage
	err = s.store.WithReadTx(ctx, func(ctx context.Context) error {
		products, err := s.store.GetProducts(ctx, ids)
		if err != nil {
			return err
		}
		if err := requireProducts(products, ids); err != nil {
			return err
		}
		sums, err := s.store.SumActiveReservations(ctx, ids, rng, s.clock.Now())
		if err != nil {
			return err
		}
		shortages = findShortages(products, requested, sums, ids)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shortages, nil
}

// LockInventory row-locks the products and releases any expired holds on them, so the
// caller's availability checks see only live holds. Must run inside WithTx.
func (s *AvailabilityService) LockInventory(ctx context.Context, productIDs []string) (map[string]db.Product, error) {
	products, err := s.store.LockProducts(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if err := requireProducts(products, productIDs); err != nil {
		return nil, err
	}
	if _, err := s.releaseExpired(ctx, productIDs); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateHolds reserves every item for orderID as held until now+TTL, or nothing at all.
// A shortage aborts with *ShortageError and writes no rows.
func (s *AvailabilityService) CreateHolds(ctx context.Context, orderID string, items []entities.CartItem, rng calendar.Range) ([]db.Reservation, error) {
	requested, ids, err := combineItems(items)
	if err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	var holds []db.Reservation
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		products, err := s.LockInventory(ctx, ids)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		sums, err := s.store.SumActiveReservations(ctx, ids, rng, now)
		if err != nil {
			return err
		}
		if shortages := findShortages(products, requested, sums, ids); len(shortages) > 0 {
			return &apperrors.ShortageError{Shortages: shortages}
		}

		expires := now.Add(s.holdTTL)
		holds = make([]db.Reservation, 0, len(items))
		for _, item := range items {
			holds = append(holds, db.Reservation{
				ID:        uuid.NewString(),
				OrderID:   orderID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				StartDate: rng.Start,
				EndDate:   rng.End,
				Status:    db.ReservationHeld,
				ExpiresAt: &expires,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		return s.store.InsertReservations(ctx, holds)
	})
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// ConfirmHolds turns the order's held reservations into confirmed ones. Repeated calls
// confirm nothing and return 0.
func (s *AvailabilityService) ConfirmHolds(ctx context.Context, orderID string) (int, error) {
	n, err := s.store.TransitionHeld(ctx, orderID, db.ReservationConfirmed, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("confirm holds of order %s: %w", orderID, err)
	}
	return n, nil
}

// ReleaseHolds gives the order's held inventory back. Confirmed reservations are kept.
func (s *AvailabilityService) ReleaseHolds(ctx context.Context, orderID string) (int, error) {
	n, err := s.store.TransitionHeld(ctx, orderID, db.ReservationReleased, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("release holds of order %s: %w", orderID, err)
	}
	return n, nil
}

// SweepExpiredHolds releases every hold past its expiry and returns how many it released.
// Safe to run concurrently with itself and with confirm/release.
func (s *AvailabilityService) SweepExpiredHolds(ctx context.Context) (int, error) {
	var released int
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		released, err = s.releaseExpired(ctx, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}
	return released, nil
}

func (s *AvailabilityService) releaseExpired(ctx context.Context, productIDs []string) (int, error) {
	now := s.clock.Now()
	released, orderIDs, err := s.store.ReleaseExpiredHolds(ctx, now, productIDs)
	if err != nil {
		return 0, err
	}
	if released == 0 {
		return 0, nil
	}
	if len(productIDs) > 0 {
		// An order's holds share one expiry. Release its holds on the products we did not
		// lock too, so the order is never left partly held.
		for _, orderID := range orderIDs {
			n, err := s.store.TransitionHeld(ctx, orderID, db.ReservationReleased, now)
			if err != nil {
				return 0, fmt.Errorf("release remaining holds of order %s: %w", orderID, err)
			}
			released += n
		}
	}
	expired, err := s.store.ExpireAbandonedOrders(ctx, orderIDs, now)
	if err != nil {
		return 0, err
	}
	s.logger.Info("released expired holds",
		zap.Int("holds", released),
		zap.Int("orders_expired", expired),
		zap.Strings("product_ids", productIDs))
	return released, nil
}

// Reacquire makes sure a paid order has a live reservation for every line. Quantity no
// longer covered, because holds lapsed before the payment arrived, is reserved again as
// confirmed. Products that cannot be covered in full are returned as shortages and get
// nothing; the rest are still reserved.
func (s *AvailabilityService) Reacquire(ctx context.Context, order *db.Order) ([]entities.Shortage, error) {
	want := make(map[string]int, len(order.Lines))
	for _, l := range order.Lines {
		want[l.ProductID] += l.Quantity
	}
	rng := order.Range()

	var shortages []entities.Shortage
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		shortages = nil
		existing, err := s.store.ListReservationsByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		have := make(map[string]int)
		for _, r := range existing {
			if r.Status.Active() {
				have[r.ProductID] += r.Quantity
			}
		}
		missing := make(map[string]int)
		ids := make([]string, 0, len(want))
		for id, qty := range want {
			if qty > have[id] {
				missing[id] = qty - have[id]
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		sort.Strings(ids)

		products, err := s.store.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		if _, err := s.releaseExpired(ctx, ids); err != nil {
			return err
		}
		now := s.clock.Now()
		sums, err := s.store.SumActiveReservations(ctx, ids, rng, now)
		if err != nil {
			return err
		}
		shortages = findShortages(products, missing, sums, ids)
		short := make(map[string]bool, len(shortages))
		for _, sh := range shortages {
			short[sh.ProductID] = true
		}

		var confirmed []db.Reservation
		for _, id := range ids {
			if short[id] {
				continue
			}
			confirmed = append(confirmed, db.Reservation{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				ProductID: id,
				Quantity:  missing[id],
				StartDate: rng.Start,
				EndDate:   rng.End,
				Status:    db.ReservationConfirmed,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}
		if len(confirmed) == 0 {
			return nil
		}
		return s.store.InsertReservations(ctx, confirmed)
	})
	if err != nil {
		return nil, fmt.Errorf("reacquire inventory for order %s: %w", order.ID, err)
	}
	return shortages, nil
}

// combineItems sums quantities per product and returns the product ids in sorted order,
// which is also the lock order.
func combineItems(items []entities.CartItem) (map[string]int, []string, error) {
	if len(items) == 0 {
		return nil, nil, apperrors.ErrEmptyCart
	}
	requested := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: product %s has quantity %d", apperrors.ErrInvalidQuantity, item.ProductID, item.Quantity)
		}
		requested[item.ProductID] += item.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return requested, ids, nil
}

func requireProducts(products map[string]db.Product, ids []string) error {
	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Active {
			return fmt.Errorf("%w: %s", apperrors.ErrProductNotFound, id)
		}
	}
	return nil
}

func findShortages(products map[string]db.Product, requested, reserved map[string]int, ids []string) []entities.Shortage {
	var shortages []entities.Shortage
	for _, id := range ids {
		p := products[id]
		free := max(p.TotalQuantity-reserved[id], 0)
		if requested[id] > free {
			shortages = append(shortages, entities.Shortage{
				ProductID:   id,
				ProductName: p.Name,
				Requested:   requested[id],
				Available:   free,
			})
		}
	}
	return shortages
}
