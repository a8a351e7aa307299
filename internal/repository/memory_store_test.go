package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrental/internal/calendar"
	"eventrental/internal/db"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/pricing"
)

var (
	t0      = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	tentID  = "3c1d6b8e-6f0a-4c55-9a43-1f2f0c7d8a01"
	chairID = "7e2a4f10-5b3d-4c8e-8f61-2d9b0a6c4e02"
)

func mar(d int) calendar.Date { return calendar.NewDate(2024, time.March, d) }

func setupStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertProduct(ctx, &db.Product{ID: tentID, Name: "Tent", PricingModel: pricing.PerDay, BasePrice: 4500, TotalQuantity: 5, Active: true}))
	require.NoError(t, store.UpsertProduct(ctx, &db.Product{ID: chairID, Name: "Chair", PricingModel: pricing.Flat, BasePrice: 300, TotalQuantity: 100, Active: true}))
	return store
}

func seedOrder(t *testing.T, store *MemoryStore, id string, status db.OrderStatus) {
	t.Helper()
	require.NoError(t, store.CreateOrder(context.Background(), &db.Order{
		ID: id, Code: "CODE-" + id, CustomerEmail: "ana@example.com",
		StartDate: mar(10), EndDate: mar(12), Status: status, CreatedAt: t0, UpdatedAt: t0,
	}))
}

func hold(id, orderID, productID string, qty int, start, end int, expires time.Time) db.Reservation {
	return db.Reservation{
		ID: id, OrderID: orderID, ProductID: productID, Quantity: qty,
		StartDate: mar(start), EndDate: mar(end), Status: db.ReservationHeld, ExpiresAt: &expires,
		CreatedAt: t0, UpdatedAt: t0,
	}
}

func TestMemoryStore_WithTxRollsBackOnError(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedOrder(t, store, "o1", db.OrderPendingPayment)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, store.InsertReservations(ctx, []db.Reservation{hold("r1", "o1", tentID, 2, 10, 12, t0.Add(time.Hour))}))
		changed, err := store.UpdateOrderStatus(ctx, "o1", []db.OrderStatus{db.OrderPendingPayment}, db.OrderPaid, t0)
		require.NoError(t, err)
		require.True(t, changed)
		require.NoError(t, store.UpsertProduct(ctx, &db.Product{ID: tentID, Name: "Big tent", PricingModel: pricing.PerDay, TotalQuantity: 1, Active: true}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reservations, err := store.ListReservationsByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, reservations)

	order, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, db.OrderPendingPayment, order.Status)

	tent, err := store.GetProduct(ctx, tentID)
	require.NoError(t, err)
	assert.Equal(t, "Tent", tent.Name)
	assert.Equal(t, 5, tent.TotalQuantity)
}

func TestMemoryStore_ReadTxRejectsWrites(t *testing.T) {
	store := setupStore(t)
	err := store.WithReadTx(context.Background(), func(ctx context.Context) error {
		return store.InsertReservations(ctx, []db.Reservation{hold("r1", "o1", tentID, 1, 10, 10, t0)})
	})
	assert.ErrorIs(t, err, apperrors.ErrReadOnlyTx)
}

func TestMemoryStore_LockProductsNeedsWriteTx(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.LockProducts(ctx, []string{tentID})
	assert.Error(t, err)

	err = store.WithTx(ctx, func(ctx context.Context) error {
		products, err := store.LockProducts(ctx, []string{tentID, "missing"})
		require.NoError(t, err)
		assert.Len(t, products, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_SumActiveReservations(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedOrder(t, store, "o1", db.OrderPendingPayment)

	confirmed := hold("r2", "o1", tentID, 1, 12, 14, t0)
	confirmed.Status, confirmed.ExpiresAt = db.ReservationConfirmed, nil
	released := hold("r3", "o1", tentID, 4, 10, 12, t0)
	released.Status, released.ExpiresAt = db.ReservationReleased, nil

	require.NoError(t, store.InsertReservations(ctx, []db.Reservation{
		hold("r1", "o1", tentID, 2, 10, 12, t0.Add(time.Hour)),
		confirmed,
		released,
		hold("r4", "o1", tentID, 3, 15, 16, t0.Add(time.Hour)),
		hold("r5", "o1", chairID, 10, 11, 11, t0.Add(time.Hour)),
	}))

	sums, err := store.SumActiveReservations(ctx, []string{tentID, chairID}, calendar.Range{Start: mar(11), End: mar(13)}, t0)
	require.NoError(t, err)
	assert.Equal(t, 3, sums[tentID])
	assert.Equal(t, 10, sums[chairID])

	sums, err = store.SumActiveReservations(ctx, []string{tentID}, calendar.Range{Start: mar(17), End: mar(20)}, t0)
	require.NoError(t, err)
	assert.Zero(t, sums[tentID])

	// Expired holds stop counting before any sweep runs.
	sums, err = store.SumActiveReservations(ctx, []string{tentID, chairID}, calendar.Range{Start: mar(11), End: mar(13)}, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, sums[tentID])
	assert.Zero(t, sums[chairID])
}

func TestMemoryStore_TransitionHeldIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedOrder(t, store, "o1", db.OrderPendingPayment)
	require.NoError(t, store.InsertReservations(ctx, []db.Reservation{
		hold("r1", "o1", tentID, 1, 10, 12, t0.Add(time.Hour)),
		hold("r2", "o1", chairID, 5, 10, 12, t0.Add(time.Hour)),
	}))

	n, err := store.TransitionHeld(ctx, "o1", db.ReservationConfirmed, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.TransitionHeld(ctx, "o1", db.ReservationReleased, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	reservations, err := store.ListReservationsByOrder(ctx, "o1")
	require.NoError(t, err)
	for _, r := range reservations {
		assert.Equal(t, db.ReservationConfirmed, r.Status)
		assert.Nil(t, r.ExpiresAt)
	}
}

func TestMemoryStore_ReleaseExpiredHolds(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedOrder(t, store, "o1", db.OrderPendingPayment)
	seedOrder(t, store, "o2", db.OrderPendingPayment)
	require.NoError(t, store.InsertReservations(ctx, []db.Reservation{
		hold("r1", "o1", tentID, 1, 10, 12, t0.Add(-time.Minute)),
		hold("r2", "o1", chairID, 2, 10, 12, t0),
		hold("r3", "o2", tentID, 1, 10, 12, t0.Add(time.Minute)),
	}))

	n, orders, err := store.ReleaseExpiredHolds(ctx, t0, []string{tentID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"o1"}, orders)

	n, orders, err = store.ReleaseExpiredHolds(ctx, t0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"o1"}, orders)

	n, _, err = store.ReleaseExpiredHolds(ctx, t0, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	expired, err := store.ExpireAbandonedOrders(ctx, []string{"o1", "o2"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	o1, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, db.OrderExpired, o1.Status)
	o2, err := store.GetOrder(ctx, "o2")
	require.NoError(t, err)
	assert.Equal(t, db.OrderPendingPayment, o2.Status)
}

func TestMemoryStore_Orders(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	order := &db.Order{
		ID: "o1", Code: "ABCD1234", CustomerEmail: "ana@example.com",
		StartDate: mar(10), EndDate: mar(12), Status: db.OrderPendingPayment, CreatedAt: t0, UpdatedAt: t0,
		Lines: []db.OrderLine{{ID: "l1", ProductID: tentID, ProductName: "Tent", Quantity: 2, Days: 3, LineTotal: 27000}},
	}
	require.NoError(t, store.CreateOrder(ctx, order))
	assert.Error(t, store.CreateOrder(ctx, order))

	found, err := store.GetOrderByCode(ctx, "ABCD1234", "ANA@example.com")
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
	assert.Equal(t, "o1", found.Lines[0].OrderID)

	found.Lines[0].ProductName = "mutated"
	again, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Tent", again.Lines[0].ProductName)

	_, err = store.GetOrderByCode(ctx, "ABCD1234", "someone@example.com")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)

	changed, err := store.UpdateOrderStatus(ctx, "o1", []db.OrderStatus{db.OrderPaid}, db.OrderCancelled, t0)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, store.SetOrderPaymentSession(ctx, "o1", "cs_test_1", t0))
	assert.ErrorIs(t, store.SetOrderPaymentSession(ctx, "nope", "cs_test_2", t0), apperrors.ErrOrderNotFound)

	pending, err := store.ListOrders(ctx, db.OrderPendingPayment)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cs_test_1", pending[0].PaymentSessionID)
	assert.Nil(t, pending[0].Lines)

	paid, err := store.ListOrders(ctx, db.OrderPaid)
	require.NoError(t, err)
	assert.Empty(t, paid)
}

func TestMemoryStore_Products(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrProductNotFound)

	require.NoError(t, store.UpsertProduct(ctx, &db.Product{ID: "p3", Name: "Arch", PricingModel: pricing.Flat, Active: false}))
	active, err := store.ListProducts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, "Chair", active[0].Name)

	all, err := store.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore_Admins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	admin, err := store.GetAdminByEmail(ctx, "boss@example.com")
	require.NoError(t, err)
	assert.Nil(t, admin)

	require.NoError(t, store.CreateAdmin(ctx, "boss@example.com", "hash"))
	assert.ErrorIs(t, store.CreateAdmin(ctx, "BOSS@example.com", "hash"), ErrAdminExists)

	admin, err = store.GetAdminByEmail(ctx, "Boss@Example.com")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, 1, admin.ID)
}
