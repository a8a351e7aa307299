package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventrental/internal/calendar"
	"eventrental/internal/db"
)

const reservationColumns = `id, order_id, product_id, quantity, start_date, end_date, status, expires_at, created_at, updated_at`

// SumActiveReservations returns, per product, the quantity confirmed or held past now over
// any day of rng. Products without overlapping reservations are absent from the result.
func (s *PostgresStore) SumActiveReservations(ctx context.Context, productIDs []string, rng calendar.Range, now time.Time) (map[string]int, error) {
	const query = `
		SELECT product_id, COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE product_id = ANY($1::uuid[])
		  AND (status = 'confirmed' OR (status = 'held' AND (expires_at IS NULL OR expires_at > $4)))
		  AND start_date <= $3
		  AND end_date >= $2
		GROUP BY product_id`

	rows, err := s.q(ctx).QueryContext(ctx, query, pq.Array(productIDs), rng.Start, rng.End, now)
	if err != nil {
		return nil, classify(fmt.Errorf("error summing reservations: %w", err))
	}
	defer rows.Close()

	sums := make(map[string]int, len(productIDs))
	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("error scanning reservation sum: %w", err)
		}
		sums[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error after iterating reservation sums: %w", err))
	}
	return sums, nil
}

func (s *PostgresStore) InsertReservations(ctx context.Context, reservations []db.Reservation) error {
	const stmt = `
		INSERT INTO reservations (id, order_id, product_id, quantity, start_date, end_date, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	q := s.q(ctx)
	for _, r := range reservations {
		_, err := q.ExecContext(ctx, stmt,
			r.ID, r.OrderID, r.ProductID, r.Quantity, r.StartDate, r.EndDate, r.Status, r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return classify(fmt.Errorf("error inserting reservation for product %s: %w", r.ProductID, err))
		}
	}
	return nil
}

func (s *PostgresStore) ListReservationsByOrder(ctx context.Context, orderID string) ([]db.Reservation, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("error listing reservations for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []db.Reservation
	for rows.Next() {
		var r db.Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Quantity, &r.StartDate, &r.EndDate,
			&r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionHeld moves the order's held reservations to status and clears their expiry.
// Rows already confirmed or released are left alone, so repeated calls are no-ops.
func (s *PostgresStore) TransitionHeld(ctx context.Context, orderID string, status db.ReservationStatus, now time.Time) (int, error) {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE reservations
		SET status = $2, expires_at = NULL, updated_at = $3
		WHERE order_id = $1 AND status = 'held'`,
		orderID, status, now)
	if err != nil {
		return 0, classify(fmt.Errorf("error updating reservations of order %s to %s: %w", orderID, status, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}
	return int(n), nil
}
