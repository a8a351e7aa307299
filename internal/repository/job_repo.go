package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ReleaseExpiredHolds releases held reservations whose expiry is at or before now, limited
// to productIDs when non-empty. It returns the number released and the distinct orders
// they belonged to. The status guard makes concurrent sweeps release each row once.
func (s *PostgresStore) ReleaseExpiredHolds(ctx context.Context, now time.Time, productIDs []string) (int, []string, error) {
	query := `
		UPDATE reservations
		SET status = 'released', expires_at = NULL, updated_at = $1
		WHERE status = 'held' AND expires_at <= $1`
	args := []any{now}
	if len(productIDs) > 0 {
		query += ` AND product_id = ANY($2::uuid[])`
		args = append(args, pq.Array(productIDs))
	}
	query += ` RETURNING order_id`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return 0, nil, classify(fmt.Errorf("error releasing expired holds: %w", err))
	}
	defer rows.Close()

	count := 0
	seen := make(map[string]struct{})
	var orderIDs []string
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			return 0, nil, fmt.Errorf("error scanning released hold: %w", err)
		}
		count++
		if _, ok := seen[orderID]; !ok {
			seen[orderID] = struct{}{}
			orderIDs = append(orderIDs, orderID)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, classify(fmt.Errorf("error after iterating released holds: %w", err))
	}
	return count, orderIDs, nil
}

// ExpireAbandonedOrders marks orders still awaiting payment as expired once none of their
// reservations is held any more.
func (s *PostgresStore) ExpireAbandonedOrders(ctx context.Context, orderIDs []string, now time.Time) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE orders o
		SET status = 'expired', updated_at = $2
		WHERE o.id = ANY($1::uuid[])
		  AND o.status = 'pending_payment'
		  AND NOT EXISTS (
			SELECT 1 FROM reservations r WHERE r.order_id = o.id AND r.status = 'held'
		  )`,
		pq.Array(orderIDs), now)
	if err != nil {
		return 0, classify(fmt.Errorf("error expiring abandoned orders: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("could not get rows affected: %w", err)
	}
	return int(n), nil
}
