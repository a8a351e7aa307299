package repository

import (
	"context"
	"fmt"
	"time"

	apperrors "eventrental/internal/errors"
)

// SetOrderPaymentSession records the hosted checkout session created for the order.
func (s *PostgresStore) SetOrderPaymentSession(ctx context.Context, orderID, sessionID string, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE orders
		SET payment_session_id = $2, updated_at = $3
		WHERE id = $1`,
		orderID, sessionID, now)
	if err != nil {
		return fmt.Errorf("error updating order %s with payment session: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, orderID)
	}
	return nil
}
