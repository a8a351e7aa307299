package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"eventrental/internal/db"
	apperrors "eventrental/internal/errors"
)

const orderColumns = `id, code, customer_name, customer_email, customer_phone, start_date, end_date, delivery,
	subtotal, tax_rate_bps, tax, delivery_fee, deposit_total, total, status, payment_session_id, created_at, updated_at`

func scanOrder(row rowScanner) (db.Order, error) {
	var o db.Order
	err := row.Scan(&o.ID, &o.Code, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.StartDate, &o.EndDate, &o.Delivery,
		&o.Subtotal, &o.TaxRateBps, &o.Tax, &o.DeliveryFee, &o.DepositTotal, &o.Total,
		&o.Status, &o.PaymentSessionID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts the order and its frozen line items.
func (s *PostgresStore) CreateOrder(ctx context.Context, o *db.Order) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO orders (id, code, customer_name, customer_email, customer_phone, start_date, end_date, delivery,
			subtotal, tax_rate_bps, tax, delivery_fee, deposit_total, total, status, payment_session_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		o.ID, o.Code, o.CustomerName, o.CustomerEmail, o.CustomerPhone, o.StartDate, o.EndDate, o.Delivery,
		o.Subtotal, o.TaxRateBps, o.Tax, o.DeliveryFee, o.DepositTotal, o.Total, o.Status, o.PaymentSessionID,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("error creating order: %w", err))
	}

	const lineStmt = `
		INSERT INTO order_lines (id, order_id, position, product_id, product_name, pricing_model, unit_price, quantity, days, line_total, deposit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for i, l := range o.Lines {
		if _, err := q.ExecContext(ctx, lineStmt,
			l.ID, o.ID, i, l.ProductID, l.ProductName, l.PricingModel, l.UnitPrice, l.Quantity, l.Days, l.LineTotal, l.Deposit,
		); err != nil {
			return classify(fmt.Errorf("error creating order line %d: %w", i, err))
		}
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*db.Order, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return s.loadOrder(ctx, row, id)
}

// GetOrderByCode looks an order up the way customers do: code plus the email used at checkout.
func (s *PostgresStore) GetOrderByCode(ctx context.Context, code, email string) (*db.Order, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE code = $1 AND lower(customer_email) = lower($2)`, code, email)
	return s.loadOrder(ctx, row, code)
}

func (s *PostgresStore) loadOrder(ctx context.Context, row *sql.Row, ref string) (*db.Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, ref)
		}
		return nil, fmt.Errorf("error querying order %s: %w", ref, err)
	}
	lines, err := s.orderLines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *PostgresStore) orderLines(ctx context.Context, orderID string) ([]db.OrderLine, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, pricing_model, unit_price, quantity, days, line_total, deposit
		FROM order_lines WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("error querying order lines: %w", err)
	}
	defer rows.Close()

	var lines []db.OrderLine
	for rows.Next() {
		var l db.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.PricingModel,
			&l.UnitPrice, &l.Quantity, &l.Days, &l.LineTotal, &l.Deposit); err != nil {
			return nil, fmt.Errorf("error scanning order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListOrders returns orders newest first, filtered by status when non-empty. Lines are not loaded.
func (s *PostgresStore) ListOrders(ctx context.Context, status db.OrderStatus) ([]db.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}
	defer rows.Close()

	var orders []db.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus sets the status only when the current status is one of from.
// It reports whether a row changed.
func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, from []db.OrderStatus, to db.OrderStatus, now time.Time) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`,
		id, to, now, pq.Array(allowed))
	if err != nil {
		return false, classify(fmt.Errorf("error updating order %s status: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not get rows affected: %w", err)
	}
	return n > 0, nil
}
