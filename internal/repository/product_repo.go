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

const productColumns = `id, name, pricing_model, base_price, deposit_per_unit, total_quantity, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (db.Product, error) {
	var p db.Product
	err := row.Scan(&p.ID, &p.Name, &p.PricingModel, &p.BasePrice, &p.DepositPerUnit,
		&p.TotalQuantity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*db.Product, error) {
	row := s.q(ctx).QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrProductNotFound, id)
		}
		return nil, fmt.Errorf("error querying product %s: %w", id, err)
	}
	return &p, nil
}

// GetProducts returns the products found among ids, keyed by id.
func (s *PostgresStore) GetProducts(ctx context.Context, ids []string) (map[string]db.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, ids)
}

// LockProducts row-locks the products in id order so concurrent checkouts queue instead of
// deadlocking. Must be called inside WithTx.
func (s *PostgresStore) LockProducts(ctx context.Context, ids []string) (map[string]db.Product, error) {
	if txFromContext(ctx) == nil {
		return nil, fmt.Errorf("lock products: no transaction in context")
	}
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, ids)
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, ids []string) (map[string]db.Product, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, classify(fmt.Errorf("error querying products: %w", err))
	}
	defer rows.Close()

	products := make(map[string]db.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("error after iterating product rows: %w", err))
	}
	return products, nil
}

func (s *PostgresStore) ListProducts(ctx context.Context, activeOnly bool) ([]db.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing products: %w", err)
	}
	defer rows.Close()

	var products []db.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProduct inserts or replaces the product's catalog fields.
func (s *PostgresStore) UpsertProduct(ctx context.Context, p *db.Product) error {
	now := time.Now().UTC()
	const query = `
		INSERT INTO products (id, name, pricing_model, base_price, deposit_per_unit, total_quantity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			pricing_model = EXCLUDED.pricing_model,
			base_price = EXCLUDED.base_price,
			deposit_per_unit = EXCLUDED.deposit_per_unit,
			total_quantity = EXCLUDED.total_quantity,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`
	err := s.q(ctx).QueryRowContext(ctx, query,
		p.ID, p.Name, p.PricingModel, p.BasePrice, p.DepositPerUnit, p.TotalQuantity, p.Active, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return classify(fmt.Errorf("error upserting product %s: %w", p.ID, err))
	}
	return nil
}
