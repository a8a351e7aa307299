package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	apperrors "eventrental/internal/errors"
)

// Postgres error codes that mean "another checkout got there first; try again".
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// PostgresStore persists products, orders, order lines and reservations.
type PostgresStore struct {
	DB          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresStore returns a store whose write transactions give up waiting for row locks
// after lockTimeout. Zero disables the timeout.
func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{DB: db, lockTimeout: lockTimeout}
}

type txKey struct{}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a read-committed write transaction. Nested calls join the outer one.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// WithReadTx runs fn against one repeatable-read snapshot.
func (s *PostgresStore) WithReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *PostgresStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.DB.BeginTx(ctx, opts)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}

	if !opts.ReadOnly && s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.DB
}

// classify tags lock and serialization failures with ErrContention.
func classify(err error) error {
	if err == nil || errors.Is(err, apperrors.ErrContention) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
			return fmt.Errorf("%w: %w", apperrors.ErrContention, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation
}
