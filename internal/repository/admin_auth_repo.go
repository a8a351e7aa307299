package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"eventrental/internal/db"
)

// ErrAdminExists is returned when registering an email that is already an admin.
var ErrAdminExists = errors.New("admin already exists")

// GetAdminByEmail returns nil, nil when no admin has the email.
func (s *PostgresStore) GetAdminByEmail(ctx context.Context, email string) (*db.Admin, error) {
	var admin db.Admin
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM admins WHERE lower(email) = lower($1)`, email).
		Scan(&admin.ID, &admin.Email, &admin.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

// CreateAdmin stores an admin with an already hashed password.
func (s *PostgresStore) CreateAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO admins (email, password_hash) VALUES ($1, $2)`, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAdminExists
		}
		return fmt.Errorf("error creating admin: %w", err)
	}
	return nil
}
