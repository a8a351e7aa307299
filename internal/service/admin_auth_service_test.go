package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrental/internal/clock"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/repository"
)

const testSecret = "test-secret"

func TestAdminAuthService_Login(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC().Truncate(time.Second)
	svc := NewAdminAuthService(store, testSecret, clock.NewManual(now))
	ctx := context.Background()

	require.NoError(t, svc.CreateAdmin(ctx, " Boss@Example.com", "hunter22"))
	assert.ErrorIs(t, svc.CreateAdmin(ctx, "boss@example.com", "other"), repository.ErrAdminExists)

	admin, err := store.GetAdminByEmail(ctx, "boss@example.com")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.NotEqual(t, "hunter22", admin.PasswordHash)

	token, err := svc.Login(ctx, "BOSS@example.com", "hunter22")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "1", claims.Subject)
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestAdminAuthService_LoginRejectsBadCredentials(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewAdminAuthService(store, testSecret, clock.NewSystem())
	ctx := context.Background()
	require.NoError(t, svc.CreateAdmin(ctx, "boss@example.com", "hunter22"))

	_, err := svc.Login(ctx, "boss@example.com", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	assert.Error(t, svc.CreateAdmin(ctx, "", "pw"))
}
