package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"eventrental/internal/clock"
	"eventrental/internal/db"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/utils"
)

const adminTokenTTL = time.Hour

type AdminStore interface {
	GetAdminByEmail(ctx context.Context, email string) (*db.Admin, error)
	CreateAdmin(ctx context.Context, email, passwordHash string) error
}

type AdminAuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	CreateAdmin(ctx context.Context, email, password string) error
}

type adminAuthService struct {
	repo   AdminStore
	secret []byte
	clock  clock.Clock
}

func NewAdminAuthService(repo AdminStore, secret string, c clock.Clock) AdminAuthService {
	return &adminAuthService{repo: repo, secret: []byte(secret), clock: c}
}

func (s *adminAuthService) Login(ctx context.Context, email, password string) (string, error) {
	admin, err := s.repo.GetAdminByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", apperrors.ErrInvalidCredentials
	}

	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(admin.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *adminAuthService) CreateAdmin(ctx context.Context, email, password string) error {
	email = utils.NormalizeEmail(email)
	if email == "" || password == "" {
		return errors.New("email and password cannot be empty")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.CreateAdmin(ctx, email, hash)
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}
