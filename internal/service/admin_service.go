package service

import (
	"context"
	"fmt"
	"strings"

	"eventrental/internal/db"
	apperrors "eventrental/internal/errors"
)

type CatalogStore interface {
	ListProducts(ctx context.Context, activeOnly bool) ([]db.Product, error)
	UpsertProduct(ctx context.Context, p *db.Product) error
}

// AdminService manages the product catalog.
type AdminService struct {
	catalog CatalogStore
}

func NewAdminService(catalog CatalogStore) *AdminService {
	return &AdminService{catalog: catalog}
}

func (s *AdminService) ListProducts(ctx context.Context, activeOnly bool) ([]db.Product, error) {
	return s.catalog.ListProducts(ctx, activeOnly)
}

// UpsertProduct creates or replaces a product. Existing reservations keep counting
// against the new total, so lowering it below what is booked only blocks new holds.
func (s *AdminService) UpsertProduct(ctx context.Context, p *db.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperrors.ErrMissingProductName
	}
	if !p.PricingModel.Valid() {
		return fmt.Errorf("%w: %q", apperrors.ErrUnknownPricingModel, p.PricingModel)
	}
	if p.BasePrice < 0 || p.DepositPerUnit < 0 {
		return apperrors.ErrNegativeAmount
	}
	if p.TotalQuantity < 0 {
		return fmt.Errorf("%w: total quantity %d", apperrors.ErrInvalidQuantity, p.TotalQuantity)
	}
	return s.catalog.UpsertProduct(ctx, p)
}
