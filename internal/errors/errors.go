package errors

import (
	"errors"
	"fmt"
	"strings"

	"eventrental/internal/calendar"
	"eventrental/internal/entities"
)

// Input validation.
var (
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidDateRange     = calendar.ErrInvalidRange
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrAmountTooLarge       = errors.New("amount too large")
	ErrUnknownPricingModel  = errors.New("unknown pricing model")
	ErrEmptyCart            = errors.New("cart has no items")
	ErrMissingCustomerEmail = errors.New("customer email is required")
	ErrMissingProductName   = errors.New("product name is required")
)

// Lookups.
var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// ErrOrderNotCancellable is returned for orders whose reservations are already confirmed.
var ErrOrderNotCancellable = errors.New("order can no longer be cancelled")

// Transient and collaborator failures. Their messages are safe to show to end users.
var (
	ErrContention         = errors.New("inventory is busy, please try again")
	ErrPaymentUnavailable = errors.New("payment provider unavailable, please try again")
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReadOnlyTx         = errors.New("write attempted in read-only transaction")
)

// ShortageError reports cart lines that cannot be satisfied for the requested dates.
type ShortageError struct {
	Shortages []entities.Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.ProductName
		if name == "" {
			name = s.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", name, s.Requested, s.Available))
	}
	return "insufficient availability: " + strings.Join(parts, ", ")
}

// AsShortage extracts a *ShortageError from err, if any.
func AsShortage(err error) (*ShortageError, bool) {
	var se *ShortageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
