package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewOrderCode returns a short human-friendly order code, e.g. "3F9A1C0B".
func NewOrderCode() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
