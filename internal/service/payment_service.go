package service

import "context"

// PaymentGateway creates hosted checkout sessions with an external payment provider.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req PaymentRequest) (PaymentSession, error)
}

type PaymentRequest struct {
	OrderID       string
	OrderCode     string
	Description   string
	CustomerEmail string
	// Amount is in minor currency units.
	Amount int64
}

type PaymentSession struct {
	ID  string
	URL string
}

type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
	PaymentExpired   PaymentOutcome = "expired"
)

// PaymentEvent is a provider notification already verified and mapped to an outcome.
type PaymentEvent struct {
	Outcome   PaymentOutcome
	OrderID   string
	SessionID string
}
