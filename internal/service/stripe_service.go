package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"go.uber.org/zap"

	apperrors "eventrental/internal/errors"
)

// Stripe rejects checkout sessions that expire sooner than this.
const minCheckoutSessionTTL = 30 * time.Minute

type StripeConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
	SessionTTL time.Duration
}

// StripeService is the PaymentGateway backed by Stripe Checkout. Calls go through a
// circuit breaker so a Stripe outage fails checkouts fast instead of piling them up.
type StripeService struct {
	cfg        StripeConfig
	logger     *zap.Logger
	breaker    *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeService(cfg StripeConfig, logger *zap.Logger) *StripeService {
	if cfg.SessionTTL < minCheckoutSessionTTL {
		cfg.SessionTTL = minCheckoutSessionTTL
	}
	breaker := gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:    "stripe-checkout",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Card and validation errors mean Stripe is up.
			var stripeErr *stripe.Error
			return err == nil || (errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
	return &StripeService{
		cfg:        cfg,
		logger:     logger,
		breaker:    breaker,
		newSession: session.New,
	}
}

// CreateCheckoutSession opens a one-line Stripe Checkout session charging req.Amount.
// The order id travels as client reference and metadata so webhooks can find the order.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(req.OrderID),
		ExpiresAt:         stripe.Int64(time.Now().Add(s.cfg.SessionTTL).Unix()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"order_id": req.OrderID, "order_code": req.OrderCode},
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_code", req.OrderCode)

	sess, err := s.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return s.newSession(params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return PaymentSession{}, fmt.Errorf("%w: %w", apperrors.ErrPaymentUnavailable, err)
		}
		return PaymentSession{}, fmt.Errorf("create stripe checkout session for order %s: %w", req.OrderCode, err)
	}

	s.logger.Info("stripe checkout session created",
		zap.String("order_id", req.OrderID), zap.String("session_id", sess.ID), zap.Int64("amount", req.Amount))
	return PaymentSession{ID: sess.ID, URL: sess.URL}, nil
}
