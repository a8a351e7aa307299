package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	apperrors "eventrental/internal/errors"
	"eventrental/internal/service"
)

type paymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, ev service.PaymentEvent) error
}

type StripeWebhookHandler struct {
	secret   string
	payments paymentEventHandler
	logger   *zap.Logger
}

func NewStripeWebhookHandler(secret string, payments paymentEventHandler, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{secret: secret, payments: payments, logger: logger}
}

// HandleWebhook verifies the Stripe signature and applies checkout outcomes to orders.
// Non-2xx responses make Stripe redeliver, so only failures worth retrying return them.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("error reading webhook body", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	log := h.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))
	ev, ok, err := paymentEventFrom(event)
	if err != nil {
		log.Warn("malformed webhook payload", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if !ok {
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			// A declined attempt leaves the checkout session open for another try.
			log.Info("payment attempt declined, order stays pending")
		} else {
			log.Debug("webhook event ignored")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.payments.HandlePaymentEvent(r.Context(), ev); err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			log.Warn("webhook for unknown order", zap.String("order_id", ev.OrderID))
			w.WriteHeader(http.StatusOK)
			return
		}
		log.Error("error handling payment event", zap.String("order_id", ev.OrderID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// paymentEventFrom maps the Stripe events we act on. ok is false for everything else.
func paymentEventFrom(event stripe.Event) (ev service.PaymentEvent, ok bool, err error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, false, fmt.Errorf("parse checkout session: %w", err)
		}
		ev.SessionID = sess.ID
		ev.OrderID = sess.ClientReferenceID
		if ev.OrderID == "" {
			ev.OrderID = sess.Metadata["order_id"]
		}

		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted:
			// Delayed payment methods complete the session before the money arrives.
			if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
				return ev, false, nil
			}
			ev.Outcome = service.PaymentSucceeded
		case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
			ev.Outcome = service.PaymentSucceeded
		case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			ev.Outcome = service.PaymentFailed
		default:
			ev.Outcome = service.PaymentExpired
		}

	default:
		return ev, false, nil
	}

	if ev.OrderID == "" {
		return ev, false, fmt.Errorf("event %s carries no order id", event.ID)
	}
	return ev, true, nil
}
