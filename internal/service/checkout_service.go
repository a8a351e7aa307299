package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventrental/internal/calendar"
	"eventrental/internal/clock"
	"eventrental/internal/db"
	"eventrental/internal/entities"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/pricing"
	"eventrental/internal/utils"
)

type OrderStore interface {
	TxRunner
	CreateOrder(ctx context.Context, o *db.Order) error
	GetOrder(ctx context.Context, id string) (*db.Order, error)
	GetOrderByCode(ctx context.Context, code, email string) (*db.Order, error)
	ListOrders(ctx context.Context, status db.OrderStatus) ([]db.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, from []db.OrderStatus, to db.OrderStatus, now time.Time) (bool, error)
	SetOrderPaymentSession(ctx context.Context, orderID, sessionID string, now time.Time) error
}

type CheckoutResult struct {
	Order   *db.Order
	Session PaymentSession
}

// CheckoutService turns carts into orders with held inventory and follows each order
// through payment.
type CheckoutService struct {
	store       OrderStore
	avail       *AvailabilityService
	payments    PaymentGateway
	notifier    Notifier
	clock       clock.Clock
	logger      *zap.Logger
	deliveryFee int64
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

type CheckoutOption func(*CheckoutService)

// WithRetry bounds how often a checkout is retried when inventory rows are locked.
func WithRetry(maxAttempts int, backoff time.Duration) CheckoutOption {
	return func(s *CheckoutService) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.backoff = backoff
	}
}

func WithDeliveryFee(fee int64) CheckoutOption {
	return func(s *CheckoutService) { s.deliveryFee = fee }
}

func WithCheckoutClock(c clock.Clock) CheckoutOption {
	return func(s *CheckoutService) { s.clock = c }
}

func NewCheckoutService(store OrderStore, avail *AvailabilityService, payments PaymentGateway, notifier Notifier, logger *zap.Logger, opts ...CheckoutOption) *CheckoutService {
	s := &CheckoutService{
		store:       store,
		avail:       avail,
		payments:    payments,
		notifier:    notifier,
		clock:       clock.NewSystem(),
		logger:      logger,
		deliveryFee: 7500,
		maxAttempts: 3,
		backoff:     50 * time.Millisecond,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout validates the cart, prices it, stores the order with its holds and opens a
// payment session. Shortages come back as *ShortageError and nothing is stored.
func (s *CheckoutService) Checkout(ctx context.Context, req entities.CheckoutRequest) (*CheckoutResult, error) {
	rng := calendar.Range{Start: req.StartDate, End: req.EndDate}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	_, ids, err := combineItems(req.Items)
	if err != nil {
		return nil, err
	}
	email := utils.NormalizeEmail(req.CustomerEmail)
	if email == "" {
		return nil, apperrors.ErrMissingCustomerEmail
	}

	var order *db.Order
	err = s.withRetry(ctx, "checkout", func(ctx context.Context) error {
		products, err := s.avail.LockInventory(ctx, ids)
		if err != nil {
			return err
		}
		shortages, err := s.avail.ValidateCart(ctx, req.Items, rng)
		if err != nil {
			return err
		}
		if len(shortages) > 0 {
			return &apperrors.ShortageError{Shortages: shortages}
		}

		lines, summary, err := priceCart(products, req.Items, rng, pricing.SummaryOptions{
			TaxRate:     pricing.CheckoutTaxRate,
			Delivery:    req.Delivery,
			DeliveryFee: s.deliveryFee,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		order = &db.Order{
			ID:            uuid.NewString(),
			Code:          utils.NewOrderCode(),
			CustomerName:  strings.TrimSpace(req.CustomerName),
			CustomerEmail: email,
			CustomerPhone: strings.TrimSpace(req.CustomerPhone),
			StartDate:     rng.Start,
			EndDate:       rng.End,
			Delivery:      req.Delivery,
			Subtotal:      summary.Subtotal,
			TaxRateBps:    summary.TaxRateBps,
			Tax:           summary.Tax,
			DeliveryFee:   summary.DeliveryFee,
			DepositTotal:  summary.DepositTotal,
			Total:         summary.Total,
			Status:        db.OrderPendingPayment,
			CreatedAt:     now,
			UpdatedAt:     now,
			Lines:         lines,
		}
		for i := range order.Lines {
			order.Lines[i].ID = uuid.NewString()
			order.Lines[i].OrderID = order.ID
		}
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return err
		}
		_, err = s.avail.CreateHolds(ctx, order.ID, req.Items, rng)
		return err
	})
	if err != nil {
		return nil, err
	}

	sess, err := s.payments.CreateCheckoutSession(ctx, PaymentRequest{
		OrderID:       order.ID,
		OrderCode:     order.Code,
		Description:   fmt.Sprintf("Event rental order %s", order.Code),
		CustomerEmail: order.CustomerEmail,
		Amount:        order.AmountDue(),
	})
	if err != nil {
		s.abandon(ctx, order, err)
		if errors.Is(err, apperrors.ErrPaymentUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPaymentUnavailable, err)
	}

	if err := s.store.SetOrderPaymentSession(ctx, order.ID, sess.ID, s.clock.Now()); err != nil {
		err = fmt.Errorf("store payment session for order %s: %w", order.Code, err)
		s.abandon(ctx, order, err)
		return nil, err
	}
	order.PaymentSessionID = sess.ID

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_code", order.Code),
		zap.Int64("amount_due", order.AmountDue()))
	return &CheckoutResult{Order: order, Session: sess}, nil
}

// abandon gives back the inventory of an order whose payment session could not be opened.
func (s *CheckoutService) abandon(ctx context.Context, order *db.Order, cause error) {
	log := s.logger.With(zap.String("order_id", order.ID), zap.NamedError("cause", cause))
	err := s.withRetry(ctx, "abandon order", func(ctx context.Context) error {
		if _, err := s.avail.ReleaseHolds(ctx, order.ID); err != nil {
			return err
		}
		_, err := s.store.UpdateOrderStatus(ctx, order.ID,
			[]db.OrderStatus{db.OrderPendingPayment}, db.OrderPaymentFailed, s.clock.Now())
		return err
	})
	if err != nil {
		// The sweep reclaims the holds once they expire.
		log.Error("could not release holds after payment session failure", zap.Error(err))
		return
	}
	log.Warn("payment session failed, holds released")
}

// HandlePaymentEvent applies a provider notification to its order. Events for orders
// already past the matching transition are ignored.
func (s *CheckoutService) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) error {
	order, err := s.store.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	log := s.logger.With(zap.String("order_id", order.ID), zap.String("outcome", string(ev.Outcome)))

	switch ev.Outcome {
	case PaymentSucceeded:
		return s.markPaid(ctx, order, log)
	case PaymentFailed:
		return s.closeUnpaid(ctx, order, db.OrderPaymentFailed, log)
	case PaymentExpired:
		return s.closeUnpaid(ctx, order, db.OrderExpired, log)
	default:
		return fmt.Errorf("unknown payment outcome %q", ev.Outcome)
	}
}

func (s *CheckoutService) markPaid(ctx context.Context, order *db.Order, log *zap.Logger) error {
	var paid bool
	var shortages []entities.Shortage
	err := s.withRetry(ctx, "mark order paid", func(ctx context.Context) error {
		var err error
		paid, err = s.store.UpdateOrderStatus(ctx, order.ID,
			[]db.OrderStatus{db.OrderPendingPayment, db.OrderExpired, db.OrderPaymentFailed},
			db.OrderPaid, s.clock.Now())
		if err != nil || !paid {
			return err
		}
		if _, err := s.avail.ConfirmHolds(ctx, order.ID); err != nil {
			return err
		}
		// Some or all holds may have lapsed before the money arrived.
		shortages, err = s.avail.Reacquire(ctx, order)
		return err
	})
	if err != nil {
		return err
	}
	if !paid {
		log.Info("payment event ignored", zap.String("status", string(order.Status)))
		return nil
	}
	if len(shortages) > 0 {
		log.Error("order paid but some of its inventory is no longer available, needs manual follow-up",
			zap.String("order_code", order.Code), zap.Any("shortages", shortages))
	}

	order.Status = db.OrderPaid
	log.Info("order paid", zap.String("order_code", order.Code))
	s.notifier.NotifyOrderConfirmed(ctx, order)
	return nil
}

func (s *CheckoutService) closeUnpaid(ctx context.Context, order *db.Order, to db.OrderStatus, log *zap.Logger) error {
	var released int
	var changed bool
	err := s.withRetry(ctx, "close unpaid order", func(ctx context.Context) error {
		var err error
		if released, err = s.avail.ReleaseHolds(ctx, order.ID); err != nil {
			return err
		}
		changed, err = s.store.UpdateOrderStatus(ctx, order.ID,
			[]db.OrderStatus{db.OrderPendingPayment}, to, s.clock.Now())
		return err
	})
	if err != nil {
		return err
	}
	log.Info("unpaid order closed", zap.Int("released", released), zap.Bool("status_changed", changed))
	return nil
}

// CancelOrder releases an unpaid order's holds and marks it cancelled. Paid orders are
// refused since their reservations are confirmed.
func (s *CheckoutService) CancelOrder(ctx context.Context, orderID string) (*db.Order, error) {
	var order *db.Order
	err := s.withRetry(ctx, "cancel order", func(ctx context.Context) error {
		var err error
		if order, err = s.store.GetOrder(ctx, orderID); err != nil {
			return err
		}
		switch order.Status {
		case db.OrderCancelled:
			return nil
		case db.OrderPaid:
			return apperrors.ErrOrderNotCancellable
		}
		if _, err := s.avail.ReleaseHolds(ctx, orderID); err != nil {
			return err
		}
		now := s.clock.Now()
		changed, err := s.store.UpdateOrderStatus(ctx, orderID,
			[]db.OrderStatus{db.OrderPendingPayment, db.OrderPaymentFailed, db.OrderExpired}, db.OrderCancelled, now)
		if err != nil {
			return err
		}
		if !changed {
			return apperrors.ErrOrderNotCancellable
		}
		order.Status = db.OrderCancelled
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order cancelled", zap.String("order_id", orderID))
	return order, nil
}

func (s *CheckoutService) GetOrderByCode(ctx context.Context, code, email string) (*db.Order, error) {
	return s.store.GetOrderByCode(ctx, strings.ToUpper(strings.TrimSpace(code)), utils.NormalizeEmail(email))
}

func (s *CheckoutService) ListOrders(ctx context.Context, status db.OrderStatus) ([]db.Order, error) {
	return s.store.ListOrders(ctx, status)
}

// withRetry runs fn in a write transaction, retrying with exponential backoff while
// it fails with ErrContention.
func (s *CheckoutService) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := s.backoff
	for attempt := 1; ; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, apperrors.ErrContention) || attempt >= s.maxAttempts {
			return err
		}
		s.logger.Debug("retrying after contention",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
