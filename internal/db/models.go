package db

import (
	"time"

	"eventrental/internal/calendar"
	"eventrental/internal/pricing"
)

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationReleased  ReservationStatus = "released"
)

// Active reports whether the status counts against inventory.
func (s ReservationStatus) Active() bool {
	return s == ReservationHeld || s == ReservationConfirmed
}

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "pending_payment"
	OrderPaid           OrderStatus = "paid"
	OrderPaymentFailed  OrderStatus = "payment_failed"
	OrderExpired        OrderStatus = "expired"
	OrderCancelled      OrderStatus = "cancelled"
)

type Product struct {
	ID             string
	Name           string
	PricingModel   pricing.Model
	BasePrice      int64
	DepositPerUnit int64
	TotalQuantity  int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Reservation struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	StartDate calendar.Date
	EndDate   calendar.Date
	Status    ReservationStatus
	// ExpiresAt is set only while Status is held.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LiveAt reports whether r counts against inventory at now. Held rows stop counting once
// they expire, even before the sweep releases them.
func (r Reservation) LiveAt(now time.Time) bool {
	switch r.Status {
	case ReservationConfirmed:
		return true
	case ReservationHeld:
		return r.ExpiresAt == nil || r.ExpiresAt.After(now)
	}
	return false
}

func (r Reservation) Range() calendar.Range {
	return calendar.Range{Start: r.StartDate, End: r.EndDate}
}

// Order line items are frozen copies taken at checkout time.
type OrderLine struct {
	ID           string
	OrderID      string
	ProductID    string
	ProductName  string
	PricingModel pricing.Model
	UnitPrice    int64
	Quantity     int
	Days         int
	LineTotal    int64
	Deposit      int64
}

type Order struct {
	ID               string
	Code             string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	StartDate        calendar.Date
	EndDate          calendar.Date
	Delivery         bool
	Subtotal         int64
	TaxRateBps       int64
	Tax              int64
	DeliveryFee      int64
	DepositTotal     int64
	Total            int64
	Status           OrderStatus
	PaymentSessionID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Lines            []OrderLine
}

func (o Order) Range() calendar.Range {
	return calendar.Range{Start: o.StartDate, End: o.EndDate}
}

// AmountDue is the total plus refundable deposits.
func (o Order) AmountDue() int64 {
	return o.Total + o.DepositTotal
}

type Admin struct {
	ID           int
	Email        string
	PasswordHash string
}
