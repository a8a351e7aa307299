// Package pricing turns rental requests into money amounts.
//
// All amounts are integer minor currency units. Every computed amount is rounded once,
// half away from zero, and never re-rounded downstream. Functions here are pure and safe
// for concurrent use.
package pricing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"eventrental/internal/calendar"
	apperrors "eventrental/internal/errors"
)

// Model selects how a product's price scales with rental duration.
type Model string

const (
	PerDay  Model = "per_day"
	Flat    Model = "flat"
	Weekend Model = "weekend"
)

func (m Model) Valid() bool {
	switch m {
	case PerDay, Flat, Weekend:
		return true
	}
	return false
}

// DefaultDepositRate applies when a product has no per-unit deposit.
var DefaultDepositRate = decimal.New(20, -2)

// TaxRate is a fixed rate expressed in basis points (1/100 of a percent).
type TaxRate struct {
	name string
	bps  int64
}

// Checkout and invoice flows charge different fixed rates; callers pick theirs by name.
var (
	CheckoutTaxRate = TaxRate{name: "checkout", bps: 800}
	InvoiceTaxRate  = TaxRate{name: "invoice", bps: 825}
)

func (r TaxRate) Name() string       { return r.name }
func (r TaxRate) BasisPoints() int64 { return r.bps }

// Apply returns amount × rate rounded to the nearest minor unit.
func (r TaxRate) Apply(amount int64) int64 {
	return roundInt(decimal.NewFromInt(amount).Mul(decimal.New(r.bps, -4)))
}

func (r TaxRate) String() string {
	return fmt.Sprintf("%s (%s%%)", r.name, decimal.New(r.bps, -2).String())
}

// LineInput is everything needed to price one cart line.
type LineInput struct {
	Model          Model
	UnitPrice      int64
	DepositPerUnit int64
	Quantity       int
	Range          calendar.Range
}

// Line is a priced cart line.
type Line struct {
	Model     Model
	UnitPrice int64
	Quantity  int
	Days      int
	Total     int64
	Deposit   int64
}

// Quote prices one line. Invalid input is a caller bug and fails fast.
func Quote(in LineInput) (Line, error) {
	if in.Quantity <= 0 {
		return Line{}, fmt.Errorf("%w: got %d", apperrors.ErrInvalidQuantity, in.Quantity)
	}
	if err := in.Range.Validate(); err != nil {
		return Line{}, err
	}
	if in.UnitPrice < 0 || in.DepositPerUnit < 0 {
		return Line{}, apperrors.ErrNegativeAmount
	}

	days := in.Range.Days()
	qty := int64(in.Quantity)

	var total int64
	var err error
	switch in.Model {
	case Flat:
		total, err = mulAmount(in.UnitPrice, qty)
	case PerDay:
		total, err = mulAmount(in.UnitPrice, qty, int64(days))
	case Weekend:
		if WeekendOnly(in.Range) {
			total, err = mulAmount(in.UnitPrice, qty)
		} else {
			total, err = mulAmount(in.UnitPrice, qty, int64(days))
		}
	default:
		return Line{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownPricingModel, in.Model)
	}
	if err != nil {
		return Line{}, err
	}
	if _, err := mulAmount(in.DepositPerUnit, qty); err != nil {
		return Line{}, err
	}

	return Line{
		Model:     in.Model,
		UnitPrice: in.UnitPrice,
		Quantity:  in.Quantity,
		Days:      days,
		Total:     total,
		Deposit:   Deposit(in.DepositPerUnit, in.Quantity, total),
	}, nil
}

// MaxAmount bounds a single line total or deposit, in minor units. Order sums of many
// such lines stay well inside int64.
const MaxAmount = int64(1) << 48

// mulAmount multiplies non-negative factors, failing once the product passes MaxAmount.
func mulAmount(factors ...int64) (int64, error) {
	product := int64(1)
	for _, f := range factors {
		if f == 0 {
			return 0, nil
		}
		if product > MaxAmount/f {
			return 0, fmt.Errorf("%w: limit is %d", apperrors.ErrAmountTooLarge, MaxAmount)
		}
		product *= f
	}
	if product > MaxAmount {
		return 0, fmt.Errorf("%w: limit is %d", apperrors.ErrAmountTooLarge, MaxAmount)
	}
	return product, nil
}

// Deposit is depositPerUnit × quantity, or 20% of the line total when no deposit is set.
func Deposit(depositPerUnit int64, quantity int, lineTotal int64) int64 {
	if depositPerUnit > 0 {
		return depositPerUnit * int64(quantity)
	}
	return roundInt(decimal.NewFromInt(lineTotal).Mul(DefaultDepositRate))
}

// WeekendOnly reports whether every day of r is a Friday, Saturday or Sunday.
func WeekendOnly(r calendar.Range) bool {
	// Any four consecutive days include a Monday to Thursday.
	if r.Days() > 3 {
		return false
	}
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		switch d.Weekday() {
		case time.Friday, time.Saturday, time.Sunday:
		default:
			return false
		}
	}
	return true
}

// SummaryOptions configures order-level aggregation.
type SummaryOptions struct {
	TaxRate     TaxRate
	Delivery    bool
	DeliveryFee int64
}

// Summary holds order-level amounts. Deposits are tracked apart from the taxable total.
type Summary struct {
	Subtotal     int64
	TaxRateBps   int64
	Tax          int64
	DeliveryFee  int64
	DepositTotal int64
	Total        int64
}

// AmountDue is what is collected at checkout: the total plus refundable deposits.
func (s Summary) AmountDue() int64 {
	return s.Total + s.DepositTotal
}

// Summarize aggregates priced lines into order totals.
func Summarize(lines []Line, opts SummaryOptions) Summary {
	var sum Summary
	for _, l := range lines {
		sum.Subtotal += l.Total
		sum.DepositTotal += l.Deposit
	}
	sum.TaxRateBps = opts.TaxRate.BasisPoints()
	sum.Tax = opts.TaxRate.Apply(sum.Subtotal)
	if opts.Delivery {
		sum.DeliveryFee = opts.DeliveryFee
	}
	sum.Total = sum.Subtotal + sum.Tax + sum.DeliveryFee
	return sum
}

func roundInt(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
