package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrental/internal/calendar"
	apperrors "eventrental/internal/errors"
)

func day(month time.Month, d int) calendar.Date {
	return calendar.NewDate(2024, month, d)
}

func span(start, end calendar.Date) calendar.Range {
	return calendar.Range{Start: start, End: end}
}

func TestQuote_IsDeterministic(t *testing.T) {
	in := LineInput{Model: PerDay, UnitPrice: 1999, Quantity: 3, Range: span(day(time.March, 10), day(time.March, 12))}
	first, err := Quote(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Quote(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQuote_FlatIgnoresRangeLength(t *testing.T) {
	start := day(time.March, 4)
	for days := 0; days < 10; days++ {
		line, err := Quote(LineInput{Model: Flat, UnitPrice: 25000, Quantity: 2, Range: span(start, start.AddDays(days))})
		require.NoError(t, err)
		assert.Equal(t, int64(50000), line.Total, "days=%d", days+1)
	}
}

func TestQuote_PerDayScalesWithDays(t *testing.T) {
	start := day(time.March, 4)
	for days := 1; days <= 10; days++ {
		line, err := Quote(LineInput{Model: PerDay, UnitPrice: 1200, Quantity: 3, Range: span(start, start.AddDays(days-1))})
		require.NoError(t, err)
		assert.Equal(t, days, line.Days)
		assert.Equal(t, int64(1200*3*days), line.Total)
	}
}

func TestQuote_SingleDayChargesOneDay(t *testing.T) {
	d := day(time.March, 6)
	line, err := Quote(LineInput{Model: PerDay, UnitPrice: 800, Quantity: 1, Range: span(d, d)})
	require.NoError(t, err)
	assert.Equal(t, 1, line.Days)
	assert.Equal(t, int64(800), line.Total)
}

func TestQuote_Weekend(t *testing.T) {
	friday := day(time.March, 8)

	tests := []struct {
		name  string
		rng   calendar.Range
		total int64
	}{
		{"friday to sunday is bundled", span(friday, friday.AddDays(2)), 10000 * 2},
		{"saturday only is bundled", span(friday.AddDays(1), friday.AddDays(1)), 10000 * 2},
		{"friday to monday falls back to per day", span(friday, friday.AddDays(3)), 10000 * 2 * 4},
		{"thursday to sunday falls back to per day", span(friday.AddDays(-1), friday.AddDays(2)), 10000 * 2 * 4},
		{"single weekday falls back to per day", span(friday.AddDays(-2), friday.AddDays(-2)), 10000 * 2},
		{"sunday to monday falls back to per day", span(friday.AddDays(2), friday.AddDays(3)), 10000 * 2 * 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := Quote(LineInput{Model: Weekend, UnitPrice: 10000, Quantity: 2, Range: tt.rng})
			require.NoError(t, err)
			assert.Equal(t, tt.total, line.Total)
		})
	}
}

func TestWeekendOnly(t *testing.T) {
	friday := day(time.March, 8)
	assert.True(t, WeekendOnly(span(friday, friday.AddDays(2))))
	assert.False(t, WeekendOnly(span(friday, friday.AddDays(3))))
	assert.False(t, WeekendOnly(span(friday.AddDays(7), friday.AddDays(14))))
}

func TestQuote_DefaultDepositIsTwentyPercent(t *testing.T) {
	d := day(time.March, 6)
	line, err := Quote(LineInput{Model: PerDay, UnitPrice: 4500, Quantity: 2, Range: span(d, d)})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), line.Total)
	assert.Equal(t, int64(1800), line.Deposit)
}

func TestQuote_PerUnitDeposit(t *testing.T) {
	d := day(time.March, 6)
	line, err := Quote(LineInput{Model: PerDay, UnitPrice: 4500, DepositPerUnit: 1500, Quantity: 3, Range: span(d, d.AddDays(1))})
	require.NoError(t, err)
	assert.Equal(t, int64(27000), line.Total)
	assert.Equal(t, int64(4500), line.Deposit)
}

func TestDeposit_RoundsToNearestCent(t *testing.T) {
	assert.Equal(t, int64(0), Deposit(0, 1, 2))
	assert.Equal(t, int64(1), Deposit(0, 1, 3))
	assert.Equal(t, int64(8), Deposit(0, 1, 38)) // 7.6
	assert.Equal(t, int64(3), Deposit(0, 1, 13)) // 2.6
	assert.Equal(t, int64(1), Deposit(0, 1, 5))  // 1.0
}

func TestQuote_RejectsInvalidInput(t *testing.T) {
	d := day(time.March, 6)
	valid := LineInput{Model: PerDay, UnitPrice: 100, Quantity: 1, Range: span(d, d)}

	tests := []struct {
		name   string
		mutate func(*LineInput)
		want   error
	}{
		{"zero quantity", func(in *LineInput) { in.Quantity = 0 }, apperrors.ErrInvalidQuantity},
		{"negative quantity", func(in *LineInput) { in.Quantity = -2 }, apperrors.ErrInvalidQuantity},
		{"end before start", func(in *LineInput) { in.Range = span(d, d.AddDays(-1)) }, apperrors.ErrInvalidDateRange},
		{"missing end", func(in *LineInput) { in.Range.End = calendar.Date{} }, apperrors.ErrInvalidDateRange},
		{"negative price", func(in *LineInput) { in.UnitPrice = -1 }, apperrors.ErrNegativeAmount},
		{"negative deposit", func(in *LineInput) { in.DepositPerUnit = -1 }, apperrors.ErrNegativeAmount},
		{"unknown model", func(in *LineInput) { in.Model = "hourly" }, apperrors.ErrUnknownPricingModel},
		{"total overflows int64", func(in *LineInput) { in.UnitPrice = math.MaxInt64 / 2; in.Quantity = 3 }, apperrors.ErrAmountTooLarge},
		{"long range overflows", func(in *LineInput) {
			in.UnitPrice = 1 << 40
			in.Range = span(d, d.AddDays(1000))
		}, apperrors.ErrAmountTooLarge},
		{"deposit overflows", func(in *LineInput) { in.DepositPerUnit = math.MaxInt64 / 4; in.Quantity = 5 }, apperrors.ErrAmountTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := Quote(in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestQuote_AmountLimit(t *testing.T) {
	d := day(time.March, 6)
	line, err := Quote(LineInput{Model: Flat, UnitPrice: MaxAmount / 4, Quantity: 4, Range: span(d, d)})
	require.NoError(t, err)
	assert.Equal(t, MaxAmount, line.Total)

	_, err = Quote(LineInput{Model: Flat, UnitPrice: MaxAmount/4 + 1, Quantity: 4, Range: span(d, d)})
	assert.ErrorIs(t, err, apperrors.ErrAmountTooLarge)

	line, err = Quote(LineInput{Model: PerDay, UnitPrice: 0, Quantity: math.MaxInt32, Range: span(d, d.AddDays(30))})
	require.NoError(t, err)
	assert.Zero(t, line.Total)
}

func TestTaxRates(t *testing.T) {
	assert.Equal(t, int64(800), CheckoutTaxRate.BasisPoints())
	assert.Equal(t, int64(825), InvoiceTaxRate.BasisPoints())
	assert.Equal(t, int64(80), CheckoutTaxRate.Apply(1000))
	assert.Equal(t, int64(83), InvoiceTaxRate.Apply(1000)) // 82.5 rounds up
	assert.Equal(t, int64(0), CheckoutTaxRate.Apply(0))
	assert.Equal(t, "invoice (8.25%)", InvoiceTaxRate.String())
}

func TestSummarize(t *testing.T) {
	lines := []Line{
		{Total: 9000, Deposit: 1800},
		{Total: 25000, Deposit: 5000},
	}

	sum := Summarize(lines, SummaryOptions{TaxRate: CheckoutTaxRate, Delivery: true, DeliveryFee: 7500})
	assert.Equal(t, int64(34000), sum.Subtotal)
	assert.Equal(t, int64(2720), sum.Tax)
	assert.Equal(t, int64(7500), sum.DeliveryFee)
	assert.Equal(t, int64(34000+2720+7500), sum.Total)
	assert.Equal(t, int64(6800), sum.DepositTotal)
	assert.Equal(t, sum.Total+6800, sum.AmountDue())
	assert.Equal(t, int64(800), sum.TaxRateBps)

	noDelivery := Summarize(lines, SummaryOptions{TaxRate: InvoiceTaxRate, DeliveryFee: 7500})
	assert.Zero(t, noDelivery.DeliveryFee)
	assert.Equal(t, int64(2805), noDelivery.Tax)
	assert.Equal(t, int64(34000+2805), noDelivery.Total)
}

func TestModel_Valid(t *testing.T) {
	assert.True(t, PerDay.Valid())
	assert.True(t, Flat.Valid())
	assert.True(t, Weekend.Valid())
	assert.False(t, Model("hourly").Valid())
}
