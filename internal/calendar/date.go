// Package calendar provides timezone-free calendar dates and inclusive date ranges.
package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Layout is the wire and storage format of a Date.
const Layout = "2006-01-02"

// ErrInvalidRange is returned for ranges with a missing bound or an end before the start.
var ErrInvalidRange = errors.New("end date must not be before start date")

// Date is a calendar day with no time of day and no timezone.
// The zero value is not a valid date; use IsZero to detect it.
type Date struct {
	t time.Time
}

// NewDate returns the date for year, month and day, normalizing overflow like time.Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(Layout)
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the number of calendar days from d to o.
func (d Date) DaysUntil(o Date) int {
	// time.Duration saturates after about 292 years, Unix seconds do not.
	return int((o.t.Unix() - d.t.Unix()) / 86400)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so dates bind to DATE columns as plain strings.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into calendar.Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(Layout) {
		s = s[:len(Layout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Range is an inclusive span of calendar days. Start is never after End.
type Range struct {
	Start Date `json:"start_date"`
	End   Date `json:"end_date"`
}

// NewRange validates and returns the inclusive range [start, end].
func NewRange(start, end Date) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate reports ErrInvalidRange for missing dates or end before start.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, r.End, r.Start)
	}
	return nil
}

// Days is the inclusive day count, minimum 1.
func (r Range) Days() int {
	n := r.Start.DaysUntil(r.End) + 1
	if n < 1 {
		return 1
	}
	return n
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (r Range) Overlaps(o Range) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Contains reports whether d falls within the range.
func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
