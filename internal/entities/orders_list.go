package entities

import (
	"time"

	"eventrental/internal/calendar"
)

type OrderResponse struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	Status        string        `json:"status"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	StartDate     calendar.Date `json:"start_date"`
	EndDate       calendar.Date `json:"end_date"`
	Delivery      bool          `json:"delivery"`
	Lines         []QuoteLine   `json:"lines"`
	Subtotal      int64         `json:"subtotal"`
	TaxRateBps    int64         `json:"tax_rate_bps"`
	Tax           int64         `json:"tax"`
	DeliveryFee   int64         `json:"delivery_fee"`
	DepositTotal  int64         `json:"deposit_total"`
	Total         int64         `json:"total"`
	CreatedAt     time.Time     `json:"created_at"`
}

type OrdersList struct {
	Total  int             `json:"total"`
	Orders []OrderResponse `json:"orders"`
}
