package entities

import "eventrental/internal/calendar"

type CheckoutRequest struct {
	Items         []CartItem    `json:"items"`
	StartDate     calendar.Date `json:"start_date"`
	EndDate       calendar.Date `json:"end_date"`
	Delivery      bool          `json:"delivery"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	CustomerPhone string        `json:"customer_phone"`
}

type CheckoutResponse struct {
	OrderID     string `json:"order_id"`
	Code        string `json:"code"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	AmountDue   int64  `json:"amount_due"`
}
