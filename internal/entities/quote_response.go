package entities

import "eventrental/internal/calendar"

type QuoteRequest struct {
	Items     []CartItem    `json:"items"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
	Delivery  bool          `json:"delivery"`
}

type QuoteLine struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	PricingModel string `json:"pricing_model"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	Days         int    `json:"days"`
	LineTotal    int64  `json:"line_total"`
	Deposit      int64  `json:"deposit"`
}

// QuoteResponse carries amounts in minor currency units.
type QuoteResponse struct {
	Lines        []QuoteLine `json:"lines"`
	Subtotal     int64       `json:"subtotal"`
	TaxRateBps   int64       `json:"tax_rate_bps"`
	Tax          int64       `json:"tax"`
	DeliveryFee  int64       `json:"delivery_fee"`
	DepositTotal int64       `json:"deposit_total"`
	Total        int64       `json:"total"`
	AmountDue    int64       `json:"amount_due"`
}
