package entities

import "eventrental/internal/calendar"

// CartItem is one requested product and quantity; the date range is carried by the request.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Shortage names a product whose requested quantity exceeds what is free for the dates.
type Shortage struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

type AvailabilityRequest struct {
	ProductID string        `json:"product_id"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
}

type AvailabilityResponse struct {
	ProductID    string        `json:"product_id"`
	StartDate    calendar.Date `json:"start_date"`
	EndDate      calendar.Date `json:"end_date"`
	FreeQuantity int           `json:"free_quantity"`
}

type CartAvailabilityRequest struct {
	Items     []CartItem    `json:"items"`
	StartDate calendar.Date `json:"start_date"`
	EndDate   calendar.Date `json:"end_date"`
}

type CartAvailabilityResponse struct {
	Available bool       `json:"available"`
	Shortages []Shortage `json:"shortages"`
}
