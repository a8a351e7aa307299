package entities

// ProductResponse carries prices in minor currency units.
type ProductResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PricingModel   string `json:"pricing_model"`
	BasePrice      int64  `json:"base_price"`
	DepositPerUnit int64  `json:"deposit_per_unit"`
	TotalQuantity  int    `json:"total_quantity"`
	Active         bool   `json:"active"`
}

type ProductRequest struct {
	Name           string `json:"name"`
	PricingModel   string `json:"pricing_model"`
	BasePrice      int64  `json:"base_price"`
	DepositPerUnit int64  `json:"deposit_per_unit"`
	TotalQuantity  int    `json:"total_quantity"`
	Active         *bool  `json:"active"`
}
