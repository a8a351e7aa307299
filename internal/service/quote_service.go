package service

import (
	"context"
	"fmt"

	"eventrental/internal/calendar"
	"eventrental/internal/db"
	"eventrental/internal/entities"
	"eventrental/internal/pricing"
)

type ProductReader interface {
	GetProducts(ctx context.Context, ids []string) (map[string]db.Product, error)
}

// QuoteService prices carts without reserving anything.
type QuoteService struct {
	products    ProductReader
	deliveryFee int64
}

func NewQuoteService(products ProductReader, deliveryFee int64) *QuoteService {
	return &QuoteService{products: products, deliveryFee: deliveryFee}
}

// Quote prices req at rate using current catalog prices.
func (s *QuoteService) Quote(ctx context.Context, req entities.QuoteRequest, rate pricing.TaxRate) (*entities.QuoteResponse, error) {
	rng := calendar.Range{Start: req.StartDate, End: req.EndDate}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	_, ids, err := combineItems(req.Items)
	if err != nil {
		return nil, err
	}
	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := requireProducts(products, ids); err != nil {
		return nil, err
	}

	lines, summary, err := priceCart(products, req.Items, rng, pricing.SummaryOptions{
		TaxRate:     rate,
		Delivery:    req.Delivery,
		DeliveryFee: s.deliveryFee,
	})
	if err != nil {
		return nil, err
	}
	return quoteResponse(lines, summary), nil
}

// priceCart prices each item with the given product rows. Products must already be
// checked present.
func priceCart(products map[string]db.Product, items []entities.CartItem, rng calendar.Range, opts pricing.SummaryOptions) ([]db.OrderLine, pricing.Summary, error) {
	lines := make([]db.OrderLine, 0, len(items))
	priced := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		p := products[item.ProductID]
		line, err := pricing.Quote(pricing.LineInput{
			Model:          p.PricingModel,
			UnitPrice:      p.BasePrice,
			DepositPerUnit: p.DepositPerUnit,
			Quantity:       item.Quantity,
			Range:          rng,
		})
		if err != nil {
			return nil, pricing.Summary{}, fmt.Errorf("price %s: %w", p.Name, err)
		}
		priced = append(priced, line)
		lines = append(lines, db.OrderLine{
			ProductID:    p.ID,
			ProductName:  p.Name,
			PricingModel: line.Model,
			UnitPrice:    line.UnitPrice,
			Quantity:     line.Quantity,
			Days:         line.Days,
			LineTotal:    line.Total,
			Deposit:      line.Deposit,
		})
	}
	return lines, pricing.Summarize(priced, opts), nil
}

func quoteLines(lines []db.OrderLine) []entities.QuoteLine {
	out := make([]entities.QuoteLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, entities.QuoteLine{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			PricingModel: string(l.PricingModel),
			UnitPrice:    l.UnitPrice,
			Quantity:     l.Quantity,
			Days:         l.Days,
			LineTotal:    l.LineTotal,
			Deposit:      l.Deposit,
		})
	}
	return out
}

func quoteResponse(lines []db.OrderLine, sum pricing.Summary) *entities.QuoteResponse {
	return &entities.QuoteResponse{
		Lines:        quoteLines(lines),
		Subtotal:     sum.Subtotal,
		TaxRateBps:   sum.TaxRateBps,
		Tax:          sum.Tax,
		DeliveryFee:  sum.DeliveryFee,
		DepositTotal: sum.DepositTotal,
		Total:        sum.Total,
		AmountDue:    sum.AmountDue(),
	}
}
