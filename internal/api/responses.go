package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventrental/internal/db"
	"eventrental/internal/entities"
	apperrors "eventrental/internal/errors"
)

const maxBodyBytes = int64(1 << 20)

type errorResponse struct {
	Code      int                 `json:"code"`
	Message   string              `json:"message"`
	Shortages []entities.Shortage `json:"shortages,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrap(http.StatusBadRequest, "invalid request body", err)
	}
	return nil
}

// writeError maps err to a status code. Unexpected errors are logged and hidden.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if se, ok := apperrors.AsShortage(err); ok {
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:      http.StatusConflict,
			Message:   "some items are not available for the selected dates",
			Shortages: se.Shortages,
		})
		return
	}

	var httpErr *apperrors.HTTPError
	if errors.As(err, &httpErr) {
		writeJSON(w, httpErr.Code, errorResponse{Code: httpErr.Code, Message: httpErr.Message})
		return
	}

	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else if status == http.StatusServiceUnavailable {
		logger.Warn("transient failure", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrContention):
		return http.StatusServiceUnavailable, apperrors.ErrContention.Error()
	case errors.Is(err, apperrors.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable, apperrors.ErrPaymentUnavailable.Error()
	case errors.Is(err, apperrors.ErrProductNotFound),
		errors.Is(err, apperrors.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrOrderNotCancellable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, apperrors.ErrInvalidQuantity),
		errors.Is(err, apperrors.ErrInvalidDateRange),
		errors.Is(err, apperrors.ErrNegativeAmount),
		errors.Is(err, apperrors.ErrAmountTooLarge),
		errors.Is(err, apperrors.ErrUnknownPricingModel),
		errors.Is(err, apperrors.ErrEmptyCart),
		errors.Is(err, apperrors.ErrMissingCustomerEmail),
		errors.Is(err, apperrors.ErrMissingProductName):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// validateIDs rejects ids the database would fail to cast to uuid.
func validateIDs(ids ...string) error {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return apperrors.ErrBadRequest(fmt.Sprintf("invalid id %q", id))
		}
	}
	return nil
}

func itemIDs(items []entities.CartItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func productResponse(p db.Product) entities.ProductResponse {
	return entities.ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		PricingModel:   string(p.PricingModel),
		BasePrice:      p.BasePrice,
		DepositPerUnit: p.DepositPerUnit,
		TotalQuantity:  p.TotalQuantity,
		Active:         p.Active,
	}
}

func orderResponse(o *db.Order) entities.OrderResponse {
	lines := make([]entities.QuoteLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, entities.QuoteLine{
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
	return entities.OrderResponse{
		ID:            o.ID,
		Code:          o.Code,
		Status:        string(o.Status),
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		StartDate:     o.StartDate,
		EndDate:       o.EndDate,
		Delivery:      o.Delivery,
		Lines:         lines,
		Subtotal:      o.Subtotal,
		TaxRateBps:    o.TaxRateBps,
		Tax:           o.Tax,
		DeliveryFee:   o.DeliveryFee,
		DepositTotal:  o.DepositTotal,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
}
