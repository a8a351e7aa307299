package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"eventrental/internal/calendar"
	"eventrental/internal/entities"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/pricing"
	"eventrental/internal/service"
)

// UserHandler serves the storefront endpoints.
type UserHandler struct {
	availability *service.AvailabilityService
	checkout     *service.CheckoutService
	quotes       *service.QuoteService
	catalog      *service.AdminService
	logger       *zap.Logger
}

func NewUserHandler(availability *service.AvailabilityService, checkout *service.CheckoutService, quotes *service.QuoteService, catalog *service.AdminService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		availability: availability,
		checkout:     checkout,
		quotes:       quotes,
		catalog:      catalog,
		logger:       logger,
	}
}

func (h *UserHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *UserHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context(), true)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]entities.ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UserHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req entities.AvailabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, h.logger, apperrors.ErrBadRequest("product_id is required"))
		return
	}
	if err := validateIDs(req.ProductID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	free, err := h.availability.FreeQuantity(r.Context(), req.ProductID, calendar.Range{Start: req.StartDate, End: req.EndDate})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.AvailabilityResponse{
		ProductID:    req.ProductID,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		FreeQuantity: free,
	})
}

func (h *UserHandler) CheckCart(w http.ResponseWriter, r *http.Request) {
	var req entities.CartAvailabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateIDs(itemIDs(req.Items)...); err != nil {
		writeError(w, h.logger, err)
		return
	}
	shortages, err := h.availability.ValidateCart(r.Context(), req.Items, calendar.Range{Start: req.StartDate, End: req.EndDate})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if shortages == nil {
		shortages = []entities.Shortage{}
	}
	writeJSON(w, http.StatusOK, entities.CartAvailabilityResponse{
		Available: len(shortages) == 0,
		Shortages: shortages,
	})
}

func (h *UserHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req entities.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateIDs(itemIDs(req.Items)...); err != nil {
		writeError(w, h.logger, err)
		return
	}
	quote, err := h.quotes.Quote(r.Context(), req, pricing.CheckoutTaxRate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *UserHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req entities.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateIDs(itemIDs(req.Items)...); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.CheckoutResponse{
		OrderID:     res.Order.ID,
		Code:        res.Order.Code,
		CheckoutURL: res.Session.URL,
		SessionID:   res.Session.ID,
		AmountDue:   res.Order.AmountDue(),
	})
}

// GetOrder looks an order up by code. The email used at checkout acts as the password.
func (h *UserHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, h.logger, apperrors.ErrBadRequest("email is required"))
		return
	}
	order, err := h.checkout.GetOrderByCode(r.Context(), code, email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}
