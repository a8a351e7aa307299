package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"eventrental/internal/db"
	"eventrental/internal/entities"
	apperrors "eventrental/internal/errors"
	"eventrental/internal/pricing"
	"eventrental/internal/service"
)

type sweepRunner interface {
	ReleaseExpiredHolds(ctx context.Context) (int, error)
}

type AdminHandler struct {
	checkout *service.CheckoutService
	catalog  *service.AdminService
	quotes   *service.QuoteService
	jobs     sweepRunner
	logger   *zap.Logger
}

func NewAdminHandler(checkout *service.CheckoutService, catalog *service.AdminService, quotes *service.QuoteService, jobs sweepRunner, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{checkout: checkout, catalog: catalog, quotes: quotes, jobs: jobs, logger: logger}
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := db.OrderStatus(r.URL.Query().Get("status"))
	orders, err := h.checkout.ListOrders(r.Context(), status)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	list := entities.OrdersList{Total: len(orders), Orders: make([]entities.OrderResponse, 0, len(orders))}
	for i := range orders {
		list.Orders = append(list.Orders, orderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validateIDs(id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	order, err := h.checkout.CancelOrder(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(order))
}

func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, apperrors.ErrBadRequest("product id must be a uuid"))
		return
	}
	var req entities.ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p := &db.Product{
		ID:             id.String(),
		Name:           req.Name,
		PricingModel:   pricing.Model(req.PricingModel),
		BasePrice:      req.BasePrice,
		DepositPerUnit: req.DepositPerUnit,
		TotalQuantity:  req.TotalQuantity,
		Active:         req.Active == nil || *req.Active,
	}
	if err := h.catalog.UpsertProduct(r.Context(), p); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse(*p))
}

// InvoiceQuote prices a cart for a written invoice, which carries its own tax rate.
func (h *AdminHandler) InvoiceQuote(w http.ResponseWriter, r *http.Request) {
	var req entities.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := validateIDs(itemIDs(req.Items)...); err != nil {
		writeError(w, h.logger, err)
		return
	}
	quote, err := h.quotes.Quote(r.Context(), req, pricing.InvoiceTaxRate)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	released, err := h.jobs.ReleaseExpiredHolds(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}
