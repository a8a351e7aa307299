package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"eventrental/internal/auth"
)

type Handlers struct {
	User      *UserHandler
	Admin     *AdminHandler
	AdminAuth *AdminAuthHandler
	Stripe    *StripeWebhookHandler
}

// NewRouter wires every route. Admin routes other than login need a JWT signed with jwtSecret.
func NewRouter(h Handlers, jwtSecret string) *mux.Router {
	r := mux.NewRouter()

	// Public endpoints
	r.HandleFunc("/api/health", h.User.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/products", h.User.ListProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/availability", h.User.CheckAvailability).Methods(http.MethodPost)
	r.HandleFunc("/api/availability/cart", h.User.CheckCart).Methods(http.MethodPost)
	r.HandleFunc("/api/quote", h.User.Quote).Methods(http.MethodPost)
	r.HandleFunc("/api/checkout", h.User.Checkout).Methods(http.MethodPost)
	r.HandleFunc("/api/orders/{code}", h.User.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/webhooks/stripe", h.Stripe.HandleWebhook).Methods(http.MethodPost)

	r.HandleFunc("/admin/login", h.AdminAuth.Login).Methods(http.MethodPost)

	// Admin endpoints (protected)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(auth.AdminAuthMiddleware(jwtSecret))
	admin.HandleFunc("/orders", h.Admin.ListOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/cancel", h.Admin.CancelOrder).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", h.Admin.UpsertProduct).Methods(http.MethodPut)
	admin.HandleFunc("/invoices/quote", h.Admin.InvoiceQuote).Methods(http.MethodPost)
	admin.HandleFunc("/jobs/sweep", h.Admin.RunSweep).Methods(http.MethodPost)

	return r
}
