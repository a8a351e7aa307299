package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventrental/internal/clock"
	"eventrental/internal/db"
	"eventrental/internal/entities"
	"eventrental/internal/pricing"
	"eventrental/internal/repository"
	"eventrental/internal/service"
)

const (
	jwtSecret     = "router-test-secret"
	webhookSecret = "whsec_test"
	tentID        = "5f0c2d1a-7b3e-4f6a-9c8d-000000000001"
	chairID       = "5f0c2d1a-7b3e-4f6a-9c8d-000000000002"
)

type stubGateway struct{}

func (stubGateway) CreateCheckoutSession(_ context.Context, req service.PaymentRequest) (service.PaymentSession, error) {
	return service.PaymentSession{ID: "cs_test_" + req.OrderCode, URL: "https://checkout.stripe.test/" + req.OrderCode}, nil
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) NotifyOrderConfirmed(context.Context, *db.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

type testServer struct {
	router   *mux.Router
	store    *repository.MemoryStore
	notifier *countingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.UpsertProduct(ctx, &db.Product{
		ID: tentID, Name: "Party tent", PricingModel: pricing.PerDay, BasePrice: 4500, DepositPerUnit: 1000, TotalQuantity: 5, Active: true,
	}))
	require.NoError(t, store.UpsertProduct(ctx, &db.Product{
		ID: chairID, Name: "Folding chair", PricingModel: pricing.Flat, BasePrice: 300, TotalQuantity: 100,
	}))

	notifier := &countingNotifier{}
	availability := service.NewAvailabilityService(store, logger)
	checkout := service.NewCheckoutService(store, availability, stubGateway{}, notifier, logger)
	quotes := service.NewQuoteService(store, 7500)
	catalog := service.NewAdminService(store)
	adminAuth := service.NewAdminAuthService(store, jwtSecret, clock.NewSystem())
	require.NoError(t, adminAuth.CreateAdmin(ctx, "boss@example.com", "hunter22"))
	jobs := service.NewJobService(availability, logger)

	router := NewRouter(Handlers{
		User:      NewUserHandler(availability, checkout, quotes, catalog, logger),
		Admin:     NewAdminHandler(checkout, catalog, quotes, jobs, logger),
		AdminAuth: NewAdminAuthHandler(adminAuth, logger),
		Stripe:    NewStripeWebhookHandler(webhookSecret, checkout, logger),
	}, jwtSecret)
	return &testServer{router: router, store: store, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return token
}

func checkoutBody(qty int) map[string]any {
	return map[string]any{
		"items":          []map[string]any{{"product_id": tentID, "quantity": qty}},
		"start_date":     "2024-03-10",
		"end_date":       "2024-03-12",
		"customer_name":  "Ana Lopez",
		"customer_email": "ana@example.com",
	}
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_ListProductsOnlyActive(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/products", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	products := decode[[]entities.ProductResponse](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "Party tent", products[0].Name)
	assert.Equal(t, "per_day", products[0].PricingModel)
}

func TestRouter_Availability(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/checkout", checkoutBody(3), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/availability", map[string]any{
		"product_id": tentID, "start_date": "2024-03-11", "end_date": "2024-03-13",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[entities.AvailabilityResponse](t, rec).FreeQuantity)

	rec = s.do(t, http.MethodPost, "/api/availability/cart", map[string]any{
		"items":      []map[string]any{{"product_id": tentID, "quantity": 3}},
		"start_date": "2024-03-11",
		"end_date":   "2024-03-13",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cart := decode[entities.CartAvailabilityResponse](t, rec)
	assert.False(t, cart.Available)
	require.Len(t, cart.Shortages, 1)
	assert.Equal(t, 3, cart.Shortages[0].Requested)
	assert.Equal(t, 2, cart.Shortages[0].Available)

	rec = s.do(t, http.MethodPost, "/api/availability/cart", map[string]any{
		"items":      []map[string]any{{"product_id": tentID, "quantity": 1}},
		"start_date": "2024-03-13",
		"end_date":   "2024-03-14",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":true,"shortages":[]}`, rec.Body.String())
}

func TestRouter_RequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"malformed json", "/api/checkout", `{"items": [`, http.StatusBadRequest},
		{"unknown field", "/api/quote", `{"items": [], "coupon": "FREE"}`, http.StatusBadRequest},
		{"non-uuid product", "/api/quote", map[string]any{
			"items": []map[string]any{{"product_id": "tent", "quantity": 1}}, "start_date": "2024-03-10", "end_date": "2024-03-10",
		}, http.StatusBadRequest},
		{"inverted dates", "/api/quote", map[string]any{
			"items": []map[string]any{{"product_id": tentID, "quantity": 1}}, "start_date": "2024-03-12", "end_date": "2024-03-10",
		}, http.StatusBadRequest},
		{"zero quantity", "/api/checkout", map[string]any{
			"items": []map[string]any{{"product_id": tentID, "quantity": 0}}, "start_date": "2024-03-10", "end_date": "2024-03-10",
			"customer_email": "ana@example.com",
		}, http.StatusBadRequest},
		{"unknown product", "/api/quote", map[string]any{
			"items": []map[string]any{{"product_id": "5f0c2d1a-7b3e-4f6a-9c8d-0000000000ff", "quantity": 1}}, "start_date": "2024-03-10", "end_date": "2024-03-10",
		}, http.StatusNotFound},
		{"inactive product", "/api/checkout", map[string]any{
			"items": []map[string]any{{"product_id": chairID, "quantity": 1}}, "start_date": "2024-03-10", "end_date": "2024-03-10",
			"customer_email": "ana@example.com",
		}, http.StatusNotFound},
		{"missing product id", "/api/availability", map[string]any{"start_date": "2024-03-10", "end_date": "2024-03-10"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.status, decode[errorResponse](t, rec).Code)
		})
	}
}

func TestRouter_Quote(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/quote", map[string]any{
		"items":      []map[string]any{{"product_id": tentID, "quantity": 2}},
		"start_date": "2024-03-10",
		"end_date":   "2024-03-12",
		"delivery":   true,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	quote := decode[entities.QuoteResponse](t, rec)
	assert.Equal(t, int64(27000), quote.Subtotal)
	assert.Equal(t, int64(800), quote.TaxRateBps)
	assert.Equal(t, int64(2160), quote.Tax)
	assert.Equal(t, int64(7500), quote.DeliveryFee)
	assert.Equal(t, int64(36660), quote.Total)
	assert.Equal(t, int64(38660), quote.AmountDue)
}

func TestRouter_CheckoutAndLookup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/checkout", checkoutBody(5), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[entities.CheckoutResponse](t, rec)
	assert.NotEmpty(t, created.OrderID)
	assert.Equal(t, "cs_test_"+created.Code, created.SessionID)
	assert.Contains(t, created.CheckoutURL, created.Code)

	rec = s.do(t, http.MethodPost, "/api/checkout", checkoutBody(1), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[errorResponse](t, rec)
	require.Len(t, conflict.Shortages, 1)
	assert.Equal(t, tentID, conflict.Shortages[0].ProductID)
	assert.Zero(t, conflict.Shortages[0].Available)

	rec = s.do(t, http.MethodGet, "/api/orders/"+created.Code, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders/"+created.Code+"?email=someone@else.com", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/orders/"+created.Code+"?email=ANA@example.com", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[entities.OrderResponse](t, rec)
	assert.Equal(t, created.OrderID, order.ID)
	assert.Equal(t, string(db.OrderPendingPayment), order.Status)
	assert.Equal(t, created.AmountDue, order.Total+order.DepositTotal)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Days)
}

func TestRouter_AdminRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/admin/orders"},
		{http.MethodPost, "/admin/orders/" + tentID + "/cancel"},
		{http.MethodPut, "/admin/products/" + tentID},
		{http.MethodPost, "/admin/invoices/quote"},
		{http.MethodPost, "/admin/jobs/sweep"},
	}
	for _, rt := range routes {
		rec := s.do(t, rt.method, rt.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)

		rec = s.do(t, rt.method, rt.path, nil, "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, rt.path)
	}
}

func TestRouter_AdminLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admin/login", map[string]string{"email": "boss@example.com", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/login", map[string]string{"email": "boss@example.com", "password": "hunter22"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[LoginResponse](t, rec).Token
	require.NotEmpty(t, token)

	rec = s.do(t, http.MethodGet, "/admin/orders", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AdminOrders(t *testing.T) {
	s := newTestServer(t)
	token := adminToken(t)

	rec := s.do(t, http.MethodPost, "/api/checkout", checkoutBody(5), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[entities.CheckoutResponse](t, rec)

	rec = s.do(t, http.MethodGet, "/admin/orders?status=pending_payment", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[entities.OrdersList](t, rec)
	assert.Equal(t, 1, list.Total)

	rec = s.do(t, http.MethodPost, "/admin/orders/not-an-id/cancel", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/orders/"+created.OrderID+"/cancel", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(db.OrderCancelled), decode[entities.OrderResponse](t, rec).Status)

	// Inventory is free again.
	rec = s.do(t, http.MethodPost, "/api/checkout", checkoutBody(5), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[entities.CheckoutResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/webhooks/stripe", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	paid := stripeEvent(t, "checkout.session.completed", fmt.Sprintf(
		`{"id":"cs_1","object":"checkout.session","client_reference_id":%q,"payment_status":"paid"}`, second.OrderID))
	rec = s.webhook(t, paid)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/orders/"+second.OrderID+"/cancel", nil, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/admin/orders/"+tentID+"/cancel", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AdminCatalogAndInvoices(t *testing.T) {
	s := newTestServer(t)
	token := adminToken(t)
	lightsID := "5f0c2d1a-7b3e-4f6a-9c8d-000000000003"

	rec := s.do(t, http.MethodPut, "/admin/products/"+lightsID, map[string]any{
		"name": "String lights", "pricing_model": "weekend", "base_price": 2500, "total_quantity": 30,
	}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	product := decode[entities.ProductResponse](t, rec)
	assert.True(t, product.Active)
	assert.Equal(t, lightsID, product.ID)

	rec = s.do(t, http.MethodPut, "/admin/products/"+lightsID, map[string]any{
		"name": "String lights", "pricing_model": "hourly", "base_price": 2500, "total_quantity": 30,
	}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/admin/products/lights", map[string]any{"name": "x"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products", nil, "")
	assert.Len(t, decode[[]entities.ProductResponse](t, rec), 2)

	rec = s.do(t, http.MethodPost, "/admin/invoices/quote", map[string]any{
		"items":      []map[string]any{{"product_id": tentID, "quantity": 1}},
		"start_date": "2024-03-10",
		"end_date":   "2024-03-12",
	}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[entities.QuoteResponse](t, rec)
	assert.Equal(t, int64(825), quote.TaxRateBps)
	assert.Equal(t, int64(1114), quote.Tax)

	rec = s.do(t, http.MethodPost, "/admin/jobs/sweep", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"released":0}`, rec.Body.String())
}
