package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/authz"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
)

const (
	adminToken = "admin-token"
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

func fakeValidator(token string) (*middleware.Claims, error) {
	switch token {
	case adminToken:
		return &middleware.Claims{UserID: "u-admin", Name: "Admin", IsAdmin: true}, nil
	case aliceToken:
		return &middleware.Claims{UserID: "u-alice", Name: "Alice"}, nil
	case bobToken:
		return &middleware.Claims{UserID: "u-bob", Name: "Bob"}, nil
	default:
		return nil, errors.New("bad token")
	}
}

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	log := logger.Discard()
	gate, err := authz.NewGate(nil)
	require.NoError(t, err)

	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	reviews := memory.NewReviewRepository(store)
	orders := memory.NewOrderRepository(store)

	productSvc := service.NewProductService(products, nil, nil, gate, log)
	reviewSvc := service.NewReviewService(products, reviews, nil, nil, gate, service.DefaultRetryPolicy(), log)
	orderSvc := service.NewOrderService(orders, products, nil, nil, gate, service.OrderServiceConfig{DecrementStock: true}, log)

	return NewRouter(productSvc, reviewSvc, orderSvc, health.NewHandler(), RouterConfig{
		ServiceName:    "storefront-test",
		CORS:           middleware.DefaultCORSConfig(),
		TokenValidator: fakeValidator,
	}, log)
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
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
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func createProduct(t *testing.T, h http.Handler, name string, price int64, stock int) domain.Product {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/products", adminToken, CreateProductRequest{
		Name: name, Brand: "Acme", Category: "Electronics", Price: price, CountInStock: stock,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p domain.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

type orderView struct {
	domain.Order
	Status string `json:"status"`
}

func decodeOrder(t *testing.T, env envelope) orderView {
	t.Helper()
	var o orderView
	require.NoError(t, json.Unmarshal(env.Data, &o))
	return o
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := do(t, h, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
}

func TestProductRoutes_Authorization(t *testing.T) {
	h := newTestRouter(t)
	body := CreateProductRequest{Name: "Camera", Price: 500_00, CountInStock: 3}

	rec, env := do(t, h, http.MethodPost, "/api/v1/products", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/products", aliceToken, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/products", "forged", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/products", adminToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestProductRoutes_BadRequests(t *testing.T) {
	h := newTestRouter(t)

	rec, env := do(t, h, http.MethodPost, "/api/v1/products", adminToken, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/api/v1/products", adminToken, CreateProductRequest{Price: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "name")
	assert.Contains(t, env.Error.Fields, "price")

	rec, env = do(t, h, http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/products/top?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", env.Error.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/products/8f14e45f-ceea-4e6e-9b6b-6f4a1f0e2b7c", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestProductRoutes_ListSearchAndTop(t *testing.T) {
	h := newTestRouter(t)
	createProduct(t, h, "Airpods Wireless", 89_99, 10)
	createProduct(t, h, "iPhone 11 Pro", 599_99, 7)
	createProduct(t, h, "Sony Playstation", 399_99, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?keyword=PHONE&per_page=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))

	var page struct {
		Data       []domain.Product `json:"data"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "iPhone 11 Pro", page.Data[0].Name)
	assert.Equal(t, 1, page.TotalCount)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?sort=price-asc", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 3)
	assert.Equal(t, int64(89_99), page.Data[0].Price)
	assert.Equal(t, int64(599_99), page.Data[2].Price)

	rec2, env := do(t, h, http.MethodGet, "/api/v1/products/top?limit=2", "", nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	var top []domain.Product
	require.NoError(t, json.Unmarshal(env.Data, &top))
	assert.Len(t, top, 2)
}

func TestProductRoutes_UpdateAndDelete(t *testing.T) {
	h := newTestRouter(t)
	p := createProduct(t, h, "Mouse", 19_99, 4)

	rec, env := do(t, h, http.MethodPut, "/api/v1/products/"+p.ID, adminToken, map[string]any{"price": 24_99})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Product
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, int64(24_99), updated.Price)
	assert.Equal(t, "Mouse", updated.Name)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/products/"+p.ID, aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/products/"+p.ID, adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/products/"+p.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewRoutes(t *testing.T) {
	h := newTestRouter(t)
	p := createProduct(t, h, "Keyboard", 49_99, 4)
	path := "/api/v1/products/" + p.ID + "/reviews"

	rec, _ := do(t, h, http.MethodPost, path, "", CreateReviewRequest{Rating: 5, Comment: "great"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodPost, path, aliceToken, CreateReviewRequest{Rating: 6, Comment: "great"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RATING", env.Error.Code)

	rec, env = do(t, h, http.MethodPost, path, aliceToken, CreateReviewRequest{Rating: 5, Comment: "great"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var result service.AddReviewResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.NumReviews)
	assert.Equal(t, "Alice", result.Review.Name)

	rec, env = do(t, h, http.MethodPost, path, aliceToken, CreateReviewRequest{Rating: 1, Comment: "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_REVIEW", env.Error.Code)

	rec, _ = do(t, h, http.MethodPost, path, bobToken, CreateReviewRequest{Rating: 2, Comment: "meh"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = do(t, h, http.MethodGet, "/api/v1/products/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Product
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 3.5, got.Rating)
	assert.Equal(t, 2, got.NumReviews)
	assert.Len(t, got.Reviews, 2)

	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, httptest.NewRequest(http.MethodGet, path+"?per_page=1", nil))
	require.Equal(t, http.StatusOK, listRec.Code)
	var page struct {
		Data       []domain.Review `json:"data"`
		TotalCount int             `json:"total_count"`
		HasNext    bool            `json:"has_next"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.HasNext)
}

func TestOrderRoutes_Lifecycle(t *testing.T) {
	h := newTestRouter(t)
	p1 := createProduct(t, h, "Speaker", 60_00, 2)
	p2 := createProduct(t, h, "Cable", 50_00, 2)

	orderBody := CreateOrderRequest{
		OrderItems: []OrderLineRequest{{ProductID: p1.ID, Qty: 1}, {ProductID: p2.ID, Qty: 1}},
		ShippingAddress: AddressRequest{
			Address: "1 Main St", City: "Springfield", PostalCode: "62704", Country: "US",
		},
		PaymentMethod: "PayPal",
	}

	rec, _ := do(t, h, http.MethodPost, "/api/v1/orders", "", orderBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, h, http.MethodPost, "/api/v1/orders", aliceToken, orderBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	order := decodeOrder(t, env)
	assert.Equal(t, int64(110_00), order.ItemsPrice)
	assert.Equal(t, int64(0), order.ShippingPrice)
	assert.Equal(t, int64(16_50), order.TaxPrice)
	assert.Equal(t, int64(126_50), order.TotalPrice)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)

	orderPath := "/api/v1/orders/" + order.ID

	rec, env = do(t, h, http.MethodGet, orderPath, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rec, env = do(t, h, http.MethodPut, orderPath+"/deliver", adminToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_PAID", env.Error.Code)

	payment := `{"id":"PAY-1","status":"COMPLETED","email_address":"alice@example.com"}`
	rec, env = do(t, h, http.MethodPut, orderPath+"/pay", aliceToken, payment)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paid := decodeOrder(t, env)
	assert.Equal(t, domain.OrderStatusPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	rec, env = do(t, h, http.MethodPut, orderPath+"/pay", aliceToken, payment)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_PAID", env.Error.Code)

	rec, env = do(t, h, http.MethodDelete, orderPath, aliceToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CANNOT_CANCEL_PAID_ORDER", env.Error.Code)

	rec, env = do(t, h, http.MethodPut, orderPath+"/deliver", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.OrderStatusDelivered, decodeOrder(t, env).Status)

	rec, env = do(t, h, http.MethodGet, "/api/v1/orders/summary", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.OrderSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(126_50), summary.PaidRevenue)
	assert.Equal(t, 1, summary.Delivered)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/orders", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	mine := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/mine", nil)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	h.ServeHTTP(mine, req)
	require.Equal(t, http.StatusOK, mine.Code)
	var minePage struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(mine.Body.Bytes(), &minePage))
	assert.Equal(t, 1, minePage.TotalCount)
}

func TestOrderRoutes_PayStoresReceiptAsSent(t *testing.T) {
	h := newTestRouter(t)
	p := createProduct(t, h, "Speaker", 60_00, 2)

	rec, env := do(t, h, http.MethodPost, "/api/v1/orders", aliceToken, CreateOrderRequest{
		OrderItems: []OrderLineRequest{{ProductID: p.ID, Qty: 1}},
		ShippingAddress: AddressRequest{
			Address: "1 Main St", City: "Springfield", PostalCode: "62704", Country: "US",
		},
		PaymentMethod: "Stripe",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderPath := "/api/v1/orders/" + decodeOrder(t, env).ID

	for _, body := range []string{"", "   ", "null", `{"charge_id":`} {
		rec, env = do(t, h, http.MethodPut, orderPath+"/pay", aliceToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, "INVALID_INPUT", env.Error.Code, "body %q", body)
	}

	receipt := `{"charge_id":"ch_1","provider":"stripe","amount":12650,"card":{"brand":"visa","last4":"4242"}}`
	rec, env = do(t, h, http.MethodPut, orderPath+"/pay", aliceToken, receipt)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, receipt, string(decodeOrder(t, env).PaymentResult))

	rec, env = do(t, h, http.MethodGet, orderPath, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeOrder(t, env)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, receipt, string(stored.PaymentResult))
}

func TestOrderRoutes_CreateErrors(t *testing.T) {
	h := newTestRouter(t)
	p := createProduct(t, h, "Lamp", 10_00, 1)
	addr := AddressRequest{Address: "1 Main St", City: "Springfield", PostalCode: "62704", Country: "US"}

	tests := []struct {
		name   string
		body   CreateOrderRequest
		status int
		code   string
	}{
		{"empty cart", CreateOrderRequest{ShippingAddress: addr, PaymentMethod: "PayPal"}, http.StatusBadRequest, "EMPTY_CART"},
		{"zero quantity", CreateOrderRequest{OrderItems: []OrderLineRequest{{ProductID: p.ID, Qty: 0}}, ShippingAddress: addr, PaymentMethod: "PayPal"}, http.StatusBadRequest, "INVALID_QUANTITY"},
		{"out of stock", CreateOrderRequest{OrderItems: []OrderLineRequest{{ProductID: p.ID, Qty: 2}}, ShippingAddress: addr, PaymentMethod: "PayPal"}, http.StatusConflict, "OUT_OF_STOCK"},
		{"missing address", CreateOrderRequest{OrderItems: []OrderLineRequest{{ProductID: p.ID, Qty: 1}}, PaymentMethod: "PayPal"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad product id", CreateOrderRequest{OrderItems: []OrderLineRequest{{ProductID: "nope", Qty: 1}}, ShippingAddress: addr, PaymentMethod: "PayPal"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, http.MethodPost, "/api/v1/orders", aliceToken, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestOrderRoutes_CancelRestoresStock(t *testing.T) {
	h := newTestRouter(t)
	p := createProduct(t, h, "Desk", 150_00, 1)
	body := CreateOrderRequest{
		OrderItems:      []OrderLineRequest{{ProductID: p.ID, Qty: 1}},
		ShippingAddress: AddressRequest{Address: "1 Main St", City: "Springfield", PostalCode: "62704", Country: "US"},
		PaymentMethod:   "PayPal",
	}

	rec, env := do(t, h, http.MethodPost, "/api/v1/orders", aliceToken, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decodeOrder(t, env)

	rec, env = do(t, h, http.MethodPost, "/api/v1/orders", bobToken, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "OUT_OF_STOCK", env.Error.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/orders/"+order.ID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/api/v1/orders/"+order.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/orders", bobToken, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
