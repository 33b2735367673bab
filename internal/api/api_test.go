package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neroshop/neroshop-server/internal/cart"
	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/dht"
	"github.com/neroshop/neroshop-server/internal/market"
	"github.com/neroshop/neroshop-server/internal/metrics"
	"github.com/neroshop/neroshop-server/internal/order"
	"github.com/neroshop/neroshop-server/internal/price"
	"github.com/neroshop/neroshop-server/internal/storage"
)

type testEnv struct {
	server    *Server
	publisher *market.Publisher
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "data.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := dht.NewMemoryClient().WithValidator(dht.NewValidator(codec.MetadataStrings()...))
	resolver, err := market.NewResolver(client, db.Index(), m)
	require.NoError(t, err)
	publisher := market.NewPublisher(client, db.Index(), market.RetryPolicy{MaxRetries: 1, InitialInterval: time.Millisecond}, m)
	carts, err := cart.NewStore(db.SQL(), cart.DefaultLimits())
	require.NoError(t, err)
	oracle, err := price.NewStaticOracle(map[string]float64{"XMR/USD": 160})
	require.NoError(t, err)

	builder := order.NewBuilder(resolver, publisher, oracle, order.Options{Metrics: m})
	svc := order.NewService(carts, builder, resolver, publisher, order.DefaultCancelWindow)
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	s := New(market.NewCatalog(resolver), carts, svc, opts)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return &testEnv{server: s, publisher: publisher}
}

func (e *testEnv) listing(t *testing.T, id, seller, name string, stock int) string {
	t.Helper()
	key, err := e.publisher.Publish(context.Background(), &market.Listing{
		ID:       id,
		SellerID: seller,
		Price:    decimal.NewFromInt(16),
		Currency: "USD",
		Quantity: stock,
		Date:     "2024-05-01 10:00:00",
		Product:  market.Product{ID: "prod-" + id, Name: name, Category: "Clothing"},
	})
	require.NoError(t, err)
	return key
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestListingRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.listing(t, "l1", "sellerX", "Monero Hoodie", 3)
	env.listing(t, "l2", "sellerX", "Sticker Pack", 7)

	w, body := env.do(t, http.MethodGet, "/api/listings?sort=alpha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])

	w, body = env.do(t, http.MethodGet, "/api/listings/search?q=hoodie", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, _ = env.do(t, http.MethodGet, "/api/listings/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/listings?sort=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/categories/Clothing/listings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])

	w, body = env.do(t, http.MethodGet, "/api/users/sellerX/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["count"])

	w, body = env.do(t, http.MethodGet, "/api/stock/prod-l1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["available"])
}

func TestUserAndRatingRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	_, err := env.publisher.Publish(ctx, &market.User{MoneroAddress: "4Alice", DisplayName: "alice"})
	require.NoError(t, err)
	_, err = env.publisher.Publish(ctx, &market.SellerRating{SellerID: "4Alice", RaterID: "bob", Score: 1})
	require.NoError(t, err)
	_, err = env.publisher.Publish(ctx, &market.ProductRating{ProductID: "p1", RaterID: "bob", Stars: 4})
	require.NoError(t, err)

	w, body := env.do(t, http.MethodGet, "/api/users/4Alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", body["display_name"])

	w, _ = env.do(t, http.MethodGet, "/api/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodGet, "/api/sellers/4Alice/ratings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 100, summary["reputation"])

	w, body = env.do(t, http.MethodGet, "/api/products/p1/ratings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary = body["summary"].(map[string]interface{})
	assert.EqualValues(t, 4, summary["average"])
}

func TestCartRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})

	w, body := env.do(t, http.MethodGet, "/api/carts/buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])

	w, body = env.do(t, http.MethodPost, "/api/carts/buyer/items", cart.Item{ListingKey: "k1", Quantity: 2, SellerID: "s"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total_quantity"])

	w, body = env.do(t, http.MethodPut, "/api/carts/buyer/items/k1", map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 5, body["total_quantity"])

	w, _ = env.do(t, http.MethodPost, "/api/carts/buyer/items", cart.Item{ListingKey: "k2", Quantity: 500, SellerID: "s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodDelete, "/api/carts/buyer/items/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = env.do(t, http.MethodDelete, "/api/carts/buyer/items/k1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["total_quantity"])

	w, _ = env.do(t, http.MethodPost, "/api/carts/buyer/items", "not an item")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderRoutes(t *testing.T) {
	env := newTestEnv(t, Options{})
	key := env.listing(t, "l1", "sellerX", "Monero Hoodie", 3)

	w, _ := env.do(t, http.MethodPost, "/api/carts/buyer/items", cart.Item{ListingKey: key, Quantity: 1, SellerID: "sellerX"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, http.MethodPost, "/api/orders", placeOrderRequest{Owner: "buyer", ShippingAddress: "1 Main St"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, order.ModeSingle, body["mode"])
	orders := body["orders"].([]interface{})
	require.Len(t, orders, 1)
	orderKey := orders[0].(map[string]interface{})["key"].(string)

	w, body = env.do(t, http.MethodGet, "/api/carts/buyer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["items"])

	w, body = env.do(t, http.MethodGet, "/api/orders/"+orderKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "New", body["status"])
	assert.Equal(t, "0.1", body["total"])

	w, body = env.do(t, http.MethodGet, "/api/users/buyer/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, _ = env.do(t, http.MethodPost, "/api/orders/"+orderKey+"/cancel", map[string]string{"actor": "sellerX"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = env.do(t, http.MethodPost, "/api/orders/"+orderKey+"/cancel", map[string]string{"actor": "buyer"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Cancelled", body["status"])

	w, body = env.do(t, http.MethodPost, "/api/orders/"+orderKey+"/status", map[string]string{"status": "Disputed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Disputed", body["status"])

	w, _ = env.do(t, http.MethodPost, "/api/orders/"+orderKey+"/status", map[string]string{"status": "Lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceOrderRejected(t *testing.T) {
	env := newTestEnv(t, Options{})
	key := env.listing(t, "l1", "buyer", "Own Hoodie", 3)
	w, _ := env.do(t, http.MethodPost, "/api/carts/buyer/items", cart.Item{ListingKey: key, Quantity: 1, SellerID: "buyer"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body := env.do(t, http.MethodPost, "/api/orders", placeOrderRequest{Owner: "buyer"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	e := body["error"].(map[string]interface{})
	assert.Equal(t, string(order.ReasonSelfPurchase), e["reason"])

	w, _ = env.do(t, http.MethodPost, "/api/orders", placeOrderRequest{Owner: "nobody"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/orders", placeOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RatePerSecond: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		w, _ := env.do(t, http.MethodGet, "/api/carts/buyer", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, _ := env.do(t, http.MethodGet, "/api/carts/buyer", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, env.server.limiter.Clients())
}

func TestRateLimiterCleanup(t *testing.T) {
	l := NewClientRateLimiter(1, 1)
	defer l.Close()
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))

	l.cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 0, l.Clients())
	l.Close()
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.listing(t, "l1", "s", "Hoodie", 1)
	_, _ = env.do(t, http.MethodGet, "/api/listings", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "neroshop_resolve_total")
}
