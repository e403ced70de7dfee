//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/summary"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/pkg/health"
)

var (
	baseURL    string
	httpClient = &http.Client{Timeout: 10 * time.Second}
	backend    *storage.Backend
	api        *handler.Handler
	probes     *health.Health
)

// Response types are defined locally to keep the tests black-box.

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type completeResponse struct {
	OrderID       string   `json:"orderId"`
	TotalPrice    float64  `json:"totalPrice"`
	DiscountPrice *float64 `json:"discountPrice"`
}

type userResponse struct {
	Cart         []json.RawMessage `json:"cart"`
	CartVersion  int64             `json:"cartVersion"`
	OrdersPlaced []struct {
		OrderID string `json:"orderId"`
	} `json:"ordersPlaced"`
}

type productResponse struct {
	ID    string  `json:"id"`
	Stock int     `json:"stock"`
	Price float64 `json:"price"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	cfg := validConfig()
	cfg.Storage.Driver = string(storage.DriverPostgres)
	cfg.Storage.PostgresURL = fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	cfg.CORS = CORSConfig{Origins: []string{"*"}, MaxAge: 60}

	backend, err = storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer func() { _ = backend.Close(context.Background()) }()

	engine, err := checkout.NewEngine(backend.Users, backend.Coupons, backend.Tx, checkout.Config{})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	issuer, err := coupon.NewIssuer(backend.Coupons, coupon.DefaultDiscount)
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	api = handler.NewHandler(handler.Config{}, engine, issuer, summary.NewReporter(backend.Orders), backend.Users, backend.Products)

	probes = health.New()
	probes.AddReadinessCheck("postgres", time.Second, health.PingCheck(backend))
	probes.SetReady(true)

	srv := httptest.NewServer(newRouter(ctx, &cfg, noopTelemetry{}, api, probes))
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

func seed(t *testing.T, stock int, users ...string) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []product.Product{
		{ID: key.MustParse("P1"), Name: "Keyboard", Price: decimal.NewFromInt(100), Stock: stock},
		{ID: key.MustParse("P2"), Name: "Mouse", Price: decimal.NewFromInt(50), Stock: stock},
	} {
		require.NoError(t, backend.Products.UpsertProduct(ctx, &p))
	}
	for _, id := range users {
		require.NoError(t, backend.Users.UpsertUser(ctx, &user.User{ID: key.MustParse(id), Name: id}))
	}
	err := backend.Coupons.Create(ctx, &coupon.Coupon{Code: "SAVE10", Discount: decimal.NewFromInt(10), Active: true})
	if err != nil {
		require.ErrorIs(t, err, coupon.ErrDuplicateCode)
	}
}

func do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestProbes(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		resp := do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}
}

func TestCORSPreflight(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, baseURL+"/api/orders/complete", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestCheckoutFlow(t *testing.T) {
	seed(t, 5, "flow-user")

	for _, p := range []string{"P1", "P2"} {
		resp := do(t, http.MethodPost, "/api/users/flow-user/cart", map[string]string{"productId": p})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := do(t, http.MethodPost, "/api/orders/complete", map[string]any{"userId": "flow-user", "couponCode": "SAVE10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeJSON[completeResponse](t, resp)
	assert.NotEmpty(t, res.OrderID)
	assert.InDelta(t, 135.0, res.TotalPrice, 0.001)
	require.NotNil(t, res.DiscountPrice)
	assert.InDelta(t, 15.0, *res.DiscountPrice, 0.001)

	u := decodeJSON[userResponse](t, do(t, http.MethodGet, "/api/users/flow-user", nil))
	assert.Empty(t, u.Cart)
	require.Len(t, u.OrdersPlaced, 1)
	assert.Equal(t, res.OrderID, u.OrdersPlaced[0].OrderID)

	products := decodeJSON[[]productResponse](t, do(t, http.MethodGet, "/api/products", nil))
	for _, p := range products {
		assert.Equal(t, 4, p.Stock, p.ID)
	}

	resp = do(t, http.MethodPost, "/api/orders/complete", map[string]any{"userId": "flow-user", "couponCode": nil})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "second checkout sees an empty cart")
	assert.Equal(t, errorResponse{Code: http.StatusConflict, Message: "invalid state: empty cart"}, decodeJSON[errorResponse](t, resp))
}

func TestCheckout_InsufficientStock(t *testing.T) {
	seed(t, 1, "greedy-user")
	for range 2 {
		resp := do(t, http.MethodPost, "/api/users/greedy-user/cart", map[string]string{"productId": "P1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := do(t, http.MethodPost, "/api/orders/complete", map[string]any{"userId": "greedy-user"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	u := decodeJSON[userResponse](t, do(t, http.MethodGet, "/api/users/greedy-user", nil))
	assert.Len(t, u.Cart, 2, "cart survives the rolled back checkout")
	assert.Empty(t, u.OrdersPlaced)
}

func TestCheckout_DoubleSubmit(t *testing.T) {
	seed(t, 100, "double-user")
	resp := do(t, http.MethodPost, "/api/users/double-user/cart", map[string]string{"productId": "P1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	const n = 6
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := httpClient.Post(baseURL+"/api/orders/complete", "application/json", strings.NewReader(`{"userId":"double-user"}`))
			if err != nil {
				return
			}
			_ = resp.Body.Close()
			codes[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	var ok int
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
			continue
		}
		assert.Equal(t, http.StatusConflict, code)
	}
	assert.Equal(t, 1, ok)

	u := decodeJSON[userResponse](t, do(t, http.MethodGet, "/api/users/double-user", nil))
	assert.Len(t, u.OrdersPlaced, 1)
}

func TestLegacyCompleteOrder(t *testing.T) {
	seed(t, 10, "legacy-user")
	resp := do(t, http.MethodPost, "/api/add-items-to-cart", map[string]string{"user_id": "legacy-user", "product_id": "P2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, "/api/complete-order", map[string]any{"user_id": "legacy-user", "coupon_code": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeJSON[completeResponse](t, resp)
	assert.InDelta(t, 50.0, res.TotalPrice, 0.001)
	assert.Nil(t, res.DiscountPrice)
}

func TestGenerateCoupon(t *testing.T) {
	resp := do(t, http.MethodGet, "/api/coupons/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := decodeJSON[struct {
		Code     string  `json:"code"`
		Discount float64 `json:"discount"`
	}](t, resp)
	assert.Len(t, c.Code, coupon.CodeLength)
	assert.InDelta(t, 10.0, c.Discount, 0.001)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := validConfig()
	cfg.RateLimit = RateLimitConfig{Max: 3, Window: time.Minute}
	srv := httptest.NewServer(newRouter(ctx, &cfg, noopTelemetry{}, api, probes))
	defer srv.Close()

	for i := range 3 {
		resp, err := httpClient.Get(srv.URL + "/api/products")
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
	}

	resp, err := httpClient.Get(srv.URL + "/api/products")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
