//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var testPool *pgxpool.Pool

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

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	return m.Run()
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `TRUNCATE products, users, coupons, orders`)
	require.NoError(t, err)
}

func seedCheckout(t *testing.T) (u1 key.Key, p1, p2 product.Product) {
	t.Helper()
	ctx := context.Background()
	resetTables(t)

	p1 = product.Product{ID: key.MustParse("P1"), Name: "Keyboard", Price: decimal.NewFromInt(100), Stock: 5, Images: []string{"kb.jpg"}}
	p2 = product.Product{ID: key.MustParse("P2"), Name: "Mouse", Price: decimal.NewFromInt(50), Stock: 3}
	products := NewProductRepository(testPool)
	require.NoError(t, products.UpsertProduct(ctx, &p1))
	require.NoError(t, products.UpsertProduct(ctx, &p2))

	u1 = key.MustParse("U1")
	users := NewUserRepository(testPool)
	require.NoError(t, users.UpsertUser(ctx, &user.User{ID: u1, Name: "Ada"}))
	require.NoError(t, users.AddToCart(ctx, u1, p1.Snapshot()))
	require.NoError(t, users.AddToCart(ctx, u1, p2.Snapshot()))

	require.NoError(t, NewCouponRepository(testPool).Create(ctx, &coupon.Coupon{
		Code: "SAVE10", Discount: decimal.NewFromInt(10), Active: true, CreatedAt: time.Now(),
	}))
	return u1, p1, p2
}

func newEngine(t *testing.T, cfg checkout.Config) *checkout.Engine {
	t.Helper()
	e, err := checkout.NewEngine(
		NewUserRepository(testPool),
		NewCouponRepository(testPool),
		NewTransactor(testPool, TransactorOptions{}),
		cfg,
	)
	require.NoError(t, err)
	return e
}

func TestCheckout_Commit(t *testing.T) {
	u1, p1, p2 := seedCheckout(t)
	ctx := context.Background()

	res, err := newEngine(t, checkout.Config{}).CompleteOrder(ctx, checkout.Request{UserID: u1, CouponCode: "save10"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(135).Equal(res.TotalPrice))

	o, err := NewOrderRepository(testPool).GetByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", o.CouponCode)
	assert.True(t, decimal.NewFromInt(15).Equal(o.DiscountPrice.Decimal))
	require.Len(t, o.Items, 2)
	assert.Equal(t, []string{"kb.jpg"}, o.Items[0].Images)

	u, err := NewUserRepository(testPool).GetByID(ctx, u1)
	require.NoError(t, err)
	assert.Empty(t, u.Cart)
	require.Len(t, u.OrdersPlaced, 1)
	assert.Equal(t, res.OrderID, u.OrdersPlaced[0].OrderID)

	products := NewProductRepository(testPool)
	got1, err := products.GetByID(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got1.Stock)
	got2, err := products.GetByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got2.Stock)
}

func TestCheckout_InsufficientStockRollsBack(t *testing.T) {
	u1, _, p2 := seedCheckout(t)
	ctx := context.Background()
	p2.Stock = 0
	require.NoError(t, NewProductRepository(testPool).UpsertProduct(ctx, &p2))

	_, err := newEngine(t, checkout.Config{}).CompleteOrder(ctx, checkout.Request{UserID: u1})
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)

	orders, err := NewOrderRepository(testPool).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	u, err := NewUserRepository(testPool).GetByID(ctx, u1)
	require.NoError(t, err)
	assert.Len(t, u.Cart, 2)
	assert.Empty(t, u.OrdersPlaced)

	p1, err := NewProductRepository(testPool).GetByID(ctx, key.MustParse("P1"))
	require.NoError(t, err)
	assert.Equal(t, 5, p1.Stock)
}

func TestCheckout_SameUserOverlap(t *testing.T) {
	u1, _, _ := seedCheckout(t)
	e := newEngine(t, checkout.Config{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.CompleteOrder(context.Background(), checkout.Request{UserID: u1}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	orders, err := NewOrderRepository(testPool).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestUserRepository_RemoveFromCart(t *testing.T) {
	u1, p1, p2 := seedCheckout(t)
	ctx := context.Background()
	users := NewUserRepository(testPool)

	require.NoError(t, users.AddToCart(ctx, u1, p1.Snapshot()))
	require.NoError(t, users.RemoveFromCart(ctx, u1, p1.ID))

	u, err := users.GetByID(ctx, u1)
	require.NoError(t, err)
	require.Len(t, u.Cart, 2)
	assert.Equal(t, p2.ID, u.Cart[0].ID)
	assert.Equal(t, p1.ID, u.Cart[1].ID)
	assert.Equal(t, int64(4), u.CartVersion)

	require.ErrorIs(t, users.RemoveFromCart(ctx, u1, key.MustParse("P9")), user.ErrNotInCart)
	require.ErrorIs(t, users.RemoveFromCart(ctx, key.MustParse("ghost"), p1.ID), user.ErrNotFound)
}

func TestCouponRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewCouponRepository(testPool)
	c := &coupon.Coupon{Code: "ABCD1234", Discount: decimal.NewFromInt(10), Active: true, CreatedAt: time.Now()}

	require.NoError(t, repo.Create(ctx, c))
	require.ErrorIs(t, repo.Create(ctx, c), coupon.ErrDuplicateCode)

	got, err := repo.FindByCode(ctx, "ABCD1234")
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = repo.FindByCode(ctx, "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestProductRepository_List(t *testing.T) {
	seedCheckout(t)
	ctx := context.Background()
	repo := NewProductRepository(testPool)
	require.NoError(t, repo.UpsertProduct(ctx, &product.Product{ID: key.MustParse("P3"), Name: "Cable", Price: decimal.NewFromInt(5)}))

	all, err := repo.List(ctx, product.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	inStock, err := repo.List(ctx, product.Filter{InStockOnly: true})
	require.NoError(t, err)
	assert.Len(t, inStock, 2)
}
