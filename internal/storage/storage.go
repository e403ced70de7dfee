// Package storage opens the configured backend and exposes its stores.
package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/mongodb"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// Driver names a storage backend.
type Driver string

// Supported drivers.
const (
	DriverPostgres Driver = "postgres"
	DriverMongo    Driver = "mongo"
	DriverMemory   Driver = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver

	PostgresURL       string
	SynchronousCommit string

	MongoURL          string
	MongoDatabase     string
	MongoWriteTimeout time.Duration
}

// ProductStore is the catalog plus the writes used by seeding.
type ProductStore interface {
	product.Repository
	UpsertProduct(ctx context.Context, p *product.Product) error
}

// UserStore is the user store plus the writes used by seeding.
type UserStore interface {
	user.Repository
	UpsertUser(ctx context.Context, u *user.User) error
}

// Backend bundles the stores of one opened backend.
type Backend struct {
	Driver   Driver
	Products ProductStore
	Users    UserStore
	Coupons  coupon.Repository
	Orders   order.Repository
	Tx       checkout.Transactor

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks the backend is reachable.
func (b *Backend) Ping(ctx context.Context) error { return b.ping(ctx) }

// Close releases connections.
func (b *Backend) Close(ctx context.Context) error { return b.close(ctx) }

// Open connects to the backend selected by cfg.Driver and prepares its
// schema or indexes.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg)
	case DriverMongo:
		return openMongo(ctx, cfg)
	case DriverMemory:
		return OpenMemory(memory.New()), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// OpenMemory wraps an in-memory store as a Backend.
func OpenMemory(s *memory.Store) *Backend {
	return &Backend{
		Driver:   DriverMemory,
		Products: s.Products(),
		Users:    s.Users(),
		Coupons:  s.Coupons(),
		Orders:   s.Orders(),
		Tx:       s,
		ping:     s.Ping,
		close:    func(context.Context) error { return nil },
	}
}

func openPostgres(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.PostgresURL == "" {
		return nil, errors.New("postgres URL is required")
	}
	pool, err := postgres.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &Backend{
		Driver:   DriverPostgres,
		Products: postgres.NewProductRepository(pool),
		Users:    postgres.NewUserRepository(pool),
		Coupons:  postgres.NewCouponRepository(pool),
		Orders:   postgres.NewOrderRepository(pool),
		Tx: postgres.NewTransactor(pool, postgres.TransactorOptions{
			SynchronousCommit: cfg.SynchronousCommit,
		}),
		ping: pool.Ping,
		close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}, nil
}

func openMongo(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.MongoURL == "" {
		return nil, errors.New("mongo URL is required")
	}
	if cfg.MongoDatabase == "" {
		return nil, errors.New("mongo database is required")
	}
	db, err := mongodb.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = db.Close(ctx)
		return nil, errors.Wrap(err, "ensure indexes")
	}

	database := db.Database()
	return &Backend{
		Driver:   DriverMongo,
		Products: mongodb.NewProductRepository(database),
		Users:    mongodb.NewUserRepository(database),
		Coupons:  mongodb.NewCouponRepository(database),
		Orders:   mongodb.NewOrderRepository(database),
		Tx:       mongodb.NewTransactor(db, cfg.MongoWriteTimeout),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}
