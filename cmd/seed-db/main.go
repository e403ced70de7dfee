// Command seed-db loads the demo catalog, users and coupons into the
// configured storage backend.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/storage"
)

//go:embed seed.json
var defaultSeed []byte

type seedFile struct {
	Products []struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"price"`
		Stock  int             `json:"stock"`
		Images []string        `json:"images"`
	} `json:"products"`
	Users []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"users"`
	Coupons []struct {
		Code     string          `json:"code"`
		Discount decimal.Decimal `json:"discount"`
		Active   bool            `json:"active"`
	} `json:"coupons"`
}

func main() {
	var (
		seedPath string
		storeCfg storage.Config
	)
	flag.StringVar(&seedPath, "file", "", "seed JSON file (defaults to the built-in demo data)")
	storeCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	storeCfg.ApplyEnv()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, seedPath, storeCfg); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, seedPath string, storeCfg storage.Config) error {
	data := defaultSeed
	if seedPath != "" {
		b, err := os.ReadFile(seedPath)
		if err != nil {
			return errors.Wrap(err, "read seed file")
		}
		data = b
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	lg.Info("Opening storage", zap.String("driver", string(storeCfg.Driver)))
	backend, err := storage.Open(ctx, storeCfg)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer func() { _ = backend.Close(context.WithoutCancel(ctx)) }()

	return load(ctx, lg, backend, &seed)
}

// load upserts products and users and creates missing coupons, so the seed
// can be re-run against a populated database.
func load(ctx context.Context, lg *zap.Logger, b *storage.Backend, seed *seedFile) error {
	for _, p := range seed.Products {
		id, err := key.Parse(p.ID)
		if err != nil {
			return errors.Wrapf(err, "product %q", p.Name)
		}
		if err := b.Products.UpsertProduct(ctx, &product.Product{
			ID:     id,
			Name:   p.Name,
			Price:  p.Price,
			Stock:  p.Stock,
			Images: p.Images,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}

	for _, u := range seed.Users {
		id, err := key.Parse(u.ID)
		if err != nil {
			return errors.Wrapf(err, "user %q", u.Name)
		}
		if err := b.Users.UpsertUser(ctx, &user.User{
			ID:    id,
			Name:  u.Name,
			Email: u.Email,
			Phone: u.Phone,
		}); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
		lg.Info("Upserted user", zap.String("id", u.ID), zap.String("name", u.Name))
	}

	now := time.Now().UTC()
	for _, c := range seed.Coupons {
		cp := &coupon.Coupon{
			Code:      coupon.NormalizeCode(c.Code),
			Discount:  c.Discount,
			Active:    c.Active,
			CreatedAt: now,
		}
		if err := cp.Validate(); err != nil {
			return errors.Wrapf(err, "coupon %s", c.Code)
		}
		switch err := b.Coupons.Create(ctx, cp); {
		case err == nil:
			lg.Info("Created coupon", zap.String("code", cp.Code), zap.Bool("active", cp.Active))
		case errors.Is(err, coupon.ErrDuplicateCode):
			lg.Info("Coupon exists", zap.String("code", cp.Code))
		default:
			return errors.Wrapf(err, "create coupon %s", cp.Code)
		}
	}
	return nil
}
