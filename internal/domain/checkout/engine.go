// Package checkout turns a user's cart into a committed order.
//
// CompleteOrder reads the cart and the optional coupon, prices the cart
// from its snapshots, then commits three writes as one transaction: the
// ledger insert, the cart clear with its order summary, and the stock
// decrements. Any failure leaves users, products and orders untouched.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/checkout"

// Defaults applied by NewEngine for zero Config fields.
const (
	DefaultCommitTimeout = time.Second
	DefaultLockTTL       = 5 * time.Second
)

// UserReader is the part of the user store checkout reads from.
type UserReader interface {
	GetByID(ctx context.Context, id key.Key) (*user.User, error)
}

// CouponFinder is the part of the coupon store checkout reads from.
type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// Locker serialises checkouts per user ahead of the transaction. Lock
// returns ErrLocked when another holder owns the user's lock.
type Locker interface {
	Lock(ctx context.Context, userID key.Key, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Config holds optional engine settings.
type Config struct {
	StockPolicy StockPolicy
	// CommitTimeout bounds the transaction. Defaults to DefaultCommitTimeout.
	CommitTimeout time.Duration
	// Locker is optional. When nil, overlapping checkouts are resolved by the
	// cart version check inside the transaction alone.
	Locker  Locker
	LockTTL time.Duration

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Request is the input of CompleteOrder.
type Request struct {
	UserID key.Key
	// CouponCode is optional. Unknown or inactive codes are ignored.
	CouponCode string
}

// Result describes a committed order.
type Result struct {
	OrderID       key.Key
	Subtotal      decimal.Decimal
	TotalPrice    decimal.Decimal
	DiscountPrice decimal.NullDecimal
	CouponCode    string
}

// Engine runs the order-completion workflow.
type Engine struct {
	users   UserReader
	coupons CouponFinder
	tx      Transactor

	policy        StockPolicy
	commitTimeout time.Duration
	locker        Locker
	lockTTL       time.Duration
	now           func() time.Time

	tracer trace.Tracer
	orders metric.Int64Counter
}

// NewEngine creates an Engine over the given stores and transaction
// boundary.
func NewEngine(users UserReader, coupons CouponFinder, tx Transactor, cfg Config) (*Engine, error) {
	policy, err := ParseStockPolicy(string(cfg.StockPolicy))
	if err != nil {
		return nil, err
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = DefaultCommitTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	orders, err := cfg.MeterProvider.Meter(instrumentationName).Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}

	return &Engine{
		users:         users,
		coupons:       coupons,
		tx:            tx,
		policy:        policy,
		commitTimeout: cfg.CommitTimeout,
		locker:        cfg.Locker,
		lockTTL:       cfg.LockTTL,
		now:           time.Now,
		tracer:        cfg.TracerProvider.Tracer(instrumentationName),
		orders:        orders,
	}, nil
}

// CompleteOrder converts the user's cart into a Pending order.
//
// Failures are tagged: *NotFoundError (user, or a product gone from the
// catalog), *InvalidStateError (empty cart, checkout already running),
// *InsufficientStockError and *CommitFailedError. Other errors come from
// reading the stores before anything was written. The engine never retries.
func (e *Engine) CompleteOrder(ctx context.Context, req Request) (_ *Result, rerr error) {
	ctx, span := e.tracer.Start(ctx, "checkout.CompleteOrder",
		trace.WithAttributes(attribute.String("user.id", req.UserID.String())),
	)
	lg := zctx.From(ctx).With(zap.Stringer("user_id", req.UserID))
	defer func() {
		outcome := outcomeOf(rerr)
		e.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, outcome)
			lg.Warn("Checkout failed", zap.String("outcome", outcome), zap.Error(rerr))
		}
		span.End()
	}()

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, req.UserID, e.lockTTL)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				return nil, &InvalidStateError{Reason: "checkout in progress"}
			}
			return nil, errors.Wrap(err, "acquire checkout lock")
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				lg.Warn("Release checkout lock", zap.Error(err))
			}
		}()
	}

	u, err := e.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, &NotFoundError{Entity: "user", ID: req.UserID}
		}
		return nil, errors.Wrap(err, "get user")
	}
	if len(u.Cart) == 0 {
		return nil, &InvalidStateError{Reason: "empty cart"}
	}

	c, err := e.resolveCoupon(ctx, req.CouponCode)
	if err != nil {
		return nil, err
	}

	quote := Price(u.Cart, c)
	o := &order.Order{
		UserID:        u.ID,
		Items:         product.CloneSnapshots(u.Cart),
		Subtotal:      quote.Subtotal,
		TotalPrice:    quote.Total,
		Status:        order.StatusPending,
		CouponCode:    quote.CouponCode,
		DiscountPrice: quote.Discount,
		CreatedAt:     e.now().UTC(),
	}
	decs := Decrements(u.Cart)

	commitCtx, cancel := context.WithTimeout(ctx, e.commitTimeout)
	defer cancel()

	var orderID key.Key
	err = e.tx.Commit(commitCtx,
		func(ctx context.Context, tx Tx) error {
			id, err := tx.InsertOrder(ctx, o)
			if err != nil {
				return errors.Wrap(err, "insert order")
			}
			orderID = id
			return nil
		},
		func(ctx context.Context, tx Tx) error {
			summary := user.OrderSummary{
				OrderID:       orderID,
				TotalPrice:    o.TotalPrice,
				CouponCode:    o.CouponCode,
				DiscountPrice: o.DiscountPrice,
				CreatedAt:     o.CreatedAt,
			}
			if err := tx.ClearCartAndAppendOrder(ctx, u.ID, u.CartVersion, summary); err != nil {
				return errors.Wrap(err, "clear cart")
			}
			return nil
		},
		func(ctx context.Context, tx Tx) error {
			if err := tx.DecrementStock(ctx, decs, e.policy); err != nil {
				return errors.Wrap(err, "decrement stock")
			}
			return nil
		},
	)
	if err != nil {
		return nil, commitError(err)
	}

	span.SetAttributes(attribute.String("order.id", orderID.String()))
	lg.Info("Order completed",
		zap.Stringer("order_id", orderID),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.TotalPrice),
		zap.String("coupon", o.CouponCode),
	)

	return &Result{
		OrderID:       orderID,
		Subtotal:      o.Subtotal,
		TotalPrice:    o.TotalPrice,
		DiscountPrice: o.DiscountPrice,
		CouponCode:    o.CouponCode,
	}, nil
}

// resolveCoupon returns the active coupon for code, or nil when the code is
// empty, unknown or inactive.
func (e *Engine) resolveCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	code = coupon.NormalizeCode(code)
	if code == "" {
		return nil, nil
	}

	c, err := e.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			zctx.From(ctx).Debug("Coupon ignored: unknown code", zap.String("coupon", code))
			return nil, nil
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	if !c.Active {
		zctx.From(ctx).Debug("Coupon ignored: inactive", zap.String("coupon", code))
		return nil, nil
	}
	return c, nil
}

// commitError tags an error returned by the Transactor.
func commitError(err error) error {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr
	}

	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return nfErr
	}
	if errors.Is(err, product.ErrNotFound) {
		return &NotFoundError{Entity: "product", ID: missingProduct(err)}
	}

	return &CommitFailedError{Err: err}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrCommitFailed):
		return "commit_failed"
	default:
		return "error"
	}
}
