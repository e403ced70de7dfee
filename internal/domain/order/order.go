package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

// StatusPending is assigned to every order at checkout. Fulfilment
// transitions live outside this service.
const StatusPending Status = "Pending"

// Order is an immutable ledger entry produced by checkout.
type Order struct {
	ID     key.Key
	UserID key.Key
	// Items are the cart snapshots at checkout time.
	Items      []product.Snapshot
	Subtotal   decimal.Decimal
	TotalPrice decimal.Decimal
	Status     Status
	// CouponCode is empty when no coupon was applied.
	CouponCode string
	// DiscountPrice is the amount subtracted from Subtotal, not a percentage.
	// Invalid when no coupon was applied.
	DiscountPrice decimal.NullDecimal
	CreatedAt     time.Time
}

// Repository defines read operations over the order ledger. Orders are
// only ever inserted by a checkout transaction.
type Repository interface {
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id key.Key) (*Order, error)
}
