package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrCartModified is returned when a conditional cart update observes a
	// cart revision other than the one the caller read.
	ErrCartModified = errors.New("cart modified concurrently")
	// ErrNotInCart is returned when removing a product the cart does not hold.
	ErrNotInCart = errors.New("product not in cart")
)

// User is a customer account with its embedded cart.
type User struct {
	ID    key.Key
	Name  string
	Email string
	Phone string

	// Cart holds product snapshots in the order they were added. The same
	// product may appear several times, once per unit.
	Cart []product.Snapshot
	// CartVersion increases on every cart mutation.
	CartVersion int64

	OrdersPlaced []OrderSummary
}

// OrderSummary is the copy of an order kept on the user for fast listing.
type OrderSummary struct {
	OrderID       key.Key
	TotalPrice    decimal.Decimal
	CouponCode    string
	DiscountPrice decimal.NullDecimal
	CreatedAt     time.Time
}

// Repository provides user lookups and cart mutations outside checkout.
type Repository interface {
	GetByID(ctx context.Context, id key.Key) (*User, error)
	// AddToCart appends a snapshot to the cart and bumps CartVersion.
	AddToCart(ctx context.Context, id key.Key, item product.Snapshot) error
	// RemoveFromCart drops the first cart entry for productID and bumps
	// CartVersion. Returns ErrNotInCart when no entry matches.
	RemoveFromCart(ctx context.Context, id, productID key.Key) error
}
