package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon matches the requested code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned by Create when the code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidDiscount is returned for percentages outside [0, 100].
	ErrInvalidDiscount = errors.New("discount must be between 0 and 100")
)

// Coupon is a named percentage discount that can be switched off.
//
// Coupons carry no usage counter or expiry window: an active coupon may be
// redeemed any number of times.
type Coupon struct {
	Code string
	// Discount is a percentage in [0, 100].
	Discount  decimal.Decimal
	Active    bool
	CreatedAt time.Time
}

// NormalizeCode returns the canonical form of a user-supplied code.
// Generated codes are upper-case, so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and creation of coupons.
type Repository interface {
	// FindByCode returns the coupon with the given normalized code, active or
	// not. Returns ErrNotFound when no coupon matches.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Create persists a new coupon. Returns ErrDuplicateCode on conflict.
	Create(ctx context.Context, c *Coupon) error
}
