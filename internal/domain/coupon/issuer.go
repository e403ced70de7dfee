package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CodeLength is the number of characters in a generated code.
const CodeLength = 8

// DefaultDiscount is the percentage granted by issued coupons unless
// configured otherwise.
var DefaultDiscount = decimal.NewFromInt(10)

// Issuer generates and stores new active coupons.
type Issuer struct {
	repo     Repository
	discount decimal.Decimal
	newCode  func() string
	now      func() time.Time
}

// NewIssuer creates an Issuer granting the given percentage.
func NewIssuer(repo Repository, discount decimal.Decimal) (*Issuer, error) {
	probe := Coupon{Discount: discount}
	if err := probe.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{
		repo:     repo,
		discount: discount,
		newCode:  GenerateCode,
		now:      time.Now,
	}, nil
}

// Issue creates a fresh active coupon. Codes are not checked for
// collisions before insertion; the store rejects duplicates.
func (i *Issuer) Issue(ctx context.Context) (*Coupon, error) {
	c := &Coupon{
		Code:      i.newCode(),
		Discount:  i.discount,
		Active:    true,
		CreatedAt: i.now().UTC(),
	}
	if err := i.repo.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// GenerateCode derives a short upper-case alphanumeric code from a random
// UUID with separators stripped.
func GenerateCode() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(s[:CodeLength])
}
