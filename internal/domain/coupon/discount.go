package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Validate checks that the discount percentage is within range.
func (c *Coupon) Validate() error {
	if c.Discount.IsNegative() || c.Discount.GreaterThan(hundred) {
		return ErrInvalidDiscount
	}
	return nil
}

// Amount returns the discount granted on subtotal, rounded to 2 decimal
// places. The result is never negative and never exceeds subtotal.
func (c *Coupon) Amount(subtotal decimal.Decimal) decimal.Decimal {
	pct := decimal.Min(decimal.Max(c.Discount, decimal.Zero), hundred)
	amount := subtotal.Mul(pct).Div(hundred)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}
