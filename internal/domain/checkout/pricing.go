package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
)

// Quote is the priced cart.
type Quote struct {
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	// Discount is invalid when no coupon applied.
	Discount   decimal.NullDecimal
	CouponCode string
}

// Price sums the snapshot prices of items and applies c when it is active.
// Live catalog prices are never consulted. Discount is subtotal*pct/100
// rounded to 2 places, and that rounded amount is what orders and user
// summaries persist.
func Price(items []product.Snapshot, c *coupon.Coupon) Quote {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price)
	}

	q := Quote{Subtotal: subtotal, Total: subtotal.Round(2)}
	if c == nil || !c.Active {
		return q
	}

	amount := c.Amount(subtotal)
	q.Discount = decimal.NewNullDecimal(amount)
	q.Total = subtotal.Sub(amount).Round(2)
	q.CouponCode = c.Code
	return q
}
