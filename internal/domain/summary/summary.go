// Package summary folds the order ledger into aggregate sales figures.
package summary

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
)

// DateLayout formats OrderView.Date. Times are rendered in UTC.
const DateLayout = "02 Jan 2006 15:04 MST"

// OrderLister is the part of the order ledger the reporter scans.
type OrderLister interface {
	List(ctx context.Context) ([]order.Order, error)
}

// OrderView is the per-order line of a Summary.
type OrderView struct {
	ID         key.Key
	UserID     key.Key
	Items      int
	Total      decimal.Decimal
	CouponCode string
	Discount   decimal.NullDecimal
	Date       string
}

// Summary aggregates every order in the ledger.
type Summary struct {
	ItemsSold      int
	PurchaseAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	// CouponsUsed lists the coupon code of each discounted order, in ledger
	// order. A code used twice appears twice.
	CouponsUsed []string
	Orders      []OrderView
}

// Reporter builds summaries from the ledger.
type Reporter struct {
	orders OrderLister
}

// NewReporter creates a Reporter.
func NewReporter(orders OrderLister) *Reporter {
	return &Reporter{orders: orders}
}

// Summarize scans the whole ledger.
func (r *Reporter) Summarize(ctx context.Context) (*Summary, error) {
	orders, err := r.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return Fold(orders), nil
}

// Fold aggregates orders without touching a store.
func Fold(orders []order.Order) *Summary {
	s := &Summary{
		PurchaseAmount: decimal.Zero,
		DiscountAmount: decimal.Zero,
		CouponsUsed:    []string{},
		Orders:         make([]OrderView, 0, len(orders)),
	}
	for _, o := range orders {
		s.ItemsSold += len(o.Items)
		s.PurchaseAmount = s.PurchaseAmount.Add(o.TotalPrice)
		if o.DiscountPrice.Valid {
			s.DiscountAmount = s.DiscountAmount.Add(o.DiscountPrice.Decimal)
		}
		if o.CouponCode != "" {
			s.CouponsUsed = append(s.CouponsUsed, o.CouponCode)
		}
		s.Orders = append(s.Orders, OrderView{
			ID:         o.ID,
			UserID:     o.UserID,
			Items:      len(o.Items),
			Total:      o.TotalPrice,
			CouponCode: o.CouponCode,
			Discount:   o.DiscountPrice,
			Date:       o.CreatedAt.UTC().Format(DateLayout),
		})
	}
	return s
}
