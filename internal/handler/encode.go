package handler

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/summary"
	"github.com/xenking/storefront/internal/domain/user"
)

// Money is rendered as a JSON number with two decimals.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeNullMoney(e *jx.Encoder, d decimal.NullDecimal) {
	if !d.Valid {
		e.Null()
		return
	}
	encodeMoney(e, d.Decimal)
}

func encodeNullString(e *jx.Encoder, s string) {
	if s == "" {
		e.Null()
		return
	}
	e.Str(s)
}

func (h *Handler) image(ref string) string {
	if h.imageBaseURL == "" || strings.Contains(ref, "://") {
		return ref
	}
	return h.imageBaseURL + ref
}

func (h *Handler) encodeSnapshot(e *jx.Encoder, s product.Snapshot) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(s.ID.String())
	e.FieldStart("name")
	e.Str(s.Name)
	e.FieldStart("price")
	encodeMoney(e, s.Price)
	e.FieldStart("stock")
	e.Int(s.Stock)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range s.Images {
		e.Str(h.image(img))
	}
	e.ArrEnd()
	e.ObjEnd()
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	h.encodeSnapshot(e, product.Snapshot{
		ID:     p.ID,
		Name:   p.Name,
		Price:  p.Price,
		Stock:  p.Stock,
		Images: p.Images,
	})
}

func (h *Handler) encodeUser(e *jx.Encoder, u *user.User) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(u.ID.String())
	e.FieldStart("name")
	e.Str(u.Name)
	e.FieldStart("email")
	e.Str(u.Email)
	e.FieldStart("phone")
	e.Str(u.Phone)
	e.FieldStart("cart")
	e.ArrStart()
	for _, s := range u.Cart {
		h.encodeSnapshot(e, s)
	}
	e.ArrEnd()
	e.FieldStart("cartVersion")
	e.Int64(u.CartVersion)
	e.FieldStart("ordersPlaced")
	e.ArrStart()
	for _, o := range u.OrdersPlaced {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(o.OrderID.String())
		e.FieldStart("totalPrice")
		encodeMoney(e, o.TotalPrice)
		e.FieldStart("couponCode")
		encodeNullString(e, o.CouponCode)
		e.FieldStart("discountPrice")
		encodeNullMoney(e, o.DiscountPrice)
		e.FieldStart("createdAt")
		e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeResult(e *jx.Encoder, res *checkout.Result) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(res.OrderID.String())
	e.FieldStart("totalPrice")
	encodeMoney(e, res.TotalPrice)
	e.FieldStart("subtotal")
	encodeMoney(e, res.Subtotal)
	e.FieldStart("couponCode")
	encodeNullString(e, res.CouponCode)
	e.FieldStart("discountPrice")
	encodeNullMoney(e, res.DiscountPrice)
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount")
	e.Num(jx.Num(c.Discount.String()))
	e.FieldStart("active")
	e.Bool(c.Active)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *summary.Summary) {
	e.ObjStart()
	e.FieldStart("itemsSold")
	e.Int(s.ItemsSold)
	e.FieldStart("purchaseAmount")
	encodeMoney(e, s.PurchaseAmount)
	e.FieldStart("discountAmount")
	encodeMoney(e, s.DiscountAmount)
	e.FieldStart("couponsUsed")
	e.ArrStart()
	for _, code := range s.CouponsUsed {
		e.Str(code)
	}
	e.ArrEnd()
	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range s.Orders {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(o.ID.String())
		e.FieldStart("userId")
		e.Str(o.UserID.String())
		e.FieldStart("items")
		e.Int(o.Items)
		e.FieldStart("total")
		encodeMoney(e, o.Total)
		e.FieldStart("couponCode")
		encodeNullString(e, o.CouponCode)
		e.FieldStart("discount")
		encodeNullMoney(e, o.Discount)
		e.FieldStart("date")
		e.Str(o.Date)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
