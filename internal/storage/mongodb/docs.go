package mongodb

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// money stores a decimal as Decimal128 at the 2-place money scale.
// Documents written with plain numbers decode as well.
type money decimal.Decimal

func (m money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d, err := primitive.ParseDecimal128(decimal.Decimal(m).StringFixed(2))
	if err != nil {
		return 0, nil, fmt.Errorf("encoding decimal %s: %w", decimal.Decimal(m), err)
	}
	return bson.MarshalValue(d)
}

func (m *money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.Decimal128:
		d, err := decimal.NewFromString(rv.Decimal128().String())
		if err != nil {
			return fmt.Errorf("decoding decimal: %w", err)
		}
		*m = money(d)
	case bsontype.Double:
		*m = money(decimal.NewFromFloat(rv.Double()))
	case bsontype.Int32:
		*m = money(decimal.NewFromInt32(rv.Int32()))
	case bsontype.Int64:
		*m = money(decimal.NewFromInt(rv.Int64()))
	default:
		return errors.Errorf("cannot decode %s into decimal", t)
	}
	return nil
}

func (m money) dec() decimal.Decimal { return decimal.Decimal(m) }

// nullMoney is money that may be BSON null, as discount prices of orders
// placed without a coupon are.
type nullMoney decimal.NullDecimal

func (m nullMoney) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !m.Valid {
		return bsontype.Null, nil, nil
	}
	return money(m.Decimal).MarshalBSONValue()
}

func (m *nullMoney) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null || t == bsontype.Undefined {
		*m = nullMoney{}
		return nil
	}
	var v money
	if err := v.UnmarshalBSONValue(t, data); err != nil {
		return err
	}
	*m = nullMoney(decimal.NewNullDecimal(v.dec()))
	return nil
}

func (m nullMoney) null() decimal.NullDecimal { return decimal.NullDecimal(m) }

// docID returns the _id value for k: an ObjectID when k is a 24-char hex
// string, the raw string otherwise.
func docID(k key.Key) any {
	if oid, err := primitive.ObjectIDFromHex(k.String()); err == nil {
		return oid
	}
	return k.String()
}

func keyOf(v any) (key.Key, error) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return key.MustParse(id.Hex()), nil
	case string:
		k, err := key.Parse(id)
		if err != nil {
			return key.Key{}, fmt.Errorf("decoding _id %q: %w", id, err)
		}
		return k, nil
	default:
		return key.Key{}, errors.Errorf("unsupported _id type %T", v)
	}
}

type productDoc struct {
	ID     any      `bson:"_id"`
	Name   string   `bson:"name"`
	Price  money    `bson:"price"`
	Stock  int      `bson:"stock"`
	Images []string `bson:"images"`
}

func newProductDoc(p product.Product) productDoc {
	return productDoc{
		ID:     docID(p.ID),
		Name:   p.Name,
		Price:  money(p.Price),
		Stock:  p.Stock,
		Images: nonNil(p.Images),
	}
}

func (d productDoc) product() (product.Product, error) {
	id, err := keyOf(d.ID)
	if err != nil {
		return product.Product{}, err
	}
	return product.Product{ID: id, Name: d.Name, Price: d.Price.dec(), Stock: d.Stock, Images: d.Images}, nil
}

// snapshotDoc is a product copy embedded in itemsInCart and order items.
type snapshotDoc productDoc

func snapshotDocs(items []product.Snapshot) []snapshotDoc {
	out := make([]snapshotDoc, len(items))
	for i, s := range items {
		out[i] = snapshotDoc{
			ID:     docID(s.ID),
			Name:   s.Name,
			Price:  money(s.Price),
			Stock:  s.Stock,
			Images: nonNil(s.Images),
		}
	}
	return out
}

func snapshots(docs []snapshotDoc) ([]product.Snapshot, error) {
	out := make([]product.Snapshot, len(docs))
	for i, d := range docs {
		p, err := productDoc(d).product()
		if err != nil {
			return nil, err
		}
		out[i] = p.Snapshot()
	}
	return out, nil
}

type summaryDoc struct {
	OrderID       any       `bson:"orderId"`
	TotalPrice    money     `bson:"totalPrice"`
	CouponCode    *string   `bson:"couponCode"`
	DiscountPrice nullMoney `bson:"discountPrice"`
	CreatedAt     time.Time `bson:"createdAt"`
}

type userDoc struct {
	ID           any           `bson:"_id"`
	Name         string        `bson:"name"`
	Email        string        `bson:"email"`
	Phone        string        `bson:"phone"`
	ItemsInCart  []snapshotDoc `bson:"itemsInCart"`
	CartVersion  int64         `bson:"cartVersion"`
	OrdersPlaced []summaryDoc  `bson:"ordersPlaced"`
}

func newSummaryDoc(s user.OrderSummary) summaryDoc {
	return summaryDoc{
		OrderID:       docID(s.OrderID),
		TotalPrice:    money(s.TotalPrice),
		CouponCode:    nullString(s.CouponCode),
		DiscountPrice: nullMoney(s.DiscountPrice),
		CreatedAt:     s.CreatedAt.UTC(),
	}
}

func newUserDoc(u user.User) userDoc {
	placed := make([]summaryDoc, len(u.OrdersPlaced))
	for i, s := range u.OrdersPlaced {
		placed[i] = newSummaryDoc(s)
	}
	return userDoc{
		ID:           docID(u.ID),
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		ItemsInCart:  snapshotDocs(u.Cart),
		CartVersion:  u.CartVersion,
		OrdersPlaced: placed,
	}
}

func (d userDoc) user() (user.User, error) {
	id, err := keyOf(d.ID)
	if err != nil {
		return user.User{}, err
	}
	cart, err := snapshots(d.ItemsInCart)
	if err != nil {
		return user.User{}, err
	}

	placed := make([]user.OrderSummary, len(d.OrdersPlaced))
	for i, s := range d.OrdersPlaced {
		orderID, err := keyOf(s.OrderID)
		if err != nil {
			return user.User{}, err
		}
		placed[i] = user.OrderSummary{
			OrderID:       orderID,
			TotalPrice:    s.TotalPrice.dec(),
			CouponCode:    derefString(s.CouponCode),
			DiscountPrice: s.DiscountPrice.null(),
			CreatedAt:     s.CreatedAt,
		}
	}

	return user.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		Cart:         cart,
		CartVersion:  d.CartVersion,
		OrdersPlaced: placed,
	}, nil
}

type couponDoc struct {
	Code      string    `bson:"coupon_code"`
	Discount  money     `bson:"discount"`
	Active    bool      `bson:"is_active"`
	CreatedAt time.Time `bson:"created_at"`
}

func newCouponDoc(c coupon.Coupon) couponDoc {
	return couponDoc{Code: c.Code, Discount: money(c.Discount), Active: c.Active, CreatedAt: c.CreatedAt.UTC()}
}

func (d couponDoc) coupon() coupon.Coupon {
	return coupon.Coupon{Code: d.Code, Discount: d.Discount.dec(), Active: d.Active, CreatedAt: d.CreatedAt}
}

type orderDoc struct {
	ID            any           `bson:"_id"`
	UserID        string        `bson:"user_id"`
	Items         []snapshotDoc `bson:"items"`
	Subtotal      money         `bson:"subtotal"`
	TotalPrice    money         `bson:"total_price"`
	Status        string        `bson:"status"`
	CouponCode    *string       `bson:"coupon_code"`
	DiscountPrice nullMoney     `bson:"discount_price"`
	CreatedAt     time.Time     `bson:"created_at"`
}

func newOrderDoc(id any, o order.Order) orderDoc {
	return orderDoc{
		ID:            id,
		UserID:        o.UserID.String(),
		Items:         snapshotDocs(o.Items),
		Subtotal:      money(o.Subtotal),
		TotalPrice:    money(o.TotalPrice),
		Status:        string(o.Status),
		CouponCode:    nullString(o.CouponCode),
		DiscountPrice: nullMoney(o.DiscountPrice),
		CreatedAt:     o.CreatedAt.UTC(),
	}
}

func (d orderDoc) order() (order.Order, error) {
	id, err := keyOf(d.ID)
	if err != nil {
		return order.Order{}, err
	}
	userID, err := key.Parse(d.UserID)
	if err != nil {
		return order.Order{}, fmt.Errorf("decoding user_id %q: %w", d.UserID, err)
	}
	items, err := snapshots(d.Items)
	if err != nil {
		return order.Order{}, err
	}
	return order.Order{
		ID:            id,
		UserID:        userID,
		Items:         items,
		Subtotal:      d.Subtotal.dec(),
		TotalPrice:    d.TotalPrice.dec(),
		Status:        order.Status(d.Status),
		CouponCode:    derefString(d.CouponCode),
		DiscountPrice: d.DiscountPrice.null(),
		CreatedAt:     d.CreatedAt,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
