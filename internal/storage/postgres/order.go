package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, subtotal, total_price, status, coupon_code, discount_price, created_at`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY seq`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Orders
// are written by Transactor only.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// List returns every order in insertion order.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id key.Key) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id.String())
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		id, userID string
		items      []byte
		status     string
		couponCode *string
	)
	err := row.Scan(
		&id, &userID, &items, &o.Subtotal, &o.TotalPrice, &status,
		&couponCode, &o.DiscountPrice, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	if o.ID, err = parseKey("order id", id); err != nil {
		return o, err
	}
	if o.UserID, err = parseKey("order user_id", userID); err != nil {
		return o, err
	}
	if o.Items, err = decodeSnapshots(items); err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.CouponCode = derefString(couponCode)
	return o, nil
}
