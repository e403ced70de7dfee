package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, name, email, phone, cart, cart_version, orders_placed
		FROM users WHERE id = $1`

	lockCartSQL = `SELECT cart FROM users WHERE id = $1 FOR UPDATE`

	appendCartSQL = `UPDATE users SET cart = cart || $2::jsonb, cart_version = cart_version + 1
		WHERE id = $1`

	replaceCartSQL = `UPDATE users SET cart = $2::jsonb, cart_version = cart_version + 1
		WHERE id = $1`

	upsertUserSQL = `INSERT INTO users (id, name, email, phone, cart, cart_version, orders_placed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone,
			cart = EXCLUDED.cart, cart_version = EXCLUDED.cart_version,
			orders_placed = EXCLUDED.orders_placed`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a user with its cart and placed orders.
func (r *UserRepository) GetByID(ctx context.Context, id key.Key) (*user.User, error) {
	rows, err := r.pool.Query(ctx, getUserByIDSQL, id.String())
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	return &u, nil
}

// AddToCart appends a snapshot to the user's cart.
func (r *UserRepository) AddToCart(ctx context.Context, id key.Key, item product.Snapshot) error {
	data, err := encodeSnapshots([]product.Snapshot{item})
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, appendCartSQL, id.String(), data)
	if err != nil {
		return fmt.Errorf("adding to cart of user %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// RemoveFromCart drops the first cart entry for productID.
func (r *UserRepository) RemoveFromCart(ctx context.Context, id, productID key.Key) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var data []byte
		if err := tx.QueryRow(ctx, lockCartSQL, id.String()).Scan(&data); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrNotFound
			}
			return fmt.Errorf("locking cart of user %q: %w", id, err)
		}

		cart, err := decodeSnapshots(data)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(cart, func(s product.Snapshot) bool { return s.ID == productID })
		if i < 0 {
			return user.ErrNotInCart
		}

		data, err = encodeSnapshots(slices.Delete(cart, i, i+1))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, replaceCartSQL, id.String(), data); err != nil {
			return fmt.Errorf("removing from cart of user %q: %w", id, err)
		}
		return nil
	})
}

// UpsertUser inserts or replaces a user record.
func (r *UserRepository) UpsertUser(ctx context.Context, u *user.User) error {
	cart, err := encodeSnapshots(u.Cart)
	if err != nil {
		return err
	}
	placed, err := encodeSummaries(u.OrdersPlaced)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, upsertUserSQL,
		u.ID.String(), u.Name, u.Email, u.Phone, cart, u.CartVersion, placed,
	)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u            user.User
		id           string
		cart, placed []byte
	)
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Phone, &cart, &u.CartVersion, &placed); err != nil {
		return u, err
	}

	k, err := parseKey("user id", id)
	if err != nil {
		return u, err
	}
	u.ID = k
	if u.Cart, err = decodeSnapshots(cart); err != nil {
		return u, err
	}
	if u.OrdersPlaced, err = decodeSummaries(placed); err != nil {
		return u, err
	}
	return u, nil
}
