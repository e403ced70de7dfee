package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

const (
	setSynchronousCommitSQL = `SELECT set_config('synchronous_commit', $1, true)`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	clearCartSQL = `UPDATE users SET
			cart = '[]'::jsonb,
			cart_version = cart_version + 1,
			orders_placed = orders_placed || $3::jsonb
		WHERE id = $1 AND cart_version = $2`

	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`

	decrementStockIfAvailableSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	productStockSQL = `SELECT stock FROM products WHERE id = $1`
)

// DefaultSynchronousCommit is used when TransactorOptions leaves it empty.
const DefaultSynchronousCommit = "on"

// TransactorOptions configures checkout commits.
type TransactorOptions struct {
	// SynchronousCommit is applied with SET LOCAL to every checkout
	// transaction: "on", "remote_write", "remote_apply", "local" or "off".
	SynchronousCommit string
}

var _ checkout.Transactor = (*Transactor)(nil)

// Transactor runs checkout ops in a single READ COMMITTED transaction.
// Conflicting writers are serialised by row locks taken in the conditional
// UPDATEs; the cart version and stock predicates are re-evaluated after a
// lock wait, so a stale read aborts instead of overwriting.
type Transactor struct {
	pool       *pgxpool.Pool
	syncCommit string
}

// NewTransactor returns a Transactor that uses the given pool.
func NewTransactor(pool *pgxpool.Pool, opts TransactorOptions) *Transactor {
	if opts.SynchronousCommit == "" {
		opts.SynchronousCommit = DefaultSynchronousCommit
	}
	return &Transactor{pool: pool, syncCommit: opts.SynchronousCommit}
}

// Commit runs ops in order and commits only if all of them succeed.
func (t *Transactor) Commit(ctx context.Context, ops ...checkout.Op) error {
	return pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setSynchronousCommitSQL, t.syncCommit); err != nil {
			return fmt.Errorf("setting synchronous_commit: %w", err)
		}

		ptx := &pgTx{tx: tx}
		for _, op := range ops {
			if err := op(ctx, ptx); err != nil {
				return err
			}
		}
		return nil
	})
}

type pgTx struct {
	tx pgx.Tx
}

var _ checkout.Tx = (*pgTx)(nil)

func (t *pgTx) InsertOrder(ctx context.Context, o *order.Order) (key.Key, error) {
	items, err := encodeSnapshots(o.Items)
	if err != nil {
		return key.Key{}, err
	}

	id := key.MustParse(uuid.NewString())
	_, err = t.tx.Exec(ctx, insertOrderSQL,
		id.String(), o.UserID.String(), items, o.Subtotal, o.TotalPrice, string(o.Status),
		nullString(o.CouponCode), o.DiscountPrice, o.CreatedAt,
	)
	if err != nil {
		return key.Key{}, fmt.Errorf("inserting order for user %q: %w", o.UserID, err)
	}
	return id, nil
}

func (t *pgTx) ClearCartAndAppendOrder(ctx context.Context, userID key.Key, cartVersion int64, summary user.OrderSummary) error {
	placed, err := encodeSummaries([]user.OrderSummary{summary})
	if err != nil {
		return err
	}

	tag, err := t.tx.Exec(ctx, clearCartSQL, userID.String(), cartVersion, placed)
	if err != nil {
		return fmt.Errorf("clearing cart of user %q: %w", userID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, userExistsSQL, userID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("checking user %q: %w", userID, err)
	}
	if !exists {
		return user.ErrNotFound
	}
	return user.ErrCartModified
}

func (t *pgTx) DecrementStock(ctx context.Context, decs []checkout.StockDecrement, policy checkout.StockPolicy) error {
	query := decrementStockIfAvailableSQL
	if policy == checkout.StockAllowNegative {
		query = decrementStockSQL
	}

	for _, d := range decs {
		tag, err := t.tx.Exec(ctx, query, d.ProductID.String(), d.Amount)
		if err != nil {
			return fmt.Errorf("decrementing stock of product %q: %w", d.ProductID, err)
		}
		if tag.RowsAffected() == 1 {
			continue
		}

		var stock int
		if err := t.tx.QueryRow(ctx, productStockSQL, d.ProductID.String()).Scan(&stock); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &checkout.MissingProductError{ProductID: d.ProductID}
			}
			return fmt.Errorf("reading stock of product %q: %w", d.ProductID, err)
		}
		return &checkout.InsufficientStockError{
			ProductID: d.ProductID,
			Requested: d.Amount,
			Available: stock,
		}
	}
	return nil
}
