package checkout

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// StockPolicy selects how the commit treats stock that would go negative.
type StockPolicy string

const (
	// StockReject aborts the commit when any product lacks the stock to
	// cover its decrement.
	StockReject StockPolicy = "reject"
	// StockAllowNegative decrements unconditionally, letting stock drop
	// below zero under contention.
	StockAllowNegative StockPolicy = "allow-negative"
)

// ParseStockPolicy validates a configured policy name. The empty string
// selects StockReject.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch p := StockPolicy(s); p {
	case "":
		return StockReject, nil
	case StockReject, StockAllowNegative:
		return p, nil
	default:
		return "", errors.Errorf("unknown stock policy %q", s)
	}
}

// StockDecrement removes Amount units from a product's stock.
type StockDecrement struct {
	ProductID key.Key
	Amount    int
}

// Decrements aggregates cart entries into one decrement per product, where
// Amount is the number of times the product occurs. The result is sorted by
// product key so concurrent commits lock rows in the same order.
func Decrements(items []product.Snapshot) []StockDecrement {
	counts := make(map[key.Key]int, len(items))
	for _, it := range items {
		counts[it.ID]++
	}

	out := make([]StockDecrement, 0, len(counts))
	for id, n := range counts {
		out = append(out, StockDecrement{ProductID: id, Amount: n})
	}
	slices.SortFunc(out, func(a, b StockDecrement) int {
		return key.Compare(a.ProductID, b.ProductID)
	})
	return out
}

// Tx is the set of writes a checkout issues inside one atomic scope.
type Tx interface {
	// InsertOrder appends o to the ledger and returns its new key.
	InsertOrder(ctx context.Context, o *order.Order) (key.Key, error)
	// ClearCartAndAppendOrder empties the user's cart and appends summary to
	// its placed orders, provided the cart is still at cartVersion.
	// Returns user.ErrNotFound or user.ErrCartModified.
	ClearCartAndAppendOrder(ctx context.Context, userID key.Key, cartVersion int64, summary user.OrderSummary) error
	// DecrementStock applies every decrement. Under StockReject a short
	// product yields *InsufficientStockError. A missing product yields an
	// error wrapping product.ErrNotFound.
	DecrementStock(ctx context.Context, decs []StockDecrement, policy StockPolicy) error
}

// Op is one pending write. Reads have already happened when ops are built.
type Op func(ctx context.Context, tx Tx) error

// Transactor runs ops in order within a single transaction. Either every
// op takes effect or none does; an error from any op aborts the rest.
// Implementations acknowledge a commit only once it is durable.
type Transactor interface {
	Commit(ctx context.Context, ops ...Op) error
}
