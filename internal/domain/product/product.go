package product

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/key"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID     key.Key
	Name   string
	Price  decimal.Decimal
	Stock  int
	Images []string
}

// Snapshot returns a point-in-time copy of the product suitable for
// embedding in a cart or an order.
func (p Product) Snapshot() Snapshot {
	return Snapshot{
		ID:     p.ID,
		Name:   p.Name,
		Price:  p.Price,
		Stock:  p.Stock,
		Images: slices.Clone(p.Images),
	}
}

// Snapshot is a denormalized copy of a Product captured when it was added
// to a cart. Later catalog changes never reach existing snapshots.
type Snapshot struct {
	ID     key.Key
	Name   string
	Price  decimal.Decimal
	Stock  int
	Images []string
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	s.Images = slices.Clone(s.Images)
	return s
}

// CloneSnapshots deep-copies a snapshot slice. A nil input yields an empty,
// non-nil slice so that stored carts and orders never encode as null.
func CloneSnapshots(in []Snapshot) []Snapshot {
	out := make([]Snapshot, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Filter narrows catalog listings.
type Filter struct {
	// InStockOnly keeps products with stock > 0.
	InStockOnly bool
}

// Repository defines read operations for the product catalog. Stock is
// only ever mutated inside a checkout transaction.
type Repository interface {
	List(ctx context.Context, filter Filter) ([]Product, error)
	GetByID(ctx context.Context, id key.Key) (*Product, error)
}
