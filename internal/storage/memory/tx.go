package memory

import (
	"context"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

var _ checkout.Tx = (*memTx)(nil)

// memTx mutates the working copy of a single Commit.
type memTx struct {
	st    *state
	newID func() key.Key
}

func (t *memTx) InsertOrder(_ context.Context, o *order.Order) (key.Key, error) {
	stored := cloneOrder(*o)
	stored.ID = t.newID()
	t.st.orders = append(t.st.orders, stored)
	return stored.ID, nil
}

func (t *memTx) ClearCartAndAppendOrder(_ context.Context, userID key.Key, cartVersion int64, summary user.OrderSummary) error {
	u, ok := t.st.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	if u.CartVersion != cartVersion {
		return user.ErrCartModified
	}

	u.Cart = nil
	u.CartVersion++
	u.OrdersPlaced = append(u.OrdersPlaced, summary)
	t.st.users[userID] = u
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, decs []checkout.StockDecrement, policy checkout.StockPolicy) error {
	for _, d := range decs {
		p, ok := t.st.products[d.ProductID]
		if !ok {
			return &checkout.MissingProductError{ProductID: d.ProductID}
		}
		if policy == checkout.StockReject && p.Stock < d.Amount {
			return &checkout.InsufficientStockError{
				ProductID: d.ProductID,
				Requested: d.Amount,
				Available: p.Stock,
			}
		}
		p.Stock -= d.Amount
		t.st.products[d.ProductID] = p
	}
	return nil
}
