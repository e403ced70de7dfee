// Package memory implements every store and the checkout transaction
// boundary in process memory.
//
// Commits run against a private copy of the whole state and replace it
// only when every op succeeded, so readers see either the old state or the
// new one. Intended for tests and local development.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var _ checkout.Transactor = (*Store)(nil)

type state struct {
	products map[key.Key]product.Product
	users    map[key.Key]user.User
	coupons  map[string]coupon.Coupon
	orders   []order.Order
}

func newState() *state {
	return &state{
		products: make(map[key.Key]product.Product),
		users:    make(map[key.Key]user.User),
		coupons:  make(map[string]coupon.Coupon),
	}
}

func (s *state) clone() *state {
	c := &state{
		products: make(map[key.Key]product.Product, len(s.products)),
		users:    make(map[key.Key]user.User, len(s.users)),
		coupons:  make(map[string]coupon.Coupon, len(s.coupons)),
		orders:   make([]order.Order, len(s.orders)),
	}
	for k, p := range s.products {
		c.products[k] = cloneProduct(p)
	}
	for k, u := range s.users {
		c.users[k] = cloneUser(u)
	}
	for k, cp := range s.coupons {
		c.coupons[k] = cp
	}
	for i, o := range s.orders {
		c.orders[i] = cloneOrder(o)
	}
	return c
}

// Store is an in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	state *state
	newID func() key.Key
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		state: newState(),
		newID: func() key.Key { return key.MustParse(uuid.NewString()) },
	}
}

// Products returns the catalog view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Users returns the user store view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Coupons returns the coupon store view.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

// Orders returns the order ledger view.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Commit runs ops against a copy of the state and installs the copy only if
// every op succeeds. Commits are serialised.
func (s *Store) Commit(ctx context.Context, ops ...checkout.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	tx := &memTx{st: work, newID: s.newID}
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op(ctx, tx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = work
	return nil
}

// snapshot returns a deep copy of the current state for assertions.
func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func cloneProduct(p product.Product) product.Product {
	p.Images = slices.Clone(p.Images)
	return p
}

func cloneUser(u user.User) user.User {
	u.Cart = product.CloneSnapshots(u.Cart)
	u.OrdersPlaced = slices.Clone(u.OrdersPlaced)
	return u
}

func cloneOrder(o order.Order) order.Order {
	o.Items = product.CloneSnapshots(o.Items)
	return o
}
