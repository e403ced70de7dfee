package memory

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

// Products implements product.Repository over a Store.
type Products struct{ s *Store }

var _ product.Repository = (*Products)(nil)

// List returns products ordered by key.
func (r *Products) List(_ context.Context, filter product.Filter) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(r.s.state.products))
	for _, p := range r.s.state.products {
		if filter.InStockOnly && p.Stock <= 0 {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b product.Product) int {
		return key.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetByID returns a product by key.
func (r *Products) GetByID(_ context.Context, id key.Key) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.state.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

// UpsertProduct inserts or replaces a product.
func (r *Products) UpsertProduct(_ context.Context, p *product.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.state.products[p.ID] = cloneProduct(*p)
	return nil
}

// Users implements user.Repository over a Store.
type Users struct{ s *Store }

var _ user.Repository = (*Users)(nil)

// GetByID returns a user by key.
func (r *Users) GetByID(_ context.Context, id key.Key) (*user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.state.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

// AddToCart appends a snapshot to the user's cart.
func (r *Users) AddToCart(_ context.Context, id key.Key, item product.Snapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.state.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Cart = append(u.Cart, item.Clone())
	u.CartVersion++
	r.s.state.users[id] = u
	return nil
}

// RemoveFromCart drops the first cart entry for productID.
func (r *Users) RemoveFromCart(_ context.Context, id, productID key.Key) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.state.users[id]
	if !ok {
		return user.ErrNotFound
	}
	i := slices.IndexFunc(u.Cart, func(s product.Snapshot) bool { return s.ID == productID })
	if i < 0 {
		return user.ErrNotInCart
	}
	u.Cart = slices.Delete(u.Cart, i, i+1)
	u.CartVersion++
	r.s.state.users[id] = u
	return nil
}

// UpsertUser inserts or replaces a user.
func (r *Users) UpsertUser(_ context.Context, u *user.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.state.users[u.ID] = cloneUser(*u)
	return nil
}

// Coupons implements coupon.Repository over a Store.
type Coupons struct{ s *Store }

var _ coupon.Repository = (*Coupons)(nil)

// FindByCode returns a coupon by its normalized code.
func (r *Coupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.state.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

// Create stores a new coupon.
func (r *Coupons) Create(_ context.Context, c *coupon.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.state.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	r.s.state.coupons[c.Code] = *c
	return nil
}

// Orders implements order.Repository over a Store.
type Orders struct{ s *Store }

var _ order.Repository = (*Orders)(nil)

// List returns every order in insertion order.
func (r *Orders) List(_ context.Context) ([]order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]order.Order, len(r.s.state.orders))
	for i, o := range r.s.state.orders {
		out[i] = cloneOrder(o)
	}
	return out, nil
}

// GetByID returns an order by key.
func (r *Orders) GetByID(_ context.Context, id key.Key) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, o := range r.s.state.orders {
		if o.ID == id {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}
