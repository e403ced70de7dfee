package mongodb

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by MongoDB.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository returns a UserRepository over the users collection of
// db.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

// GetByID returns a user with its cart and placed orders.
func (r *UserRepository) GetByID(ctx context.Context, id key.Key) (*user.User, error) {
	var d userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": docID(id)}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", id, err)
	}
	u, err := d.user()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AddToCart pushes a snapshot onto itemsInCart.
func (r *UserRepository) AddToCart(ctx context.Context, id key.Key, item product.Snapshot) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": docID(id)}, bson.M{
		"$push": bson.M{"itemsInCart": snapshotDocs([]product.Snapshot{item})[0]},
		"$inc":  bson.M{"cartVersion": 1},
	})
	if err != nil {
		return fmt.Errorf("adding to cart of user %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

// RemoveFromCart drops the first cart entry for productID. The rewritten
// cart is stored only if no other mutation landed in between.
func (r *UserRepository) RemoveFromCart(ctx context.Context, id, productID key.Key) error {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(u.Cart, func(s product.Snapshot) bool { return s.ID == productID })
	if i < 0 {
		return user.ErrNotInCart
	}

	res, err := r.coll.UpdateOne(ctx, cartVersionFilter(id, u.CartVersion), bson.M{
		"$set": bson.M{"itemsInCart": snapshotDocs(slices.Delete(u.Cart, i, i+1))},
		"$inc": bson.M{"cartVersion": 1},
	})
	if err != nil {
		return fmt.Errorf("removing from cart of user %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return user.ErrCartModified
	}
	return nil
}

// UpsertUser inserts or replaces a user document.
func (r *UserRepository) UpsertUser(ctx context.Context, u *user.User) error {
	d := newUserDoc(*u)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": d.ID}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.ID, err)
	}
	return nil
}

// cartVersionFilter matches the user at the given cart version. Documents
// that never had a cart mutation carry no cartVersion field at all.
func cartVersionFilter(id key.Key, version int64) bson.M {
	f := bson.M{"_id": docID(id), "cartVersion": version}
	if version == 0 {
		f["cartVersion"] = bson.M{"$in": bson.A{0, nil}}
	}
	return f
}
