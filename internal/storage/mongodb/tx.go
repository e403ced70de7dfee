package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/user"
)

// DefaultWriteTimeout bounds majority acknowledgement of a commit.
const DefaultWriteTimeout = time.Second

var _ checkout.Transactor = (*Transactor)(nil)

// Transactor runs checkout ops in a multi-document transaction with
// majority write concern and primary reads. A write conflict aborts the
// transaction; it is not retried.
type Transactor struct {
	client *mongo.Client
	db     *mongo.Database
	opts   *options.TransactionOptions
}

// NewTransactor returns a Transactor over d. A zero writeTimeout selects
// DefaultWriteTimeout.
func NewTransactor(d *DB, writeTimeout time.Duration) *Transactor {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	opts := options.Transaction().
		SetWriteConcern(writeconcern.New(writeconcern.WMajority(), writeconcern.WTimeout(writeTimeout))).
		SetReadPreference(readpref.Primary())
	return &Transactor{client: d.client, db: d.database, opts: opts}
}

// Commit runs ops in order inside one transaction and commits only if all
// of them succeed.
func (t *Transactor) Commit(ctx context.Context, ops ...checkout.Op) error {
	sess, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(t.opts); err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}

		tx := &mongoTx{db: t.db}
		for _, op := range ops {
			if err := op(sc, tx); err != nil {
				// EndSession aborts as well if this fails.
				_ = sess.AbortTransaction(context.WithoutCancel(sc))
				return err
			}
		}

		if err := sess.CommitTransaction(sc); err != nil {
			return fmt.Errorf("committing transaction: %w", err)
		}
		return nil
	})
}

type mongoTx struct {
	db *mongo.Database
}

var _ checkout.Tx = (*mongoTx)(nil)

func (t *mongoTx) InsertOrder(ctx context.Context, o *order.Order) (key.Key, error) {
	oid := primitive.NewObjectID()
	if _, err := t.db.Collection(OrdersCollection).InsertOne(ctx, newOrderDoc(oid, *o)); err != nil {
		return key.Key{}, fmt.Errorf("inserting order for user %q: %w", o.UserID, err)
	}
	return key.MustParse(oid.Hex()), nil
}

func (t *mongoTx) ClearCartAndAppendOrder(ctx context.Context, userID key.Key, cartVersion int64, summary user.OrderSummary) error {
	users := t.db.Collection(UsersCollection)
	res, err := users.UpdateOne(ctx, cartVersionFilter(userID, cartVersion), bson.M{
		"$set":  bson.M{"itemsInCart": bson.A{}},
		"$inc":  bson.M{"cartVersion": 1},
		"$push": bson.M{"ordersPlaced": newSummaryDoc(summary)},
	})
	if err != nil {
		return fmt.Errorf("clearing cart of user %q: %w", userID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := users.CountDocuments(ctx, bson.M{"_id": docID(userID)})
	if err != nil {
		return fmt.Errorf("checking user %q: %w", userID, err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return user.ErrCartModified
}

func (t *mongoTx) DecrementStock(ctx context.Context, decs []checkout.StockDecrement, policy checkout.StockPolicy) error {
	products := t.db.Collection(ProductsCollection)
	for _, d := range decs {
		filter := bson.M{"_id": docID(d.ProductID)}
		if policy == checkout.StockReject {
			filter["stock"] = bson.M{"$gte": d.Amount}
		}

		res, err := products.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"stock": -d.Amount}})
		if err != nil {
			return fmt.Errorf("decrementing stock of product %q: %w", d.ProductID, err)
		}
		if res.MatchedCount == 1 {
			continue
		}

		var current productDoc
		err = products.FindOne(ctx, bson.M{"_id": docID(d.ProductID)}).Decode(&current)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return &checkout.MissingProductError{ProductID: d.ProductID}
			}
			return fmt.Errorf("reading stock of product %q: %w", d.ProductID, err)
		}
		return &checkout.InsufficientStockError{
			ProductID: d.ProductID,
			Requested: d.Amount,
			Available: current.Stock,
		}
	}
	return nil
}
