// Package mongodb implements the stores and the checkout transaction
// boundary on MongoDB. Collections and field names follow the documents
// the storefront has always kept: users, products, orders and coupons.
//
// Checkout transactions need a replica set or sharded cluster.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	UsersCollection    = "users"
	ProductsCollection = "products"
	OrdersCollection   = "orders"
	CouponsCollection  = "coupons"
)

const connectTimeout = 10 * time.Second

// DB is a connected database handle.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect dials uri and selects database.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	return &DB{client: client, database: client.Database(database)}, nil
}

// Database returns the selected database.
func (d *DB) Database() *mongo.Database { return d.database }

// Ping checks the primary is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the stores rely on.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	_, err := d.database.Collection(CouponsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "coupon_code", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating coupon_code index: %w", err)
	}

	_, err = d.database.Collection(OrdersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("creating orders created_at index: %w", err)
	}
	return nil
}
