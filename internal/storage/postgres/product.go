package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/key"
	"github.com/xenking/storefront/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, stock, images
		FROM products WHERE (NOT $1 OR stock > 0) ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, stock, images
		FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock, images)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, images = EXCLUDED.images`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns catalog products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, filter product.Filter) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL, filter.InStockOnly)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id key.Key) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id.String())
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// UpsertProduct inserts or replaces a catalog entry.
func (r *ProductRepository) UpsertProduct(ctx context.Context, p *product.Product) error {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertProductSQL, p.ID.String(), p.Name, p.Price, p.Stock, images); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p  product.Product
		id string
	)
	if err := row.Scan(&id, &p.Name, &p.Price, &p.Stock, &p.Images); err != nil {
		return p, err
	}
	k, err := parseKey("product id", id)
	if err != nil {
		return p, err
	}
	p.ID = k
	return p, nil
}
