package catalog

import (
	"context"
	"database/sql"
	"sort"

	"github.com/lib/pq"

	"github.com/storefront-labs/storefront/internal/domain"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// product lookups can run either standalone or inside a caller's transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, stock
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, product.Name, product.Description, product.Price, product.Stock).Scan(&product.ID)
}

// GetByIDs fetches the requested products in a single lookup. Ids with no
// matching row are simply absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, q Querier, ids []int64) (map[int64]domain.Product, error) {
	return r.fetchByIDs(ctx, q, ids, false)
}

// LockByIDs is GetByIDs with FOR UPDATE row locks, for use inside the order
// placement transaction. Ids are scanned in ascending order so concurrent
// placements acquire locks in a consistent order.
func (r *ProductRepository) LockByIDs(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]domain.Product, error) {
	return r.fetchByIDs(ctx, tx, ids, true)
}

func (r *ProductRepository) fetchByIDs(ctx context.Context, q Querier, ids []int64, forUpdate bool) (map[int64]domain.Product, error) {
	if len(ids) == 0 {
		return map[int64]domain.Product{}, nil
	}

	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	query := `
		SELECT id, name, description, price, stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[int64]domain.Product, len(sorted))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// DecrementStock reduces a product's stock. The caller has already verified
// the quantity against the locked row; the stock >= 0 check constraint is the
// last line of defense.
func (r *ProductRepository) DecrementStock(ctx context.Context, q Querier, productID int64, quantity int) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
