package orders

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/storefront-labs/storefront/internal/catalog"
	"github.com/storefront-labs/storefront/internal/domain"
)

type OrderRepository struct {
	db       *sql.DB
	products *catalog.ProductRepository
}

func NewOrderRepository(db *sql.DB, products *catalog.ProductRepository) *OrderRepository {
	return &OrderRepository{db: db, products: products}
}

// Place runs the order placement transaction: lock the requested product rows,
// validate every line item against that single stock snapshot, then write the
// order, its line items and the stock decrements as one atomic unit.
//
// Failures map onto the domain error types: ValidationError before any store
// access, NotFoundError / InsufficientStockError during validation (nothing
// written yet), InternalError for store failures (transaction rolled back).
func (r *OrderRepository) Place(ctx context.Context, items []domain.LineItemRequest) (*domain.Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.InternalError{Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	ids := distinctProductIDs(items)

	products, err := r.products.LockByIDs(ctx, tx, ids)
	if err != nil {
		return nil, &domain.InternalError{Err: err}
	}

	for _, id := range ids {
		if _, ok := products[id]; !ok {
			// ids are sorted, so this is the smallest missing one.
			return nil, &domain.NotFoundError{ProductID: id}
		}
	}

	// Stock check against the locked snapshot, in input order. Running sums
	// per product make duplicate ids in one request count together.
	requested := make(map[int64]int, len(ids))
	for _, item := range items {
		product := products[item.ProductID]
		requested[item.ProductID] += item.Quantity
		if requested[item.ProductID] > product.Stock {
			return nil, &domain.InsufficientStockError{
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   requested[item.ProductID],
			}
		}
	}

	total := orderTotal(products, items)

	order := &domain.Order{
		TotalPrice: total,
		Status:     domain.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (total_price, status, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, order.TotalPrice, order.Status, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return nil, &domain.InternalError{Err: err}
	}

	for _, item := range items {
		if err := r.products.DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, &domain.InternalError{Err: err}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity)
			VALUES ($1, $2, $3)
		`, order.ID, item.ProductID, item.Quantity)
		if err != nil {
			return nil, &domain.InternalError{Err: err}
		}

		product := products[item.ProductID]
		product.Stock -= item.Quantity
		products[item.ProductID] = product
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.InternalError{Err: err}
	}

	order.Items = make([]domain.OrderLineItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, domain.OrderLineItem{
			Product:  products[item.ProductID],
			Quantity: item.Quantity,
		})
	}

	return order, nil
}

// GetByID returns the order with its line items and resolved products, or nil
// when no such order exists.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, total_price, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.TotalPrice, &order.Status, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	type itemRow struct {
		productID int64
		quantity  int
	}
	var itemRows []itemRow
	for rows.Next() {
		var row itemRow
		if err := rows.Scan(&row.productID, &row.quantity); err != nil {
			return nil, err
		}
		itemRows = append(itemRows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(itemRows))
	for _, row := range itemRows {
		ids = append(ids, row.productID)
	}

	products, err := r.products.GetByIDs(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}

	order.Items = make([]domain.OrderLineItem, 0, len(itemRows))
	for _, row := range itemRows {
		order.Items = append(order.Items, domain.OrderLineItem{
			Product:  products[row.productID],
			Quantity: row.quantity,
		})
	}

	return order, nil
}

func validateItems(items []domain.LineItemRequest) error {
	if len(items) == 0 {
		return &domain.ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return &domain.ValidationError{Field: "quantity", Message: "quantity must be positive"}
		}
	}
	return nil
}

func distinctProductIDs(items []domain.LineItemRequest) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
