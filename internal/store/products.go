package store

import (
	"context"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, sku, name, image, price_regular, price_sale, stock_quantity,
	track_inventory, low_stock_threshold, created_at, updated_at`

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs in one query
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	return getProductsByIDs(ctx, s.db, ids, false)
}

func getProductsByIDs(ctx context.Context, q sqlx.ExtContext, ids []int64, lock bool) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	// Rows are locked in id order so concurrent checkouts cannot deadlock.
	query := "SELECT " + productColumns + " FROM products WHERE id IN (?) ORDER BY id"
	if lock {
		query += " FOR UPDATE"
	}

	query, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}
	query = q.Rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, q, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return products, nil
}

// decrementStock only succeeds when enough stock remains, so the column can
// never go negative. A miss is reported as ErrStockConflict.
func decrementStock(ctx context.Context, q sqlx.ExtContext, productID int64, quantity int) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, q, &stock, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		WHERE id = $2 AND track_inventory AND stock_quantity >= $1
		RETURNING stock_quantity`,
		quantity, productID)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return 0, ErrStockConflict
		}
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return stock, nil
}

// restoreStock returns ErrNotFound when the product is gone or untracked.
func restoreStock(ctx context.Context, q sqlx.ExtContext, productID int64, quantity int) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, q, &stock, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2 AND track_inventory
		RETURNING stock_quantity`,
		quantity, productID)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to restore stock: %w", err)
	}
	return stock, nil
}
