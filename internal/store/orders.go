package store

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, order_number, idempotency_key, user_id, customer_name, customer_email,
	customer_phone, shipping_address, items, subtotal, tax, shipping_cost, total, currency,
	status, payment_status, payment_method, tracking_number, notes, refund_amount, refunded_at,
	deleted_at, created_at, updated_at`

// OrderFilter narrows the admin order list
type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	Limit         int
	Offset        int
}

func createOrder(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, idempotency_key, user_id, customer_name, customer_email,
			customer_phone, shipping_address, items, subtotal, tax, shipping_cost, total, currency,
			status, payment_status, payment_method, tracking_number, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`

	row := q.QueryRowxContext(ctx, query,
		order.OrderNumber, order.IdempotencyKey, order.UserID, order.CustomerName, order.CustomerEmail,
		order.CustomerPhone, order.ShippingAddress, order.Items, order.Subtotal, order.Tax,
		order.ShippingCost, order.Total, order.Currency, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.TrackingNumber, order.Notes)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, id int64, lock bool) (*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1 AND deleted_at IS NULL"
	if lock {
		query += " FOR UPDATE"
	}

	var order models.Order
	if err := sqlx.GetContext(ctx, q, &order, query, id); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// updateOrder writes the mutable columns. Items and monetary totals are
// frozen at creation and never rewritten.
func updateOrder(ctx context.Context, q sqlx.ExtContext, order *models.Order) error {
	err := sqlx.GetContext(ctx, q, &order.UpdatedAt, `
		UPDATE orders
		SET customer_name = $1, customer_phone = $2, shipping_address = $3, status = $4,
			payment_status = $5, tracking_number = $6, notes = $7, refund_amount = $8,
			refunded_at = $9, updated_at = NOW()
		WHERE id = $10 AND deleted_at IS NULL
		RETURNING updated_at`,
		order.CustomerName, order.CustomerPhone, order.ShippingAddress, order.Status,
		order.PaymentStatus, order.TrackingNumber, order.Notes, order.RefundAmount,
		order.RefundedAt, order.ID)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrder(ctx, s.db, id, false)
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE idempotency_key = $1", key)
	if err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+` FROM orders
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListOrders lists non-deleted orders for the back office
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	conds := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		conds = append(conds, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)

	query := fmt.Sprintf("SELECT %s FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		orderColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// SoftDeleteOrder hides an order from lists; the row is kept.
func (s *Store) SoftDeleteOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// GetUserRole returns the stored role for a user, or ErrNotFound.
func (s *Store) GetUserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, "SELECT role FROM user_roles WHERE user_id = $1", userID)
	if err != nil {
		return "", notFound(err)
	}
	return role, nil
}
