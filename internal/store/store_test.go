package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetProductsByIDs(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "price_regular", "price_sale", "stock_quantity", "track_inventory"}).
		AddRow(1, "Mug", "12.50", nil, 4, true).
		AddRow(2, "Poster", "30.00", "19.99", 0, false)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id IN ($1, $2) ORDER BY id")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(rows)

	products, err := s.GetProductsByIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "12.5", products[0].EffectivePrice().String())
	assert.False(t, products[0].PriceSale.Valid)
	assert.Equal(t, "19.99", products[1].EffectivePrice().String())
	assert.False(t, products[1].TrackInventory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductsByIDsEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	products, err := s.GetProductsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxLocksAndDecrements(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id IN ($1) ORDER BY id FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stock_quantity", "track_inventory"}).AddRow(5, 10, true))
	mock.ExpectQuery(regexp.QuoteMeta("SET stock_quantity = stock_quantity - $1")).
		WithArgs(3, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(7))
	mock.ExpectCommit()

	var remaining int
	err := s.InTx(context.Background(), func(q Querier) error {
		products, err := q.GetProductsByIDs(context.Background(), []int64{5})
		if err != nil {
			return err
		}
		remaining, err = q.DecrementStock(context.Background(), products[0].ID, 3)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStockConflictRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET stock_quantity = stock_quantity - $1")).
		WithArgs(3, int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(q Querier) error {
		_, err := q.DecrementStock(context.Background(), 5, 3)
		return err
	})
	assert.ErrorIs(t, err, ErrStockConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreStockUntracked(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET stock_quantity = stock_quantity + $1")).
		WithArgs(2, int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(q Querier) error {
		_, err := q.RestoreStock(context.Background(), 9, 2)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderDuplicateNumber(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{name: "order number", constraint: "orders_order_number_key", want: ErrDuplicateOrderNumber},
		{name: "idempotency key", constraint: "orders_idempotency_key_key", want: ErrDuplicateIdempotencyKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectBegin()
			mock.ExpectQuery("INSERT INTO orders").
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})
			mock.ExpectRollback()

			err := s.InTx(context.Background(), func(q Querier) error {
				return q.CreateOrder(context.Background(), &models.Order{
					OrderNumber: "ORD-2026-123456",
					Subtotal:    decimal.NewFromInt(10),
					Status:      models.OrderStatusPending,
				})
			})
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetOrderByIDNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM orders WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetOrderByID(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersFilter(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE deleted_at IS NULL AND status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("shipped", 20, 40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "status"}).AddRow(3, "ORD-2026-000003", "shipped"))

	orders, err := s.ListOrders(context.Background(), OrderFilter{Status: models.OrderStatusShipped, Limit: 20, Offset: 40})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusShipped, orders[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteOrder(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE orders SET deleted_at = NOW()").
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.SoftDeleteOrder(context.Background(), 8), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT role FROM user_roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

	role, err := s.GetUserRole(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
