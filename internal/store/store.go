package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrDuplicateOrderNumber    = errors.New("duplicate order number")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrStockConflict means a conditional stock decrement matched no row.
	ErrStockConflict = errors.New("stock conflict")
)

const uniqueViolation = "23505"

// Querier is the set of operations available inside a transaction.
type Querier interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	DecrementStock(ctx context.Context, productID int64, quantity int) (int, error)
	RestoreStock(ctx context.Context, productID int64, quantity int) (int, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
}

type Store struct {
	db *sqlx.DB
}

// Options tunes the connection pool
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string, opts Options) (*Store, error) {
	sqlDB, err := otelsql.Open("postgres", databaseURL,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := sqlx.NewDb(sqlDB, "postgres")

	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is a Querier bound to an open transaction. Product and order reads take
// row locks.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	return getProductsByIDs(ctx, t.tx, ids, true)
}

func (t *Tx) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return decrementStock(ctx, t.tx, productID, quantity)
}

func (t *Tx) RestoreStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return restoreStock(ctx, t.tx, productID, quantity)
}

func (t *Tx) CreateOrder(ctx context.Context, order *models.Order) error {
	return createOrder(ctx, t.tx, order)
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t *Tx) UpdateOrder(ctx context.Context, order *models.Order) error {
	return updateOrder(ctx, t.tx, order)
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "orders_order_number_key":
		return ErrDuplicateOrderNumber
	case "orders_idempotency_key_key":
		return ErrDuplicateIdempotencyKey
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
