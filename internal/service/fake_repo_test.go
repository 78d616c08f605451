package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory Repository. InTx holds the lock for the whole
// transaction and restores a snapshot when fn fails.
type fakeRepo struct {
	mu       sync.Mutex
	products map[int64]models.Product
	orders   map[int64]models.Order
	nextID   int64
}

func newFakeRepo(products ...models.Product) *fakeRepo {
	r := &fakeRepo{
		products: make(map[int64]models.Product),
		orders:   make(map[int64]models.Order),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func newProduct(id int64, price string, stock int) models.Product {
	return models.Product{
		ID:             id,
		SKU:            "SKU-" + price,
		Name:           "Product " + price,
		PriceRegular:   decimal.RequireFromString(price),
		StockQuantity:  stock,
		TrackInventory: true,
	}
}

func (r *fakeRepo) stock(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].StockQuantity
}

func (r *fakeRepo) orderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func (r *fakeRepo) InTx(_ context.Context, fn func(q store.Querier) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	products := make(map[int64]models.Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	orders := make(map[int64]models.Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	nextID := r.nextID

	if err := fn(&fakeTx{r: r}); err != nil {
		r.products, r.orders, r.nextID = products, orders, nextID
		return err
	}
	return nil
}

func (r *fakeRepo) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.productsByIDs(ids), nil
}

func (r *fakeRepo) productsByIDs(ids []int64) []models.Product {
	var out []models.Product
	seen := make(map[int64]bool)
	for _, id := range ids {
		if p, ok := r.products[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRepo) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (r *fakeRepo) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *fakeRepo) GetOrdersByUserID(_ context.Context, userID string, limit int) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.sortedOrders() {
		if o.UserID == userID && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListOrders(_ context.Context, filter store.OrderFilter) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.sortedOrders() {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, o)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// sortedOrders returns live orders newest first.
func (r *fakeRepo) sortedOrders() []models.Order {
	var out []models.Order
	for _, o := range r.orders {
		if o.DeletedAt == nil {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *fakeRepo) SoftDeleteOrder(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	o.DeletedAt = &now
	r.orders[id] = o
	return nil
}

// setOrder overwrites fields of a stored order outside the service.
func (r *fakeRepo) setOrder(id int64, fn func(o *models.Order)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	fn(&o)
	r.orders[id] = o
}

// fakeTx runs with fakeRepo.mu already held.
type fakeTx struct {
	r *fakeRepo
}

func (t *fakeTx) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	return t.r.productsByIDs(ids), nil
}

func (t *fakeTx) DecrementStock(_ context.Context, productID int64, quantity int) (int, error) {
	p, ok := t.r.products[productID]
	if !ok || p.StockQuantity < quantity {
		return 0, store.ErrStockConflict
	}
	p.StockQuantity -= quantity
	t.r.products[productID] = p
	return p.StockQuantity, nil
}

func (t *fakeTx) RestoreStock(_ context.Context, productID int64, quantity int) (int, error) {
	p, ok := t.r.products[productID]
	if !ok || !p.TrackInventory {
		return 0, store.ErrNotFound
	}
	p.StockQuantity += quantity
	t.r.products[productID] = p
	return p.StockQuantity, nil
}

func (t *fakeTx) CreateOrder(_ context.Context, order *models.Order) error {
	for _, o := range t.r.orders {
		if o.OrderNumber == order.OrderNumber {
			return store.ErrDuplicateOrderNumber
		}
		if order.IdempotencyKey != nil && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
			return store.ErrDuplicateIdempotencyKey
		}
	}
	t.r.nextID++
	order.ID = t.r.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	t.r.orders[order.ID] = *order
	return nil
}

func (t *fakeTx) GetOrderForUpdate(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.r.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (t *fakeTx) UpdateOrder(_ context.Context, order *models.Order) error {
	if _, ok := t.r.orders[order.ID]; !ok {
		return store.ErrNotFound
	}
	order.UpdatedAt = time.Now()
	t.r.orders[order.ID] = *order
	return nil
}

type fakeAdmins map[string]bool

func (f fakeAdmins) IsAdmin(_ context.Context, userID string) (bool, error) {
	return f[userID], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderEvent
	err    error
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

// tickingClock advances one millisecond per call so order numbers differ.
func tickingClock() func() time.Time {
	var ms int64
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ms, 1)) * time.Millisecond)
	}
}

func (r *fakeRepo) setStock(id int64, stock int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.products[id]
	p.StockQuantity = stock
	r.products[id] = p
}
