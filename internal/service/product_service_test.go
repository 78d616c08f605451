package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisclient.NewFromRedis(rdb), mr
}

func TestGetProductCachesReads(t *testing.T) {
	cache, mr := newCache(t)
	repo := newFakeRepo(newProduct(1, "10", 5))
	svc := NewProductService(repo, cache, time.Minute)
	ctx := context.Background()

	p, err := svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)
	assert.True(t, mr.Exists(redisclient.ProductKey(1)))

	// A cached read does not see the database change.
	repo.setStock(1, 2)
	p, err = svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)

	_, err = svc.GetProduct(ctx, 404)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProductWithoutCache(t *testing.T) {
	svc := NewProductService(newFakeRepo(newProduct(1, "10", 5)), nil, time.Minute)

	p, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "10", p.PriceRegular.String())
}

func TestCheckoutInvalidatesProductCache(t *testing.T) {
	cache, mr := newCache(t)
	repo := newFakeRepo(newProduct(1, "10", 5))
	products := NewProductService(repo, cache, time.Minute)
	orders := NewOrderService(repo, nil, fakeAdmins{}, cache, testPricing, WithClock(tickingClock()))
	ctx := context.Background()

	_, err := products.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists(redisclient.ProductKey(1)))

	_, err = orders.CreateOrder(ctx, checkout(OrderItemRequest{ProductID: 1, Quantity: 2}), customerID)
	require.NoError(t, err)
	assert.False(t, mr.Exists(redisclient.ProductKey(1)))

	p, err := products.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, p.StockQuantity)
}
