package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
)

// ProductReader loads a single catalog product.
type ProductReader interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// ProductService serves catalog reads through the cache.
type ProductService struct {
	products ProductReader
	cache    *redisclient.Client
	ttl      time.Duration
}

// NewProductService creates a product service. cache may be nil.
func NewProductService(products ProductReader, cache *redisclient.Client, ttl time.Duration) *ProductService {
	return &ProductService{products: products, cache: cache, ttl: ttl}
}

func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct", attribute.Int64("product.id", id))
	defer span.End()

	key := redisclient.ProductKey(id)

	var cached models.Product
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	product, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		return nil, util.RecordError(span, err)
	}

	s.cache.SetJSON(ctx, key, product, s.ttl)
	return product, nil
}
