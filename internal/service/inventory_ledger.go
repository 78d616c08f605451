package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StockLine is a quantity of one product to move in or out of stock.
type StockLine struct {
	ProductID         int64
	ProductName       string
	Quantity          int
	TrackInventory    bool
	LowStockThreshold int
}

func stockLineOf(item models.CalculatedLineItem) StockLine {
	return StockLine{
		ProductID:         item.ProductID,
		ProductName:       item.ProductName,
		Quantity:          item.Quantity,
		TrackInventory:    item.TrackInventory,
		LowStockThreshold: item.LowStockThreshold,
	}
}

// InventoryLedger adjusts product stock inside a caller-owned transaction.
type InventoryLedger struct {
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{
		logger: util.GetLogger().Named("inventory"),
	}
}

// Decrement takes line.Quantity units out of stock. Untracked products are
// left alone. Stock never goes negative: a shortfall fails the call.
func (l *InventoryLedger) Decrement(ctx context.Context, q store.Querier, line StockLine) error {
	if !line.TrackInventory {
		return nil
	}

	ctx, span := util.StartSpan(ctx, "InventoryLedger.Decrement",
		attribute.Int64("product.id", line.ProductID),
		attribute.Int("quantity", line.Quantity),
	)
	defer span.End()

	remaining, err := q.DecrementStock(ctx, line.ProductID, line.Quantity)
	if err != nil {
		if errors.Is(err, store.ErrStockConflict) {
			available, lookupErr := currentStock(ctx, q, line.ProductID)
			if lookupErr != nil {
				return util.RecordError(span, fmt.Errorf("failed to read stock after conflict: %w", lookupErr))
			}
			l.logger.Warn("Stock changed before decrement",
				zap.Int64("product_id", line.ProductID),
				zap.Int("requested", line.Quantity),
				zap.Int("available", available))
			return &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   line.Quantity,
				Available:   available,
			}
		}
		return util.RecordError(span, fmt.Errorf("failed to decrement stock: %w", err))
	}

	util.InventoryAdjustmentsTotal.WithLabelValues("decrement").Inc()

	if line.LowStockThreshold > 0 && remaining <= line.LowStockThreshold {
		util.InventoryLowStockTotal.Inc()
		l.logger.Warn("Product stock is low",
			zap.Int64("product_id", line.ProductID),
			zap.String("product_name", line.ProductName),
			zap.Int("remaining", remaining),
			zap.Int("threshold", line.LowStockThreshold))
	}

	return nil
}

// Restore returns the quantities of items to stock and reports the product
// IDs that were actually adjusted. Products that no longer exist or no
// longer track inventory are skipped.
func (l *InventoryLedger) Restore(ctx context.Context, q store.Querier, items models.LineItems) ([]int64, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Restore", attribute.Int("items", len(items)))
	defer span.End()

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	products, err := q.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load products: %w", err))
	}
	tracked := make(map[int64]bool, len(products))
	for _, p := range products {
		tracked[p.ID] = p.TrackInventory
	}

	var restored []int64
	for _, item := range items {
		track, ok := tracked[item.ProductID]
		if !ok {
			l.logger.Warn("Skipping restore for missing product",
				zap.Int64("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity))
			continue
		}
		if !track {
			continue
		}

		if _, err := q.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, util.RecordError(span, fmt.Errorf("failed to restore stock: %w", err))
		}
		util.InventoryAdjustmentsTotal.WithLabelValues("restore").Inc()
		restored = append(restored, item.ProductID)
	}

	return restored, nil
}

// currentStock reads the stock left for productID. A missing product has none.
func currentStock(ctx context.Context, q store.Querier, productID int64) (int, error) {
	products, err := q.GetProductsByIDs(ctx, []int64{productID})
	if err != nil {
		return 0, err
	}
	if len(products) == 0 {
		return 0, nil
	}
	return products[0].StockQuantity, nil
}
