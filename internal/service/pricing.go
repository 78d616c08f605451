package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Catalog is the read side of the product table used for pricing.
type Catalog interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// CartItem is a product and quantity as submitted by the client.
type CartItem struct {
	ProductID int64
	Quantity  int
}

// PriceCalculator computes authoritative order totals from current catalog
// data. It only reads.
type PriceCalculator struct {
	freeShippingThreshold decimal.Decimal
}

// NewPriceCalculator creates a price calculator. A positive
// freeShippingThreshold waives shipping once the subtotal reaches it.
func NewPriceCalculator(freeShippingThreshold decimal.Decimal) *PriceCalculator {
	return &PriceCalculator{freeShippingThreshold: freeShippingThreshold}
}

// Calculate prices items against catalog. The first missing product, bad
// price or stock shortfall aborts the whole calculation.
func (pc *PriceCalculator) Calculate(
	ctx context.Context,
	catalog Catalog,
	items []CartItem,
	taxRate decimal.Decimal,
	shippingCost decimal.Decimal,
) (*models.OrderCalculation, error) {
	ctx, span := util.StartSpan(ctx, "PriceCalculator.Calculate", attribute.Int("items", len(items)))
	defer span.End()

	if err := validateCartItems(items); err != nil {
		return nil, err
	}

	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := catalog.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to load products: %w", err))
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	calc := &models.OrderCalculation{
		Items:    make([]models.CalculatedLineItem, 0, len(items)),
		Subtotal: decimal.Zero,
	}

	for _, item := range items {
		product, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}

		if product.PriceRegular.IsNegative() || (product.PriceSale.Valid && product.PriceSale.Decimal.IsNegative()) {
			return nil, &InvalidPriceError{ProductID: product.ID}
		}
		price := product.EffectivePrice().Round(2)

		if product.TrackInventory && product.StockQuantity < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   item.Quantity,
				Available:   product.StockQuantity,
			}
		}

		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		calc.Items = append(calc.Items, models.CalculatedLineItem{
			ProductID:         product.ID,
			ProductName:       product.Name,
			ProductImage:      product.Image,
			Quantity:          item.Quantity,
			Price:             price,
			Total:             lineTotal,
			TrackInventory:    product.TrackInventory,
			LowStockThreshold: product.LowStockThreshold,
		})
		calc.Subtotal = calc.Subtotal.Add(lineTotal)
	}

	if pc.freeShippingThreshold.IsPositive() && calc.Subtotal.GreaterThanOrEqual(pc.freeShippingThreshold) {
		shippingCost = decimal.Zero
	}

	calc.Subtotal = calc.Subtotal.Round(2)
	calc.Tax = calc.Subtotal.Mul(taxRate).Round(2)
	calc.ShippingCost = shippingCost.Round(2)
	calc.Total = calc.Subtotal.Add(calc.Tax).Add(calc.ShippingCost).Round(2)

	return calc, nil
}

func validateCartItems(items []CartItem) error {
	if len(items) == 0 {
		return &ValidationError{Field: "items", Message: "must contain at least one item"}
	}
	for i, item := range items {
		if item.ProductID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].productId", i), Message: "is required"}
		}
		if item.Quantity <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be greater than 0"}
		}
	}
	return nil
}

// mergeCartItems sums quantities of repeated products, keeping first-seen order.
func mergeCartItems(items []CartItem) []CartItem {
	index := make(map[int64]int, len(items))
	merged := make([]CartItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
