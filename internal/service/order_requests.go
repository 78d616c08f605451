package service

import (
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest is a checkout submission. Only product IDs and
// quantities are trusted; client totals are compared and then discarded.
type CreateOrderRequest struct {
	CustomerName    string               `json:"customerName" binding:"required,max=200"`
	CustomerEmail   string               `json:"customerEmail" binding:"required,email,max=254"`
	CustomerPhone   string               `json:"customerPhone" binding:"max=40"`
	ShippingAddress models.Address       `json:"shippingAddress"`
	Items           []OrderItemRequest   `json:"items" binding:"required,min=1,dive"`
	PaymentMethod   string               `json:"paymentMethod" binding:"omitempty,oneof=cod card bank_transfer"`
	PaymentStatus   models.PaymentStatus `json:"paymentStatus" binding:"omitempty,oneof=unpaid paid"`
	Notes           string               `json:"notes" binding:"max=1000"`
	IdempotencyKey  string               `json:"idempotencyKey" binding:"max=100"`

	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
}

// OrderItemRequest represents an item in a cart
type OrderItemRequest struct {
	ProductID int64 `json:"productId" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// QuoteRequest prices a cart without placing an order.
type QuoteRequest struct {
	Items []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type RefundRequest struct {
	Reason           string           `json:"reason" binding:"required"`
	RefundAmount     *decimal.Decimal `json:"refundAmount,omitempty"`
	RestoreInventory *bool            `json:"restoreInventory,omitempty"`
}

// UpdateOrderRequest is an admin edit. Nil fields are left unchanged.
type UpdateOrderRequest struct {
	Status          *models.OrderStatus   `json:"status,omitempty"`
	PaymentStatus   *models.PaymentStatus `json:"paymentStatus,omitempty"`
	TrackingNumber  *string               `json:"trackingNumber,omitempty" binding:"omitempty,max=100"`
	CustomerName    *string               `json:"customerName,omitempty" binding:"omitempty,min=1,max=200"`
	CustomerPhone   *string               `json:"customerPhone,omitempty" binding:"omitempty,max=40"`
	ShippingAddress *models.Address       `json:"shippingAddress,omitempty"`
	Note            string                `json:"note,omitempty" binding:"max=1000"`
}

type CreateOrderResult struct {
	Order *models.Order
	// Replayed is set when the idempotency key matched an earlier order.
	Replayed bool
}

type CancelResult struct {
	Order             *models.Order `json:"order"`
	InventoryRestored bool          `json:"inventoryRestored"`
}

type RefundResult struct {
	Order             *models.Order   `json:"order"`
	RefundAmount      decimal.Decimal `json:"refundAmount"`
	Currency          string          `json:"currency"`
	InventoryRestored bool            `json:"inventoryRestored"`
}

const (
	minRefundReason = 10
	maxRefundReason = 500
)

func cartItems(items []OrderItemRequest) ([]CartItem, error) {
	cart := make([]CartItem, len(items))
	for i, item := range items {
		cart[i] = CartItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	if err := validateCartItems(cart); err != nil {
		return nil, err
	}
	return mergeCartItems(cart), nil
}

func (r *RefundRequest) validate() (string, error) {
	reason := strings.TrimSpace(r.Reason)
	if n := len([]rune(reason)); n < minRefundReason || n > maxRefundReason {
		return "", &ValidationError{Field: "reason", Message: "must be between 10 and 500 characters"}
	}
	if r.RefundAmount != nil && !r.RefundAmount.Round(2).IsPositive() {
		return "", fmt.Errorf("%w: must be greater than 0", ErrInvalidRefundAmount)
	}
	return reason, nil
}

func (r *UpdateOrderRequest) validate() error {
	if r.Status != nil && !r.Status.Valid() {
		return &ValidationError{Field: "status", Message: "is not a known order status"}
	}
	if r.PaymentStatus != nil && !r.PaymentStatus.Valid() {
		return &ValidationError{Field: "paymentStatus", Message: "is not a known payment status"}
	}
	return nil
}
