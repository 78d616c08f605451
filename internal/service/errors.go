package service

import (
	"errors"
	"fmt"

	"storefront/internal/models"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidProductPrice = errors.New("invalid product price")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderExists         = errors.New("order already exists")
	ErrOrderNotCancellable = errors.New("order cannot be cancelled")
	ErrOrderNotRefundable  = errors.New("order cannot be refunded")
	ErrAlreadyRefunded     = errors.New("order already refunded")
	ErrOrderNotPaid        = errors.New("order not paid")
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("forbidden")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %d", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

type InvalidPriceError struct {
	ProductID int64
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid product price: %d", e.ProductID)
}

func (e *InvalidPriceError) Unwrap() error { return ErrInvalidProductPrice }

type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested=%d, available=%d",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError reports a lifecycle action that is illegal from the
// order's current state.
type TransitionError struct {
	Err           error
	OrderID       int64
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: order %d is %s/%s", e.Err, e.OrderID, e.Status, e.PaymentStatus)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func transitionError(err error, order *models.Order) *TransitionError {
	return &TransitionError{
		Err:           err,
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	}
}
