package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// apiError is the mapping of a service error onto the wire.
type apiError struct {
	status  int
	code    string
	message string
	details interface{}
}

func mapError(err error) apiError {
	var (
		invalid    *service.ValidationError
		notFound   *service.ProductNotFoundError
		short      *service.InsufficientStockError
		transition *service.TransitionError
	)

	switch {
	case errors.As(err, &invalid):
		return apiError{http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			gin.H{invalid.Field: invalid.Message}}
	case errors.As(err, &notFound):
		return apiError{http.StatusBadRequest, "PRODUCT_NOT_FOUND", "Product not found",
			gin.H{"productId": notFound.ProductID}}
	case errors.Is(err, service.ErrInvalidProductPrice):
		return apiError{http.StatusBadRequest, "INVALID_PRODUCT_PRICE", "Product has an invalid price", nil}
	case errors.As(err, &short):
		return apiError{http.StatusBadRequest, "INSUFFICIENT_STOCK",
			fmt.Sprintf("Insufficient stock for %s", short.ProductName),
			gin.H{
				"productId": short.ProductID,
				"requested": short.Requested,
				"available": short.Available,
			}}
	case errors.Is(err, service.ErrInvalidRefundAmount):
		return apiError{http.StatusBadRequest, "INVALID_REFUND_AMOUNT", err.Error(), nil}
	case errors.Is(err, service.ErrUnauthenticated):
		return apiError{http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil}
	case errors.Is(err, service.ErrForbidden):
		return apiError{http.StatusForbidden, "FORBIDDEN", "Not allowed", nil}
	case errors.Is(err, service.ErrOrderNotFound):
		return apiError{http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found", nil}
	case errors.Is(err, service.ErrOrderExists):
		return apiError{http.StatusConflict, "ORDER_EXISTS", "Order already exists", nil}
	case errors.Is(err, service.ErrAlreadyRefunded):
		return apiError{http.StatusConflict, "ALREADY_REFUNDED", "Order already refunded", nil}
	case errors.As(err, &transition) && errors.Is(err, service.ErrOrderNotCancellable):
		return apiError{http.StatusUnprocessableEntity, "ORDER_NOT_CANCELLABLE",
			fmt.Sprintf("Order cannot be cancelled in status %s", transition.Status),
			gin.H{"status": transition.Status}}
	case errors.Is(err, service.ErrOrderNotCancellable):
		return apiError{http.StatusUnprocessableEntity, "ORDER_NOT_CANCELLABLE", "Order cannot be cancelled", nil}
	case errors.As(err, &transition) && errors.Is(err, service.ErrOrderNotRefundable):
		return apiError{http.StatusUnprocessableEntity, "ORDER_NOT_REFUNDABLE",
			fmt.Sprintf("Order cannot be refunded in status %s", transition.Status),
			gin.H{"status": transition.Status}}
	case errors.Is(err, service.ErrOrderNotRefundable):
		return apiError{http.StatusUnprocessableEntity, "ORDER_NOT_REFUNDABLE", "Order cannot be refunded", nil}
	case errors.Is(err, service.ErrOrderNotPaid):
		return apiError{http.StatusUnprocessableEntity, "ORDER_NOT_PAID", "Order has not been paid", nil}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong, please try again", nil}
	}
}

// writeError sends err as a JSON error body. Internal errors are logged and
// their detail is withheld in production.
func (h *Handler) writeError(c *gin.Context, err error) {
	e := mapError(err)

	body := gin.H{"error": e.message, "code": e.code}
	if e.details != nil {
		body["details"] = e.details
	}

	if e.status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if !h.opts.Production {
			body["details"] = err.Error()
		}
	}

	c.AbortWithStatusJSON(e.status, body)
}

// writeBindError reports a request body that failed to decode or validate.
func writeBindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make(gin.H, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fieldPath(fe)] = fieldMessage(fe)
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"code":    "VALIDATION_ERROR",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"code":    "INVALID_BODY",
		"details": err.Error(),
	})
}

// fieldPath drops the root struct name: CreateOrderRequest.items[0].quantity
// becomes items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

var tagNamesOnce sync.Once

// registerValidatorTagNames makes field errors use JSON names.
func registerValidatorTagNames() {
	tagNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}
