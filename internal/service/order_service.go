package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Repository is the persistence surface the order service needs.
type Repository interface {
	InTx(ctx context.Context, fn func(q store.Querier) error) error
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string, limit int) ([]models.Order, error)
	ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.Order, error)
	SoftDeleteOrder(ctx context.Context, id int64) error
}

// EventPublisher delivers committed order changes to the notification side.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// AdminChecker answers whether a user holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Pricing holds the checkout pricing inputs.
type Pricing struct {
	TaxRate               decimal.Decimal
	ShippingCost          decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	Currency              string
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
	publishTimeout   = 10 * time.Second
)

// priceTolerance is how far a client total may drift before it is logged.
var priceTolerance = decimal.New(1, -2)

// OrderService handles order business logic
type OrderService struct {
	repo       Repository
	calculator *PriceCalculator
	ledger     *InventoryLedger
	events     EventPublisher
	admins     AdminChecker
	cache      *redisclient.Client
	pricing    Pricing
	now        func() time.Time
	newEventID func() string
	logger     *zap.Logger
	inflight   sync.WaitGroup
}

// OrderServiceOption customises an OrderService.
type OrderServiceOption func(*OrderService)

// WithClock replaces the time source used for order numbers and timestamps.
func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) { s.now = now }
}

// WithEventIDs replaces the event id generator.
func WithEventIDs(gen func() string) OrderServiceOption {
	return func(s *OrderService) { s.newEventID = gen }
}

// NewOrderService creates a new order service. events and cache may be nil.
func NewOrderService(
	repo Repository,
	events EventPublisher,
	admins AdminChecker,
	cache *redisclient.Client,
	pricing Pricing,
	opts ...OrderServiceOption,
) *OrderService {
	s := &OrderService{
		repo:       repo,
		calculator: NewPriceCalculator(pricing.FreeShippingThreshold),
		ledger:     NewInventoryLedger(),
		events:     events,
		admins:     admins,
		cache:      cache,
		pricing:    pricing,
		now:        time.Now,
		newEventID: uuid.NewString,
		logger:     util.GetLogger().Named("orders"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until in-flight event publishes have finished.
func (s *OrderService) Wait() {
	s.inflight.Wait()
}

// Quote prices a cart against current catalog data without side effects.
func (s *OrderService) Quote(ctx context.Context, req *QuoteRequest) (*models.OrderCalculation, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Quote")
	defer span.End()

	items, err := cartItems(req.Items)
	if err != nil {
		return nil, err
	}
	return s.calculator.Calculate(ctx, s.repo, items, s.pricing.TaxRate, s.pricing.ShippingCost)
}

// CreateOrder prices the cart from the catalog, persists the order and takes
// the stock in one transaction. userID is empty for guest checkout.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, userID string) (*CreateOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() { util.CheckoutLatency.Observe(time.Since(start).Seconds()) }()

	items, err := cartItems(req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusUnpaid
	}
	if paymentStatus != models.PaymentStatusUnpaid && paymentStatus != models.PaymentStatusPaid {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Field: "paymentStatus", Message: "must be unpaid or paid"}
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.ID))
			return replayOrder(existing, userID)
		case !errors.Is(err, store.ErrNotFound):
			return nil, util.RecordError(span, fmt.Errorf("failed to check idempotency: %w", err))
		}
	}

	now := s.now()
	order := &models.Order{
		OrderNumber:     orderNumber(now),
		UserID:          userID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		Currency:        s.pricing.Currency,
		Status:          models.OrderStatusPending,
		PaymentStatus:   paymentStatus,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	err = s.repo.InTx(ctx, func(q store.Querier) error {
		calc, err := s.calculator.Calculate(ctx, q, items, s.pricing.TaxRate, s.pricing.ShippingCost)
		if err != nil {
			return err
		}

		order.Items = calc.LineItems()
		order.Subtotal = calc.Subtotal
		order.Tax = calc.Tax
		order.ShippingCost = calc.ShippingCost
		order.Total = calc.Total

		if err := q.CreateOrder(ctx, order); err != nil {
			return err
		}

		for _, item := range calc.Items {
			if err := s.ledger.Decrement(ctx, q, stockLineOf(item)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdempotencyKey) {
			existing, getErr := s.repo.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if getErr == nil {
				return replayOrder(existing, userID)
			}
		}
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		if errors.Is(err, store.ErrDuplicateOrderNumber) {
			s.logger.Warn("Order number collision",
				zap.String("order_number", order.OrderNumber))
			return nil, ErrOrderExists
		}
		if isClientError(err) {
			return nil, err
		}
		return nil, util.RecordError(span, fmt.Errorf("failed to create order: %w", err))
	}

	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.number", order.OrderNumber),
	)

	s.checkClientTotals(order, req)
	s.invalidateProducts(ctx, order.ProductIDs())

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)))

	s.publish(ctx, models.EventTypeOrderCreated, order, false)

	return &CreateOrderResult{Order: order}, nil
}

// GetOrder returns an order visible to userID.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, userID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	isAdmin, err := s.identify(ctx, userID)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if !canAccess(order, userID, isAdmin) {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders returns the caller's own orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, limit int) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	if userID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.GetOrdersByUserID(ctx, userID, clampLimit(limit))
}

// AdminListOrders lists all live orders matching filter.
func (s *OrderService) AdminListOrders(ctx context.Context, userID string, filter store.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AdminListOrders")
	defer span.End()

	if err := s.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "is not a known order status"}
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, &ValidationError{Field: "paymentStatus", Message: "is not a known payment status"}
	}
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListOrders(ctx, filter)
}

// CancelOrder moves a pending or processing order to cancelled. Stock is
// returned only when the order was paid.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, userID string) (*CancelResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	isAdmin, err := s.identify(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		result   *CancelResult
		restored []int64
	)
	err = s.repo.InTx(ctx, func(q store.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}
		if !canAccess(order, userID, isAdmin) {
			return ErrForbidden
		}
		if !order.Status.Cancellable() {
			return transitionError(ErrOrderNotCancellable, order)
		}

		inventoryRestored := false
		if order.PaymentStatus == models.PaymentStatusPaid {
			restored, err = s.ledger.Restore(ctx, q, order.Items)
			if err != nil {
				return err
			}
			inventoryRestored = true
		}

		order.Status = models.OrderStatusCancelled
		if err := q.UpdateOrder(ctx, order); err != nil {
			return err
		}
		result = &CancelResult{Order: order, InventoryRestored: inventoryRestored}
		return nil
	})
	if err != nil {
		return nil, s.lifecycleError(span, "cancel", err)
	}

	s.invalidateProducts(ctx, restored)
	util.OrdersCancelledTotal.WithLabelValues(strconv.FormatBool(result.InventoryRestored)).Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.Bool("inventory_restored", result.InventoryRestored))

	s.publish(ctx, models.EventTypeOrderCancelled, result.Order, result.InventoryRestored)

	return result, nil
}

// RefundOrder refunds a paid order that is not yet delivered, cancelled or
// refunded. Both statuses become refunded and the reason is appended to the
// order notes.
func (s *OrderService) RefundOrder(ctx context.Context, orderID int64, req *RefundRequest, userID string) (*RefundResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RefundOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	if err := s.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}
	reason, err := req.validate()
	if err != nil {
		return nil, err
	}
	restoreInventory := req.RestoreInventory == nil || *req.RestoreInventory

	var (
		result   *RefundResult
		restored []int64
	)
	err = s.repo.InTx(ctx, func(q store.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}
		if order.PaymentStatus == models.PaymentStatusRefunded || order.Status == models.OrderStatusRefunded {
			return transitionError(ErrAlreadyRefunded, order)
		}
		if order.Status.IsTerminal() {
			return transitionError(ErrOrderNotRefundable, order)
		}
		if order.PaymentStatus != models.PaymentStatusPaid {
			return transitionError(ErrOrderNotPaid, order)
		}

		amount := order.Total
		if req.RefundAmount != nil {
			amount = req.RefundAmount.Round(2)
			if amount.GreaterThan(order.Total) {
				return fmt.Errorf("%w: exceeds order total %s", ErrInvalidRefundAmount, order.Total.StringFixed(2))
			}
		}

		inventoryRestored := false
		if restoreInventory {
			restored, err = s.ledger.Restore(ctx, q, order.Items)
			if err != nil {
				return err
			}
			inventoryRestored = true
		}

		refundedAt := s.now()
		order.Status = models.OrderStatusRefunded
		order.PaymentStatus = models.PaymentStatusRefunded
		order.RefundAmount = &amount
		order.RefundedAt = &refundedAt
		order.AppendNote(fmt.Sprintf("[REFUND] %s (Amount: %s %s)", reason, amount.StringFixed(2), order.Currency))

		if err := q.UpdateOrder(ctx, order); err != nil {
			return err
		}
		result = &RefundResult{
			Order:             order,
			RefundAmount:      amount,
			Currency:          order.Currency,
			InventoryRestored: inventoryRestored,
		}
		return nil
	})
	if err != nil {
		return nil, s.lifecycleError(span, "refund", err)
	}

	s.invalidateProducts(ctx, restored)
	util.OrdersRefundedTotal.Inc()
	util.RefundAmountTotal.Add(result.RefundAmount.InexactFloat64())
	s.logger.Info("Order refunded",
		zap.Int64("order_id", orderID),
		zap.String("amount", result.RefundAmount.StringFixed(2)),
		zap.Bool("inventory_restored", result.InventoryRestored))

	s.publish(ctx, models.EventTypeOrderRefunded, result.Order, result.InventoryRestored)

	return result, nil
}

// UpdateOrder applies an admin edit. Status changes are not guarded by the
// lifecycle rules and never touch inventory.
func (s *OrderService) UpdateOrder(ctx context.Context, orderID int64, req *UpdateOrderRequest, userID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	if err := s.requireAdmin(ctx, userID); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		updated       *models.Order
		statusChanged bool
	)
	err := s.repo.InTx(ctx, func(q store.Querier) error {
		order, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return orderLookupError(err)
		}

		if req.Status != nil && *req.Status != order.Status {
			forward := models.IsForwardTransition(order.Status, *req.Status)
			util.OrderStatusOverridesTotal.WithLabelValues(strconv.FormatBool(forward)).Inc()
			if !forward {
				s.logger.Warn("Admin status override outside forward path",
					zap.Int64("order_id", order.ID),
					zap.String("admin_id", userID),
					zap.String("from", string(order.Status)),
					zap.String("to", string(*req.Status)))
			}
			order.Status = *req.Status
			statusChanged = true
		}
		if req.PaymentStatus != nil && *req.PaymentStatus != order.PaymentStatus {
			s.logger.Info("Admin payment status change",
				zap.Int64("order_id", order.ID),
				zap.String("admin_id", userID),
				zap.String("from", string(order.PaymentStatus)),
				zap.String("to", string(*req.PaymentStatus)))
			order.PaymentStatus = *req.PaymentStatus
			statusChanged = true
		}
		if req.TrackingNumber != nil {
			order.TrackingNumber = *req.TrackingNumber
		}
		if req.CustomerName != nil {
			order.CustomerName = *req.CustomerName
		}
		if req.CustomerPhone != nil {
			order.CustomerPhone = *req.CustomerPhone
		}
		if req.ShippingAddress != nil {
			order.ShippingAddress = *req.ShippingAddress
		}
		if req.Note != "" {
			order.AppendNote(req.Note)
		}

		if err := q.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, s.lifecycleError(span, "update", err)
	}

	if statusChanged {
		s.publish(ctx, models.EventTypeOrderStatusChanged, updated, false)
	}
	return updated, nil
}

// DeleteOrder soft deletes an order so it drops out of listings.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64, userID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder", attribute.Int64("order.id", orderID))
	defer span.End()

	if err := s.requireAdmin(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteOrder(ctx, orderID); err != nil {
		return orderLookupError(err)
	}
	s.logger.Info("Order deleted", zap.Int64("order_id", orderID), zap.String("admin_id", userID))
	return nil
}

// identify reports whether a signed-in caller is an admin.
func (s *OrderService) identify(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrUnauthenticated
	}
	isAdmin, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve role: %w", err)
	}
	return isAdmin, nil
}

func (s *OrderService) requireAdmin(ctx context.Context, userID string) error {
	isAdmin, err := s.identify(ctx, userID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}

func canAccess(order *models.Order, userID string, isAdmin bool) bool {
	return isAdmin || (order.UserID != "" && order.UserID == userID)
}

// replayOrder returns the order already created under an idempotency key.
// Only the caller that created it gets it back.
func replayOrder(existing *models.Order, userID string) (*CreateOrderResult, error) {
	if existing.UserID != userID {
		return nil, fmt.Errorf("%w: idempotency key was used by another customer", ErrOrderExists)
	}
	return &CreateOrderResult{Order: existing, Replayed: true}, nil
}

// checkClientTotals logs a client total that disagrees with the server's.
func (s *OrderService) checkClientTotals(order *models.Order, req *CreateOrderRequest) {
	if req.Total == nil {
		return
	}
	if req.Total.Sub(order.Total).Abs().GreaterThan(priceTolerance) {
		util.PriceMismatchTotal.Inc()
		s.logger.Warn("Client total differs from computed total",
			zap.String("order_number", order.OrderNumber),
			zap.String("client_total", req.Total.String()),
			zap.String("computed_total", order.Total.StringFixed(2)))
	}
}

func (s *OrderService) invalidateProducts(ctx context.Context, productIDs []int64) {
	if len(productIDs) == 0 {
		return
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = redisclient.ProductKey(id)
	}
	s.cache.Delete(ctx, keys...)
}

// publish sends the event in the background. Failures are logged only.
func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order, inventoryRestored bool) {
	if s.events == nil {
		return
	}

	event := models.NewOrderEvent(s.newEventID(), eventType, s.now(), order)
	event.InventoryRestored = inventoryRestored

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger.Error("Failed to publish order event",
				zap.String("event_type", eventType),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
	}()
}

func (s *OrderService) lifecycleError(span trace.Span, op string, err error) error {
	if isClientError(err) {
		return err
	}
	s.logger.Error("Order "+op+" failed", zap.Error(err))
	return util.RecordError(span, fmt.Errorf("failed to %s order: %w", op, err))
}

// orderNumber is the human-readable order reference, e.g. ORD-2026-123456.
func orderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%06d", now.Year(), now.UnixMilli()%1_000_000)
}

func orderLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrOrderNotFound
	}
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

var clientErrors = []error{
	ErrValidation,
	ErrProductNotFound,
	ErrInvalidProductPrice,
	ErrInsufficientStock,
	ErrOrderNotFound,
	ErrOrderExists,
	ErrOrderNotCancellable,
	ErrOrderNotRefundable,
	ErrAlreadyRefunded,
	ErrOrderNotPaid,
	ErrInvalidRefundAmount,
	ErrUnauthenticated,
	ErrForbidden,
}

func isClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInvalidProductPrice):
		return "invalid_price"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrDuplicateOrderNumber), errors.Is(err, store.ErrDuplicateIdempotencyKey):
		return "duplicate"
	default:
		return "db_error"
	}
}
