package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderRefunded      = "ORDER_REFUNDED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after every committed order lifecycle change.
type OrderEvent struct {
	BaseEvent
	OrderID           int64            `json:"order_id"`
	OrderNumber       string           `json:"order_number"`
	UserID            string           `json:"user_id,omitempty"`
	CustomerName      string           `json:"customer_name"`
	CustomerEmail     string           `json:"customer_email"`
	Status            OrderStatus      `json:"status"`
	PaymentStatus     PaymentStatus    `json:"payment_status"`
	TrackingNumber    string           `json:"tracking_number,omitempty"`
	Total             decimal.Decimal  `json:"total"`
	Currency          string           `json:"currency"`
	RefundAmount      *decimal.Decimal `json:"refund_amount,omitempty"`
	InventoryRestored bool             `json:"inventory_restored,omitempty"`
	Items             []OrderItemData  `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// NewOrderEvent builds an event of the given type from the order's current state.
func NewOrderEvent(eventID, eventType string, at time.Time, order *Order) *OrderEvent {
	items := make([]OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemData{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
		})
	}

	return &OrderEvent{
		BaseEvent: BaseEvent{
			EventID:   eventID,
			EventType: eventType,
			Timestamp: at,
		},
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		TrackingNumber: order.TrackingNumber,
		Total:          order.Total,
		Currency:       order.Currency,
		RefundAmount:   order.RefundAmount,
		Items:          items,
	}
}
