package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID                int64               `db:"id" json:"id"`
	SKU               string              `db:"sku" json:"sku"`
	Name              string              `db:"name" json:"name"`
	Image             string              `db:"image" json:"image,omitempty"`
	PriceRegular      decimal.Decimal     `db:"price_regular" json:"priceRegular"`
	PriceSale         decimal.NullDecimal `db:"price_sale" json:"priceSale"`
	StockQuantity     int                 `db:"stock_quantity" json:"stockQuantity"`
	TrackInventory    bool                `db:"track_inventory" json:"trackInventory"`
	LowStockThreshold int                 `db:"low_stock_threshold" json:"lowStockThreshold"`
	CreatedAt         time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time           `db:"updated_at" json:"updatedAt"`
}

// EffectivePrice is the sale price when one is set, otherwise the regular price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.PriceSale.Valid {
		return p.PriceSale.Decimal
	}
	return p.PriceRegular
}

// Address is a shipping address, stored as JSONB on the order row.
type Address struct {
	Line1      string `json:"line1" binding:"required,max=200"`
	Line2      string `json:"line2,omitempty" binding:"max=200"`
	City       string `json:"city" binding:"required,max=100"`
	State      string `json:"state,omitempty" binding:"max=100"`
	PostalCode string `json:"postalCode" binding:"required,max=20"`
	Country    string `json:"country" binding:"required,len=2"`
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src interface{}) error {
	return scanJSON(src, a)
}

// OrderLineItem is a priced snapshot of one cart line. It is frozen when the
// order is placed; later catalog edits never change it.
type OrderLineItem struct {
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`
}

// LineItems is the JSONB items column of an order.
type LineItems []OrderLineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *LineItems) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Order represents a customer order
type Order struct {
	ID              int64            `db:"id" json:"id"`
	OrderNumber     string           `db:"order_number" json:"orderNumber"`
	IdempotencyKey  *string          `db:"idempotency_key" json:"-"`
	UserID          string           `db:"user_id" json:"userId,omitempty"`
	CustomerName    string           `db:"customer_name" json:"customerName"`
	CustomerEmail   string           `db:"customer_email" json:"customerEmail"`
	CustomerPhone   string           `db:"customer_phone" json:"customerPhone,omitempty"`
	ShippingAddress Address          `db:"shipping_address" json:"shippingAddress"`
	Items           LineItems        `db:"items" json:"items"`
	Subtotal        decimal.Decimal  `db:"subtotal" json:"subtotal"`
	Tax             decimal.Decimal  `db:"tax" json:"tax"`
	ShippingCost    decimal.Decimal  `db:"shipping_cost" json:"shippingCost"`
	Total           decimal.Decimal  `db:"total" json:"total"`
	Currency        string           `db:"currency" json:"currency"`
	Status          OrderStatus      `db:"status" json:"status"`
	PaymentStatus   PaymentStatus    `db:"payment_status" json:"paymentStatus"`
	PaymentMethod   string           `db:"payment_method" json:"paymentMethod,omitempty"`
	TrackingNumber  string           `db:"tracking_number" json:"trackingNumber,omitempty"`
	Notes           string           `db:"notes" json:"notes,omitempty"`
	RefundAmount    *decimal.Decimal `db:"refund_amount" json:"refundAmount,omitempty"`
	RefundedAt      *time.Time       `db:"refunded_at" json:"refundedAt,omitempty"`
	DeletedAt       *time.Time       `db:"deleted_at" json:"-"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// ProductIDs returns the distinct product ids referenced by the order's items.
func (o *Order) ProductIDs() []int64 {
	seen := make(map[int64]bool, len(o.Items))
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// AppendNote adds a line to the notes trail without dropping what is already there.
func (o *Order) AppendNote(note string) {
	if o.Notes == "" {
		o.Notes = note
		return
	}
	o.Notes = o.Notes + "\n" + note
}

// CalculatedLineItem is one priced cart line produced by the price calculator.
type CalculatedLineItem struct {
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`

	TrackInventory    bool `json:"-"`
	LowStockThreshold int  `json:"-"`
}

// OrderCalculation is the authoritative pricing of a cart.
type OrderCalculation struct {
	Items        []CalculatedLineItem `json:"items"`
	Subtotal     decimal.Decimal      `json:"subtotal"`
	Tax          decimal.Decimal      `json:"tax"`
	ShippingCost decimal.Decimal      `json:"shippingCost"`
	Total        decimal.Decimal      `json:"total"`
}

// LineItems snapshots the calculation into order line items.
func (c *OrderCalculation) LineItems() LineItems {
	items := make(LineItems, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, OrderLineItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Total:        item.Total,
		})
	}
	return items
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported json column type")
	}
}
