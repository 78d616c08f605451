package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectivePrice(t *testing.T) {
	p := Product{PriceRegular: decimal.RequireFromString("100.00")}
	assert.True(t, p.EffectivePrice().Equal(decimal.NewFromInt(100)))

	p.PriceSale = decimal.NewNullDecimal(decimal.RequireFromString("79.99"))
	assert.Equal(t, "79.99", p.EffectivePrice().String())
}

func TestOrderStatusRules(t *testing.T) {
	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusProcessing.Cancellable())
	assert.False(t, OrderStatusShipped.Cancellable())
	assert.False(t, OrderStatusRefunded.Cancellable())

	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, OrderStatusShipped.IsTerminal())

	assert.True(t, IsForwardTransition(OrderStatusPending, OrderStatusProcessing))
	assert.True(t, IsForwardTransition(OrderStatusShipped, OrderStatusDelivered))
	assert.False(t, IsForwardTransition(OrderStatusPending, OrderStatusShipped))
	assert.False(t, IsForwardTransition(OrderStatusDelivered, OrderStatusPending))

	assert.False(t, OrderStatus("lost").Valid())
	assert.False(t, PaymentStatus("pending").Valid())
}

func TestLineItemsScan(t *testing.T) {
	var items LineItems
	require.NoError(t, items.Scan([]byte(`[{"productId":7,"productName":"Mug","quantity":2,"price":"4.50","total":"9.00"}]`)))
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ProductID)
	assert.True(t, items[0].Total.Equal(decimal.RequireFromString("9")))

	v, err := LineItems(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	assert.Error(t, items.Scan(42))
}

func TestAppendNote(t *testing.T) {
	o := &Order{}
	o.AppendNote("first")
	o.AppendNote("second")
	assert.Equal(t, "first\nsecond", o.Notes)
}

func TestProductIDsDistinct(t *testing.T) {
	o := &Order{Items: LineItems{{ProductID: 3}, {ProductID: 1}, {ProductID: 3}}}
	assert.Equal(t, []int64{3, 1}, o.ProductIDs())
}
