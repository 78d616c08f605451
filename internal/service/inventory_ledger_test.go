package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLedgerDecrementRestoreRoundTrip(t *testing.T) {
	repo := newFakeRepo(newProduct(1, "10", 7))
	ledger := NewInventoryLedger()
	ctx := context.Background()

	err := repo.InTx(ctx, func(q store.Querier) error {
		return ledger.Decrement(ctx, q, StockLine{ProductID: 1, Quantity: 3, TrackInventory: true})
	})
	require.NoError(t, err)
	assert.Equal(t, 4, repo.stock(1))

	var restored []int64
	err = repo.InTx(ctx, func(q store.Querier) error {
		var err error
		restored, err = ledger.Restore(ctx, q, models.LineItems{{ProductID: 1, Quantity: 3}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, restored)
	assert.Equal(t, 7, repo.stock(1))
}

func TestLedgerNeverGoesNegative(t *testing.T) {
	repo := newFakeRepo(newProduct(1, "10", 2))
	ledger := NewInventoryLedger()
	ctx := context.Background()

	err := repo.InTx(ctx, func(q store.Querier) error {
		return ledger.Decrement(ctx, q, StockLine{ProductID: 1, ProductName: "Mug", Quantity: 3, TrackInventory: true})
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, repo.stock(1))
}

func TestLedgerSkipsUntrackedAndMissing(t *testing.T) {
	untracked := newProduct(2, "10", 5)
	untracked.TrackInventory = false
	repo := newFakeRepo(newProduct(1, "10", 5), untracked)
	ledger := NewInventoryLedger()
	ctx := context.Background()

	err := repo.InTx(ctx, func(q store.Querier) error {
		return ledger.Decrement(ctx, q, StockLine{ProductID: 2, Quantity: 100, TrackInventory: false})
	})
	require.NoError(t, err)
	assert.Equal(t, 5, repo.stock(2))

	var restored []int64
	err = repo.InTx(ctx, func(q store.Querier) error {
		var err error
		restored, err = ledger.Restore(ctx, q, models.LineItems{
			{ProductID: 1, Quantity: 1},
			{ProductID: 2, Quantity: 1},
			{ProductID: 42, Quantity: 1},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, restored)
	assert.Equal(t, 6, repo.stock(1))
	assert.Equal(t, 5, repo.stock(2))
}

func TestLedgerWarnsOnLowStock(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := util.GetLogger()
	util.SetLogger(zap.New(core))
	t.Cleanup(func() { util.SetLogger(prev) })

	repo := newFakeRepo(newProduct(1, "10", 6))
	ledger := NewInventoryLedger()
	ctx := context.Background()

	line := StockLine{ProductID: 1, ProductName: "Lamp", Quantity: 2, TrackInventory: true, LowStockThreshold: 3}
	require.NoError(t, repo.InTx(ctx, func(q store.Querier) error { return ledger.Decrement(ctx, q, line) }))
	assert.Equal(t, 0, logs.FilterMessage("Product stock is low").Len())

	require.NoError(t, repo.InTx(ctx, func(q store.Querier) error { return ledger.Decrement(ctx, q, line) }))
	entries := logs.FilterMessage("Product stock is low").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["remaining"])
}

func TestLedgerConflictReportsCurrentStock(t *testing.T) {
	repo := newFakeRepo(newProduct(1, "10", 2))
	ledger := NewInventoryLedger()
	ctx := context.Background()

	err := repo.InTx(ctx, func(q store.Querier) error {
		return ledger.Decrement(ctx, q, StockLine{ProductID: 1, ProductName: "Lamp", Quantity: 5, TrackInventory: true})
	})
	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 5, short.Requested)
	assert.Equal(t, 2, short.Available)
	assert.Equal(t, 2, repo.stock(1))
}
