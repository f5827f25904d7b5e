package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
	"github.com/Cronanaut/veronagrow/ledger/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) ledger.TxStore { return NewMemory() })
}

func TestMemory_CancelledContextDoesNotRun(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := m.WithTx(ctx, func(ledger.Store) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestMemory_RollbackKeepsEarlierCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	item := ledger.InventoryItem{ID: "item-1", OwnerID: storetest.Owner, Name: "CalMag", Unit: "ml"}

	require.NoError(t, m.WithTx(ctx, func(s ledger.Store) error {
		return s.InsertItem(ctx, item)
	}))
	err := m.WithTx(ctx, func(s ledger.Store) error {
		require.NoError(t, s.DeleteItem(ctx, storetest.Owner, item.ID))
		return errors.New("abort")
	})
	require.Error(t, err)

	require.NoError(t, m.WithTx(ctx, func(s ledger.Store) error {
		got, err := s.GetItem(ctx, storetest.Owner, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "CalMag", got.Name)
		return nil
	}))
}
