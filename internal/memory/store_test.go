package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inventorynest/shop-orders/internal/orders"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", SKU: "A", Stock: 5})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		require.NoError(t, tx.SetStock(ctx, "p1", 1))
		require.NoError(t, tx.PutCartLine(ctx, "user:u1", "p1", 2))
		require.NoError(t, tx.InsertOrder(ctx, orders.Order{ID: "o1", ProductID: "p1", Quantity: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, 5, p.Stock)

		lines, err := tx.CartLines(ctx, "user:u1")
		require.NoError(t, err)
		require.Empty(t, lines)

		_, err = tx.GetOrder(ctx, "o1")
		require.ErrorIs(t, err, orders.ErrOrderNotFound)
		return nil
	}))
}

func TestWithTxRecoversPanic(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", Stock: 5})
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		_ = tx.SetStock(ctx, "p1", 0)
		panic("kaboom")
	})
	require.Error(t, err)

	// the store is still usable and unchanged
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, "p1")
		require.Equal(t, 5, p.Stock)
		return err
	}))
}

func TestCartLinesKeepInsertionOrder(t *testing.T) {
	s := New()
	s.Seed(
		orders.Product{ID: "a", Name: "A", PriceCents: 100},
		orders.Product{ID: "b", Name: "B", PriceCents: 200},
	)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		require.NoError(t, tx.PutCartLine(ctx, "o", "b", 1))
		require.NoError(t, tx.PutCartLine(ctx, "o", "a", 1))
		require.NoError(t, tx.PutCartLine(ctx, "o", "b", 5))

		lines, err := tx.CartLines(ctx, "o")
		require.NoError(t, err)
		require.Len(t, lines, 2)
		require.Equal(t, "b", lines[0].ProductID)
		require.Equal(t, 5, lines[0].Quantity)
		require.Equal(t, "B", lines[0].Name)
		require.Equal(t, "a", lines[1].ProductID)

		require.ErrorIs(t, tx.DeleteCartLine(ctx, "o", "zzz"), orders.ErrLineNotFound)
		require.NoError(t, tx.ClearCart(ctx, "o"))
		lines, err = tx.CartLines(ctx, "o")
		require.NoError(t, err)
		require.Empty(t, lines)
		return nil
	}))
}

func TestSetStockRejectsNegative(t *testing.T) {
	s := New()
	s.Seed(orders.Product{ID: "p1", Stock: 1})
	err := s.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		return tx.SetStock(ctx, "p1", -1)
	})
	require.Error(t, err)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithTx(ctx, func(context.Context, orders.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}
