package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/inventorynest/shop-orders/internal/inventory"
	"github.com/inventorynest/shop-orders/internal/memory"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

func setup(t *testing.T, stock int) (*memory.Store, *inventory.Ledger, *metrics.Metrics) {
	t.Helper()
	store := memory.New()
	store.Seed(orders.Product{ID: "p1", SKU: "SKU-1", Name: "Lamp", PriceCents: 500, Stock: stock})
	m := metrics.New(prometheus.NewRegistry())
	return store, inventory.NewLedger(m), m
}

func stockOf(t *testing.T, store *memory.Store) int {
	t.Helper()
	var n int
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, "p1")
		n = p.Stock
		return err
	}))
	return n
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	store, l, m := setup(t, 10)
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := l.Reserve(ctx, tx, "p1", 4)
		require.NoError(t, err)
		require.Equal(t, 6, p.Stock)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 6, stockOf(t, store))

	err = store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := l.Release(ctx, tx, "p1", 4)
		require.NoError(t, err)
		require.Equal(t, 10, p.Stock)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 10, stockOf(t, store))

	require.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("reserved")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Releases))
}

func TestReserveShortage(t *testing.T) {
	store, l, m := setup(t, 2)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := l.Reserve(ctx, tx, "p1", 3)
		return err
	})
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	se, ok := inventory.AsShortage(err)
	require.True(t, ok)
	require.Equal(t, inventory.ShortageError{ProductID: "p1", Required: 3, Available: 2}, *se)
	require.Equal(t, 2, stockOf(t, store))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues("rejected")))
}

func TestReserveExactStock(t *testing.T) {
	store, l, _ := setup(t, 3)
	err := store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := l.Reserve(ctx, tx, "p1", 3)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 0, stockOf(t, store))
}

func TestInvalidQuantity(t *testing.T) {
	store, l, _ := setup(t, 5)
	for _, qty := range []int{0, -1} {
		err := store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
			_, err := l.Reserve(ctx, tx, "p1", qty)
			return err
		})
		require.ErrorIs(t, err, orders.ErrInvalidQuantity)

		err = store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
			_, err := l.Release(ctx, tx, "p1", qty)
			return err
		})
		require.ErrorIs(t, err, orders.ErrInvalidQuantity)
	}
	require.Equal(t, 5, stockOf(t, store))
}

func TestReserveRolledBackWithTransaction(t *testing.T) {
	store, l, _ := setup(t, 5)
	boom := errors.New("later step failed")

	err := store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		if _, err := l.Reserve(ctx, tx, "p1", 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5, stockOf(t, store))
}

func TestNilMetricsLedger(t *testing.T) {
	store := memory.New()
	store.Seed(orders.Product{ID: "p1", Stock: 1})
	l := inventory.NewLedger(nil)
	require.NoError(t, store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := l.Reserve(ctx, tx, "p1", 1)
		return err
	}))
}
