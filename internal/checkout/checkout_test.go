package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/checkout"
	"github.com/inventorynest/shop-orders/internal/inventory"
	"github.com/inventorynest/shop-orders/internal/memory"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

type notice struct {
	recipient, kind string
	payload         any
}

type recorder struct {
	mu      sync.Mutex
	notices []notice
}

func (r *recorder) Notify(_ context.Context, recipient, kind string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{recipient, kind, payload})
}

type env struct {
	store    *memory.Store
	cart     *cart.Service
	checkout *checkout.Service
	orders   *orders.Service
	notes    *recorder
	metrics  *metrics.Metrics
}

func newEnv(t *testing.T, products ...orders.Product) env {
	t.Helper()
	store := memory.New()
	store.Seed(products...)
	m := metrics.New(prometheus.NewRegistry())
	notes := &recorder{}
	svc := orders.NewService(store, inventory.NewLedger(m), notes, m)
	return env{
		store:    store,
		cart:     cart.NewService(store),
		checkout: checkout.NewService(store, svc, notes, m),
		orders:   svc,
		notes:    notes,
		metrics:  m,
	}
}

func (e env) stock(t *testing.T, id string) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, id)
		n = p.Stock
		return err
	}))
	return n
}

// putLine writes a cart line directly, bypassing the soft stock check.
func (e env) putLine(t *testing.T, owner cart.Owner, productID string, qty int) {
	t.Helper()
	require.NoError(t, e.store.WithTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		return tx.PutCartLine(ctx, owner.Key(), productID, qty)
	}))
}

func TestCheckoutCreatesOrdersAndClearsCart(t *testing.T) {
	e := newEnv(t, orders.Product{ID: "p", SKU: "P", Name: "Pot", PriceCents: 2000, Stock: 10})
	ctx := context.Background()
	owner := cart.Owner{UserID: "u1"}

	_, err := e.cart.AddLine(ctx, owner, "p", 3)
	require.NoError(t, err)

	res, err := e.checkout.Checkout(ctx, owner.Key(), orders.Purchaser{UserID: "u1", Email: "u1@shop.test"})
	require.NoError(t, err)
	require.NotEmpty(t, res.BatchID)
	require.Len(t, res.Lines, 1)
	require.Equal(t, 3, res.Lines[0].Quantity)
	require.Equal(t, 2000, res.Lines[0].UnitPriceCents)
	require.Equal(t, 6000, res.Lines[0].LineTotalCents)
	require.Equal(t, "Pot", res.Lines[0].ProductName)
	require.Equal(t, 6000, res.TotalCents)

	require.Equal(t, 7, e.stock(t, "p"))

	o, err := e.orders.Get(ctx, res.Lines[0].OrderID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, o.Status)
	require.Equal(t, 3, o.Quantity)
	require.Equal(t, 6000, o.TotalCents)
	require.Equal(t, res.BatchID, o.BatchID)

	lines, err := e.cart.Lines(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, lines)

	require.Len(t, e.notes.notices, 1)
	require.Equal(t, orders.NotifyOrderBatchPlaced, e.notes.notices[0].kind)
	require.Equal(t, "u1@shop.test", e.notes.notices[0].recipient)
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Checkouts.WithLabelValues("committed")))
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	e := newEnv(t,
		orders.Product{ID: "A", SKU: "A", Name: "Alpha", PriceCents: 100, Stock: 10},
		orders.Product{ID: "B", SKU: "B", Name: "Beta", PriceCents: 100, Stock: 5},
	)
	ctx := context.Background()
	owner := cart.Owner{SessionToken: "guest-session"}
	e.putLine(t, owner, "A", 2)
	e.putLine(t, owner, "B", 100)

	_, err := e.checkout.Checkout(ctx, owner.Key(), orders.Purchaser{GuestEmail: "g@shop.test"})
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	se, ok := inventory.AsShortage(err)
	require.True(t, ok)
	require.Equal(t, "B", se.ProductID)

	require.Equal(t, 10, e.stock(t, "A"))
	require.Equal(t, 5, e.stock(t, "B"))

	all, err := e.orders.List(ctx, orders.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, all)

	lines, err := e.cart.Lines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Empty(t, e.notes.notices)
	require.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Checkouts.WithLabelValues("insufficient_stock")))
}

func TestCheckoutEmptyCart(t *testing.T) {
	e := newEnv(t)
	_, err := e.checkout.Checkout(context.Background(), "user:nobody", orders.Purchaser{UserID: "nobody"})
	require.ErrorIs(t, err, orders.ErrEmptyCart)
}

func TestCheckoutAmbiguousPurchaserLeavesCart(t *testing.T) {
	e := newEnv(t, orders.Product{ID: "p", SKU: "P", PriceCents: 100, Stock: 3})
	ctx := context.Background()
	owner := cart.Owner{UserID: "u1"}
	e.putLine(t, owner, "p", 1)

	_, err := e.checkout.Checkout(ctx, owner.Key(), orders.Purchaser{UserID: "u1", GuestEmail: "x@shop.test"})
	require.ErrorIs(t, err, orders.ErrAmbiguousPurchaser)
	require.Equal(t, 3, e.stock(t, "p"))

	lines, err := e.cart.Lines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestCheckoutInvalidGuestEmailLeavesCart(t *testing.T) {
	e := newEnv(t, orders.Product{ID: "p", SKU: "P", PriceCents: 100, Stock: 3})
	ctx := context.Background()
	owner := cart.Owner{SessionToken: "guest-session"}
	e.putLine(t, owner, "p", 2)

	_, err := e.checkout.Checkout(ctx, owner.Key(), orders.Purchaser{GuestEmail: "guest at shop"})
	require.ErrorIs(t, err, orders.ErrInvalidEmail)
	require.Equal(t, 3, e.stock(t, "p"))

	lines, err := e.cart.Lines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 1)
}

func TestCheckoutProcessesLinesInInsertionOrder(t *testing.T) {
	e := newEnv(t,
		orders.Product{ID: "x", SKU: "X", Stock: 0},
		orders.Product{ID: "y", SKU: "Y", Stock: 0},
	)
	owner := cart.Owner{UserID: "u1"}
	e.putLine(t, owner, "y", 1)
	e.putLine(t, owner, "x", 1)

	_, err := e.checkout.Checkout(context.Background(), owner.Key(), orders.Purchaser{UserID: "u1"})
	se, ok := inventory.AsShortage(err)
	require.True(t, ok)
	require.Equal(t, "y", se.ProductID)
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	e := newEnv(t, orders.Product{ID: "last", SKU: "L", Name: "Last", PriceCents: 100, Stock: 1})
	owners := []cart.Owner{{UserID: "u1"}, {UserID: "u2"}}
	for _, o := range owners {
		e.putLine(t, o, "last", 1)
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(owners))
	)
	for i, o := range owners {
		wg.Add(1)
		go func(i int, o cart.Owner) {
			defer wg.Done()
			_, errs[i] = e.checkout.Checkout(context.Background(), o.Key(), orders.Purchaser{UserID: o.UserID})
		}(i, o)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, orders.ErrInsufficientStock), errors.Is(err, orders.ErrConcurrencyConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, lost)
	require.Equal(t, 0, e.stock(t, "last"))
}
