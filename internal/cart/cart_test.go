package cart_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inventorynest/shop-orders/internal/cart"
	"github.com/inventorynest/shop-orders/internal/inventory"
	"github.com/inventorynest/shop-orders/internal/memory"
	"github.com/inventorynest/shop-orders/internal/orders"
)

func newService() *cart.Service {
	store := memory.New()
	store.Seed(
		orders.Product{ID: "a", SKU: "A", Name: "Apron", PriceCents: 1500, Stock: 5},
		orders.Product{ID: "b", SKU: "B", Name: "Brush", PriceCents: 250, Stock: 100},
	)
	return cart.NewService(store)
}

func TestOwnerKey(t *testing.T) {
	require.Equal(t, "user:u1", cart.Owner{UserID: "u1", SessionToken: "s"}.Key())
	require.Equal(t, "session:s", cart.Owner{SessionToken: "s"}.Key())
	require.Equal(t, "", cart.Owner{}.Key())
}

func TestAddLineAccumulates(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := cart.Owner{SessionToken: "tok"}

	_, err := svc.AddLine(ctx, owner, "b", 2)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, owner, "a", 1)
	require.NoError(t, err)
	line, err := svc.AddLine(ctx, owner, "b", 3)
	require.NoError(t, err)
	require.Equal(t, 5, line.Quantity)
	require.Equal(t, 1250, line.LineTotalCents)

	lines, err := svc.Lines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "b", lines[0].ProductID)
	require.Equal(t, 5, lines[0].Quantity)
	require.Equal(t, "a", lines[1].ProductID)

	v, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, 5*250+1500, v.TotalCents)
}

func TestAddLineSoftStockCheck(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := cart.Owner{UserID: "u1"}

	_, err := svc.AddLine(ctx, owner, "a", 6)
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	_, err = svc.AddLine(ctx, owner, "a", 4)
	require.NoError(t, err)
	// the running total counts against stock too
	_, err = svc.AddLine(ctx, owner, "a", 2)
	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	se, ok := inventory.AsShortage(err)
	require.True(t, ok)
	require.Equal(t, 6, se.Required)

	lines, err := svc.Lines(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, 4, lines[0].Quantity)
}

func TestAddLineValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.AddLine(ctx, cart.Owner{UserID: "u1"}, "a", 0)
	require.ErrorIs(t, err, orders.ErrInvalidQuantity)

	_, err = svc.AddLine(ctx, cart.Owner{UserID: "u1"}, "nope", 1)
	require.ErrorIs(t, err, orders.ErrProductNotFound)

	_, err = svc.AddLine(ctx, cart.Owner{}, "a", 1)
	require.ErrorIs(t, err, cart.ErrNoOwner)
}

func TestUpdateAndRemoveLine(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := cart.Owner{UserID: "u1"}

	_, err := svc.UpdateLine(ctx, owner, "a", 2)
	require.ErrorIs(t, err, orders.ErrLineNotFound)
	require.ErrorIs(t, svc.RemoveLine(ctx, owner, "a"), orders.ErrLineNotFound)

	_, err = svc.AddLine(ctx, owner, "a", 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, owner, "b", 1)
	require.NoError(t, err)

	line, err := svc.UpdateLine(ctx, owner, "a", 3)
	require.NoError(t, err)
	require.Equal(t, 3, line.Quantity)

	_, err = svc.UpdateLine(ctx, owner, "a", 0)
	require.ErrorIs(t, err, orders.ErrInvalidQuantity)
	_, err = svc.UpdateLine(ctx, owner, "a", 50)
	require.ErrorIs(t, err, orders.ErrInsufficientStock)

	require.NoError(t, svc.RemoveLine(ctx, owner, "a"))
	lines, err := svc.Lines(ctx, owner)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "b", lines[0].ProductID)
}

func TestCartsAreIsolated(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.AddLine(ctx, cart.Owner{UserID: "u1"}, "a", 1)
	require.NoError(t, err)

	v, err := svc.View(ctx, cart.Owner{SessionToken: "other"})
	require.NoError(t, err)
	require.Empty(t, v.Lines)
	require.NotNil(t, v.Lines)
}
