package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

// ShortageError reports a reservation the locked stock could not cover.
// It matches orders.ErrInsufficientStock under errors.Is.
type ShortageError struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: required %d, available %d",
		e.ProductID, e.Required, e.Available)
}

func (e *ShortageError) Is(target error) bool { return target == orders.ErrInsufficientStock }

// Ledger is the only writer of product stock. It holds no state: the
// authoritative quantity lives in the store and is re-read under lock on
// every call, inside the caller's transaction.
type Ledger struct {
	Metrics *metrics.Metrics
}

func NewLedger(m *metrics.Metrics) *Ledger {
	return &Ledger{Metrics: m}
}

// Reserve decrements stock by qty, failing without any write when stock is
// short.
func (l *Ledger) Reserve(ctx context.Context, tx orders.ProductStore, productID string, qty int) (orders.Product, error) {
	if qty <= 0 {
		l.Metrics.Reservation("invalid")
		return orders.Product{}, orders.ErrInvalidQuantity
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		l.Metrics.Reservation("error")
		return orders.Product{}, err
	}
	if p.Stock < qty {
		l.Metrics.Reservation("rejected")
		return orders.Product{}, &ShortageError{ProductID: productID, Required: qty, Available: p.Stock}
	}
	p.Stock -= qty
	if err := tx.SetStock(ctx, productID, p.Stock); err != nil {
		l.Metrics.Reservation("error")
		return orders.Product{}, fmt.Errorf("reserve %s: %w", productID, err)
	}
	l.Metrics.Reservation("reserved")
	return p, nil
}

// Release increments stock by qty. Callers guarantee a reservation is
// released at most once.
func (l *Ledger) Release(ctx context.Context, tx orders.ProductStore, productID string, qty int) (orders.Product, error) {
	if qty <= 0 {
		return orders.Product{}, orders.ErrInvalidQuantity
	}
	p, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return orders.Product{}, err
	}
	p.Stock += qty
	if err := tx.SetStock(ctx, productID, p.Stock); err != nil {
		return orders.Product{}, fmt.Errorf("release %s: %w", productID, err)
	}
	l.Metrics.Release()
	return p, nil
}

// AsShortage extracts the shortage detail from err, if any.
func AsShortage(err error) (*ShortageError, bool) {
	var se *ShortageError
	ok := errors.As(err, &se)
	return se, ok
}
