package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
	"github.com/inventorynest/shop-orders/internal/orders"
)

var tracer = otel.Tracer("github.com/inventorynest/shop-orders/internal/checkout")

// Service turns a cart into a batch of pending orders. Either every line
// becomes an order and the cart is emptied, or nothing changes.
type Service struct {
	Store    orders.Store
	Orders   *orders.Service
	Notifier orders.Notifier
	Metrics  *metrics.Metrics

	NewID func() string
}

func NewService(store orders.Store, svc *orders.Service, notifier orders.Notifier, m *metrics.Metrics) *Service {
	if notifier == nil {
		notifier = orders.NopNotifier{}
	}
	return &Service{
		Store:    store,
		Orders:   svc,
		Notifier: notifier,
		Metrics:  m,
		NewID:    uuid.NewString,
	}
}

// Checkout converts every line of owner's cart into an order for p. Lines
// are processed in insertion order; the first failure aborts the whole
// batch.
func (s *Service) Checkout(ctx context.Context, owner string, p orders.Purchaser) (_ orders.BatchResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout", trace.WithAttributes(attribute.String("cart.owner", owner)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	res := orders.BatchResult{BatchID: s.NewID()}
	if p, err = p.Normalize(); err == nil {
		err = s.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
			res.Lines = res.Lines[:0]
			res.TotalCents = 0

			lines, err := tx.CartLines(ctx, owner)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return orders.ErrEmptyCart
			}
			for _, l := range lines {
				o, product, err := s.Orders.CreateInTx(ctx, tx, p, l.ProductID, l.Quantity, res.BatchID)
				if err != nil {
					return err
				}
				res.Lines = append(res.Lines, orders.BatchLine{
					OrderID:        o.ID,
					ProductID:      o.ProductID,
					ProductName:    product.Name,
					Quantity:       o.Quantity,
					UnitPriceCents: o.UnitPriceCents,
					LineTotalCents: o.TotalCents,
				})
				res.TotalCents += o.TotalCents
			}
			return tx.ClearCart(ctx, owner)
		})
	}
	if err != nil {
		s.Metrics.Checkout(outcome(err))
		logging.FromContext(ctx).Info("checkout_rejected",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return orders.BatchResult{}, err
	}

	s.Metrics.Checkout("committed")
	logging.FromContext(ctx).Info("checkout_committed",
		zap.String("batch_id", res.BatchID),
		zap.Int("lines", len(res.Lines)),
		zap.Int("total_cents", res.TotalCents),
	)
	s.Notifier.Notify(ctx, p.Contact(), orders.NotifyOrderBatchPlaced, orders.BatchPlacedData{BatchResult: res})
	return res, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, orders.ErrEmptyCart):
		return "empty"
	case errors.Is(err, orders.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, orders.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, orders.ErrAmbiguousPurchaser), errors.Is(err, orders.ErrInvalidEmail), errors.Is(err, orders.ErrInvalidQuantity):
		return "invalid"
	default:
		return "error"
	}
}
