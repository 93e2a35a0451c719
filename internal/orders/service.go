package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/inventorynest/shop-orders/internal/logging"
	"github.com/inventorynest/shop-orders/internal/metrics"
)

var tracer = otel.Tracer("github.com/inventorynest/shop-orders/internal/orders")

// Service owns order records and their status transitions. Every stock
// effect goes through the ledger inside the same transaction as the order
// change it backs.
type Service struct {
	Store    Store
	Ledger   StockLedger
	Notifier Notifier
	Metrics  *metrics.Metrics

	Now   func() time.Time
	NewID func() string
}

func NewService(store Store, ledger StockLedger, notifier Notifier, m *metrics.Metrics) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		Store:    store,
		Ledger:   ledger,
		Notifier: notifier,
		Metrics:  m,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// CreateOrder places a single-product order in its own transaction.
func (s *Service) CreateOrder(ctx context.Context, p Purchaser, productID string, qty int) (_ Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder",
		trace.WithAttributes(attribute.String("product.id", productID), attribute.Int("quantity", qty)))
	defer func() { endSpan(span, err) }()

	var (
		order   Order
		product Product
	)
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, product, err = s.CreateInTx(ctx, tx, p, productID, qty, "")
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.Metrics.Order("created")
	logging.FromContext(ctx).Info("order_created",
		zap.String("order_id", order.ID),
		zap.String("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
		zap.Int("total_cents", order.TotalCents),
	)
	s.Notifier.Notify(ctx, order.ContactEmail, NotifyOrderPlaced, OrderPlacedData{
		OrderID:     order.ID,
		ProductName: product.Name,
		Quantity:    order.Quantity,
		TotalCents:  order.TotalCents,
	})
	return order, nil
}

// CreateInTx validates the purchaser, reserves stock and persists a pending
// order, all inside tx. The reservation happens before the insert so an
// order row never exists without stock behind it.
func (s *Service) CreateInTx(ctx context.Context, tx Tx, p Purchaser, productID string, qty int, batchID string) (Order, Product, error) {
	p, err := p.Normalize()
	if err != nil {
		return Order{}, Product{}, err
	}
	if qty <= 0 {
		return Order{}, Product{}, ErrInvalidQuantity
	}

	product, err := s.Ledger.Reserve(ctx, tx, productID, qty)
	if err != nil {
		return Order{}, Product{}, err
	}

	now := s.Now()
	order := Order{
		ID:             s.NewID(),
		BatchID:        batchID,
		UserID:         p.UserID,
		GuestEmail:     p.GuestEmail,
		ContactEmail:   p.Contact(),
		ProductID:      product.ID,
		Quantity:       qty,
		UnitPriceCents: product.PriceCents,
		TotalCents:     product.PriceCents * qty,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.InsertOrder(ctx, order); err != nil {
		return Order{}, Product{}, fmt.Errorf("insert order: %w", err)
	}
	return order, product, nil
}

// Cancel moves a pending order to cancelled and gives its stock back.
// cancelledBy is only used to word the shop owner's notice.
func (s *Service) Cancel(ctx context.Context, id, cancelledBy string) (_ Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { endSpan(span, err) }()

	var (
		order   Order
		product Product
	)
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(order.Status, StatusCancelled); err != nil {
			return err
		}
		if product, err = s.releaseOnce(ctx, tx, &order); err != nil {
			return err
		}
		order.Status = StatusCancelled
		order.UpdatedAt = s.Now()
		return tx.UpdateOrder(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}

	s.Metrics.Order("cancelled")
	logging.FromContext(ctx).Info("order_cancelled", zap.String("order_id", order.ID))

	data := OrderCancelledData{
		OrderID:     order.ID,
		ProductName: product.Name,
		Quantity:    order.Quantity,
		CancelledBy: cancelledBy,
	}
	s.Notifier.Notify(ctx, order.ContactEmail, NotifyOrderCancelled, data)
	if product.OwnerEmail != "" {
		s.Notifier.Notify(ctx, product.OwnerEmail, NotifyOrderCancelledOwner, data)
	}
	return order, nil
}

// Advance moves an order one step along the fulfilment chain.
func (s *Service) Advance(ctx context.Context, id string, next Status) (_ Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Advance", trace.WithAttributes(
		attribute.String("order.id", id), attribute.String("order.next_status", string(next))))
	defer func() { endSpan(span, err) }()

	var (
		order   Order
		from    Status
		product Product
	)
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = order.Status
		if next == StatusCancelled {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
		}
		if err := checkTransition(from, next); err != nil {
			return err
		}
		order.Status = next
		order.UpdatedAt = s.Now()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		product, err = tx.GetProduct(ctx, order.ProductID)
		return err
	})
	if err != nil {
		return Order{}, err
	}

	s.Metrics.Order("advanced")
	logging.FromContext(ctx).Info("order_advanced",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	s.Notifier.Notify(ctx, order.ContactEmail, NotifyOrderStatusChanged, StatusChangedData{
		OrderID:     order.ID,
		ProductName: product.Name,
		From:        from,
		To:          next,
	})
	return order, nil
}

// Delete removes an order and tells the purchaser. Stock still held by the
// order is released first.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "orders.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer func() { endSpan(span, err) }()

	var (
		order    Order
		product  Product
		released bool
	)
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !order.Status.Terminal() && !order.StockReleased {
			if product, err = s.releaseOnce(ctx, tx, &order); err != nil {
				return err
			}
			released = true
		} else if product, err = tx.GetProduct(ctx, order.ProductID); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.Metrics.Order("deleted")
	logging.FromContext(ctx).Info("order_deleted",
		zap.String("order_id", order.ID),
		zap.Bool("stock_released", released),
	)
	s.Notifier.Notify(ctx, order.ContactEmail, NotifyOrderDeleted, OrderCancelledData{
		OrderID:     order.ID,
		ProductName: product.Name,
		Quantity:    order.Quantity,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	var order Order
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, id)
		return err
	})
	return order, err
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var out []Order
	err := s.Store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListOrders(ctx, f)
		return err
	})
	return out, err
}

// releaseOnce gives the order's quantity back to stock unless that already
// happened, and marks the order so it cannot happen again.
func (s *Service) releaseOnce(ctx context.Context, tx Tx, order *Order) (Product, error) {
	if order.StockReleased {
		return tx.GetProduct(ctx, order.ProductID)
	}
	product, err := s.Ledger.Release(ctx, tx, order.ProductID, order.Quantity)
	if err != nil {
		return Product{}, err
	}
	order.StockReleased = true
	return product, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
