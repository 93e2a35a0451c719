package cart

import (
	"context"
	"errors"
	"strings"

	"github.com/inventorynest/shop-orders/internal/inventory"
	"github.com/inventorynest/shop-orders/internal/orders"
)

var ErrNoOwner = errors.New("cart owner is required")

// Owner is whoever a cart belongs to: an authenticated user or, failing
// that, an anonymous session.
type Owner struct {
	UserID       string
	SessionToken string
}

// Key is the opaque identifier carts are stored under.
func (o Owner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	if o.SessionToken != "" {
		return "session:" + o.SessionToken
	}
	return ""
}

type View struct {
	Lines      []orders.CartLine `json:"items"`
	TotalCents int               `json:"total_cents"`
}

type Service struct {
	Store orders.Store
}

func NewService(store orders.Store) *Service {
	return &Service{Store: store}
}

// AddLine adds qty of a product, summing with an existing line. The stock
// check here is advisory; checkout validates again under lock.
func (s *Service) AddLine(ctx context.Context, owner Owner, productID string, qty int) (orders.CartLine, error) {
	key, err := ownerKey(owner)
	if err != nil {
		return orders.CartLine{}, err
	}
	if qty < 1 {
		return orders.CartLine{}, orders.ErrInvalidQuantity
	}

	var line orders.CartLine
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		lines, err := tx.CartLines(ctx, key)
		if err != nil {
			return err
		}
		total := qty
		if existing, ok := find(lines, productID); ok {
			total += existing.Quantity
		}
		if total > p.Stock {
			return &inventory.ShortageError{ProductID: productID, Required: total, Available: p.Stock}
		}
		if err := tx.PutCartLine(ctx, key, productID, total); err != nil {
			return err
		}
		line = describe(orders.CartLine{ProductID: productID, Quantity: total}, p)
		return nil
	})
	return line, err
}

// UpdateLine sets the quantity of an existing line.
func (s *Service) UpdateLine(ctx context.Context, owner Owner, productID string, qty int) (orders.CartLine, error) {
	key, err := ownerKey(owner)
	if err != nil {
		return orders.CartLine{}, err
	}
	if qty < 1 {
		return orders.CartLine{}, orders.ErrInvalidQuantity
	}

	var line orders.CartLine
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.CartLines(ctx, key)
		if err != nil {
			return err
		}
		existing, ok := find(lines, productID)
		if !ok {
			return orders.ErrLineNotFound
		}
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if qty > p.Stock {
			return &inventory.ShortageError{ProductID: productID, Required: qty, Available: p.Stock}
		}
		if err := tx.PutCartLine(ctx, key, productID, qty); err != nil {
			return err
		}
		existing.Quantity = qty
		line = describe(existing, p)
		return nil
	})
	return line, err
}

func (s *Service) RemoveLine(ctx context.Context, owner Owner, productID string) error {
	key, err := ownerKey(owner)
	if err != nil {
		return err
	}
	return s.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		lines, err := tx.CartLines(ctx, key)
		if err != nil {
			return err
		}
		if _, ok := find(lines, productID); !ok {
			return orders.ErrLineNotFound
		}
		return tx.DeleteCartLine(ctx, key, productID)
	})
}

// Lines returns the cart in insertion order. An owner without a cart has
// no lines.
func (s *Service) Lines(ctx context.Context, owner Owner) ([]orders.CartLine, error) {
	key, err := ownerKey(owner)
	if err != nil {
		return nil, err
	}
	var lines []orders.CartLine
	err = s.Store.WithTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		var err error
		lines, err = tx.CartLines(ctx, key)
		return err
	})
	for i := range lines {
		lines[i].LineTotalCents = lines[i].PriceCents * lines[i].Quantity
	}
	return lines, err
}

func (s *Service) View(ctx context.Context, owner Owner) (View, error) {
	lines, err := s.Lines(ctx, owner)
	if err != nil {
		return View{}, err
	}
	v := View{Lines: lines}
	if v.Lines == nil {
		v.Lines = []orders.CartLine{}
	}
	for _, l := range lines {
		v.TotalCents += l.LineTotalCents
	}
	return v, nil
}

func ownerKey(o Owner) (string, error) {
	key := o.Key()
	if strings.TrimSpace(key) == "" {
		return "", ErrNoOwner
	}
	return key, nil
}

func find(lines []orders.CartLine, productID string) (orders.CartLine, bool) {
	for _, l := range lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return orders.CartLine{}, false
}

func describe(l orders.CartLine, p orders.Product) orders.CartLine {
	l.Name = p.Name
	l.PriceCents = p.PriceCents
	l.Stock = p.Stock
	l.LineTotalCents = p.PriceCents * l.Quantity
	return l
}
