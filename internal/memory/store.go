// Package memory is an in-process orders.Store. Transactions are fully
// serialised: one holds the store until it commits or rolls back.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/inventorynest/shop-orders/internal/orders"
)

type cartEntry struct {
	productID string
	qty       int
	addedAt   time.Time
}

type state struct {
	products map[string]orders.Product
	carts    map[string][]cartEntry
	orders   map[string]orders.Order
	seq      []string // order ids by insertion
}

func (s *state) clone() *state {
	c := &state{
		products: make(map[string]orders.Product, len(s.products)),
		carts:    make(map[string][]cartEntry, len(s.carts)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		seq:      append([]string(nil), s.seq...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]cartEntry(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			products: map[string]orders.Product{},
			carts:    map[string][]cartEntry{},
			orders:   map[string]orders.Order{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts or replaces catalog products.
func (s *Store) Seed(products ...orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		s.st.products[p.ID] = p
	}
}

// WithTx runs fn against a private copy of the data and swaps it in only
// when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{st: s.st.clone(), now: s.now}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

type Tx struct {
	st  *state
	now func() time.Time
}

var _ orders.Tx = (*Tx)(nil)

func (t *Tx) GetProduct(_ context.Context, id string) (orders.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, nil
}

func (t *Tx) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *Tx) SetStock(_ context.Context, id string, stock int) error {
	p, ok := t.st.products[id]
	if !ok {
		return orders.ErrProductNotFound
	}
	if stock < 0 {
		return fmt.Errorf("stock for %s would go negative", id)
	}
	p.Stock = stock
	p.UpdatedAt = t.now()
	t.st.products[id] = p
	return nil
}

func (t *Tx) ListProducts(context.Context) ([]orders.Product, error) {
	out := make([]orders.Product, 0, len(t.st.products))
	for _, p := range t.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (t *Tx) CartLines(_ context.Context, owner string) ([]orders.CartLine, error) {
	entries := t.st.carts[owner]
	out := make([]orders.CartLine, 0, len(entries))
	for _, e := range entries {
		l := orders.CartLine{ProductID: e.productID, Quantity: e.qty, AddedAt: e.addedAt}
		if p, ok := t.st.products[e.productID]; ok {
			l.Name = p.Name
			l.PriceCents = p.PriceCents
			l.Stock = p.Stock
		}
		out = append(out, l)
	}
	return out, nil
}

func (t *Tx) PutCartLine(_ context.Context, owner, productID string, qty int) error {
	entries := t.st.carts[owner]
	for i := range entries {
		if entries[i].productID == productID {
			entries[i].qty = qty
			return nil
		}
	}
	t.st.carts[owner] = append(entries, cartEntry{productID: productID, qty: qty, addedAt: t.now()})
	return nil
}

func (t *Tx) DeleteCartLine(_ context.Context, owner, productID string) error {
	entries := t.st.carts[owner]
	for i := range entries {
		if entries[i].productID == productID {
			t.st.carts[owner] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return orders.ErrLineNotFound
}

func (t *Tx) ClearCart(_ context.Context, owner string) error {
	delete(t.st.carts, owner)
	return nil
}

func (t *Tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.st.orders[o.ID] = o
	t.st.seq = append(t.st.seq, o.ID)
	return nil
}

func (t *Tx) GetOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (t *Tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *Tx) UpdateOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return orders.ErrOrderNotFound
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *Tx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.st.orders[id]; !ok {
		return orders.ErrOrderNotFound
	}
	delete(t.st.orders, id)
	for i, v := range t.st.seq {
		if v == id {
			t.st.seq = append(t.st.seq[:i], t.st.seq[i+1:]...)
			break
		}
	}
	return nil
}

// ListOrders returns matching orders newest first.
func (t *Tx) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	out := []orders.Order{}
	for i := len(t.st.seq) - 1; i >= 0; i-- {
		o := t.st.orders[t.st.seq[i]]
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out, nil
}
