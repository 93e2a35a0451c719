package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inventorynest/shop-orders/internal/orders"
)

// Store runs every transaction at SERIALIZABLE and takes row locks for
// anything it is about to write.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapErr(err)
	}
	// no-op after a successful commit; covers errors and panics
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr turns serialization failures and deadlocks into
// orders.ErrConcurrencyConflict so callers can retry the whole transaction.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", orders.ErrConcurrencyConflict, pgErr.Message)
		}
	}
	return err
}

type Tx struct{ tx pgx.Tx }

var _ orders.Tx = (*Tx)(nil)

const productCols = `id, sku, name, price_cents, stock, COALESCE(owner_email, ''), created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.OwnerEmail, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrProductNotFound
	}
	return p, err
}

func (t *Tx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
}

func (t *Tx) LockProduct(ctx context.Context, id string) (orders.Product, error) {
	return scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
}

func (t *Tx) SetStock(ctx context.Context, id string, stock int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=now() WHERE id=$1`, id, stock)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrProductNotFound
	}
	return nil
}

func (t *Tx) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) CartLines(ctx context.Context, owner string) ([]orders.CartLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT c.product_id, c.qty, c.added_at, p.name, p.price_cents, p.stock
		FROM cart_lines c JOIN products p ON p.id = c.product_id
		WHERE c.owner=$1
		ORDER BY c.position`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.CartLine
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.AddedAt, &l.Name, &l.PriceCents, &l.Stock); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *Tx) PutCartLine(ctx context.Context, owner, productID string, qty int) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_lines(owner, product_id, qty)
		VALUES ($1,$2,$3)
		ON CONFLICT (owner, product_id) DO UPDATE SET qty = EXCLUDED.qty`,
		owner, productID, qty)
	return err
}

func (t *Tx) DeleteCartLine(ctx context.Context, owner, productID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE owner=$1 AND product_id=$2`, owner, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrLineNotFound
	}
	return nil
}

func (t *Tx) ClearCart(ctx context.Context, owner string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_lines WHERE owner=$1`, owner)
	return err
}

const orderCols = `id, COALESCE(batch_id, ''), COALESCE(user_id, ''), COALESCE(guest_email, ''),
	COALESCE(contact_email, ''), product_id, quantity, unit_price_cents, total_cents, status,
	stock_released, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.BatchID, &o.UserID, &o.GuestEmail, &o.ContactEmail, &o.ProductID,
		&o.Quantity, &o.UnitPriceCents, &o.TotalCents, &o.Status, &o.StockReleased, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, err
}

func (t *Tx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(id, batch_id, user_id, guest_email, contact_email, product_id, quantity,
			unit_price_cents, total_cents, status, stock_released, created_at, updated_at)
		VALUES ($1, NULLIF($2,''), NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.BatchID, o.UserID, o.GuestEmail, o.ContactEmail, o.ProductID, o.Quantity,
		o.UnitPriceCents, o.TotalCents, string(o.Status), o.StockReleased, o.CreatedAt, o.UpdatedAt)
	return err
}

func (t *Tx) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
}

func (t *Tx) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

// UpdateOrder writes the mutable columns: status and the release flag.
func (t *Tx) UpdateOrder(ctx context.Context, o orders.Order) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, stock_released=$3, updated_at=$4 WHERE id=$1`,
		o.ID, string(o.Status), o.StockReleased, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *Tx) DeleteOrder(ctx context.Context, id string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (t *Tx) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders WHERE true`
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		q += fmt.Sprintf(" AND user_id=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if f.ActiveOnly {
		q += ` AND status NOT IN ('delivered','cancelled')`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []orders.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
