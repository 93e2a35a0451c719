package orders

import "context"

// ProductStore is the catalog slice the ledger and cart need.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	// LockProduct reads the product and holds it against concurrent writers
	// until the surrounding transaction ends.
	LockProduct(ctx context.Context, id string) (Product, error)
	SetStock(ctx context.Context, id string, stock int) error
	ListProducts(ctx context.Context) ([]Product, error)
}

type CartStore interface {
	// CartLines returns the owner's lines in insertion order.
	CartLines(ctx context.Context, owner string) ([]CartLine, error)
	// PutCartLine inserts the line or replaces its quantity, keeping the
	// original insertion position.
	PutCartLine(ctx context.Context, owner, productID string, qty int) error
	DeleteCartLine(ctx context.Context, owner, productID string) error
	ClearCart(ctx context.Context, owner string) error
}

type OrderStore interface {
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
}

// Tx is every store operation, bound to one transaction.
type Tx interface {
	ProductStore
	CartStore
	OrderStore
}

// Store opens transactions. WithTx commits only when fn returns nil; any
// error or panic rolls back everything fn did.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// StockLedger moves available quantity inside a caller-owned transaction.
type StockLedger interface {
	Reserve(ctx context.Context, tx ProductStore, productID string, qty int) (Product, error)
	Release(ctx context.Context, tx ProductStore, productID string, qty int) (Product, error)
}

// Notifier delivers purchaser-facing messages. Implementations must not
// block on delivery and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind string, payload any)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, string, any) {}
