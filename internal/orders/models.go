package orders

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	OwnerEmail string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CartLine struct {
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`

	// filled from the catalog on read
	Name           string `json:"name,omitempty"`
	PriceCents     int    `json:"price_cents"`
	Stock          int    `json:"stock"`
	LineTotalCents int    `json:"line_total_cents"`
}

type Order struct {
	ID             string    `json:"id"`
	BatchID        string    `json:"batch_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	GuestEmail     string    `json:"guest_email,omitempty"`
	ContactEmail   string    `json:"-"`
	ProductID      string    `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
	Status         Status    `json:"status"`
	StockReleased  bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Active reports whether the order still counts against fulfilment.
func (o Order) Active() bool { return !o.Status.Terminal() }

// Purchaser identifies who an order belongs to. Exactly one of UserID and
// GuestEmail must be set. Email is the user's contact address and is only
// used for notifications.
type Purchaser struct {
	UserID     string
	Email      string
	GuestEmail string
}

// Normalize trims both identities, enforces that exactly one is set and
// checks that a guest email is a plain address.
func (p Purchaser) Normalize() (Purchaser, error) {
	p.UserID = strings.TrimSpace(p.UserID)
	p.GuestEmail = strings.TrimSpace(p.GuestEmail)
	if (p.UserID == "") == (p.GuestEmail == "") {
		return p, ErrAmbiguousPurchaser
	}
	if p.GuestEmail != "" && validate.Var(p.GuestEmail, "email") != nil {
		return p, ErrInvalidEmail
	}
	return p, nil
}

// Contact is the address notifications for this purchaser go to.
func (p Purchaser) Contact() string {
	if p.GuestEmail != "" {
		return p.GuestEmail
	}
	return p.Email
}

type ListFilter struct {
	UserID     string
	Status     Status
	ActiveOnly bool
}

func (f ListFilter) Match(o Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.ActiveOnly && !o.Active() {
		return false
	}
	return true
}

// BatchLine is the per-line outcome of a checkout.
type BatchLine struct {
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
	LineTotalCents int    `json:"line_total_cents"`
}

type BatchResult struct {
	BatchID    string      `json:"batch_id"`
	Lines      []BatchLine `json:"lines"`
	TotalCents int         `json:"total_cents"`
}
