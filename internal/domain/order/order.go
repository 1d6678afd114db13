// Package order submits carts as orders and tracks the order history of the
// active session.
package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

// ErrEmptyCart is returned when an order is requested for a cart without
// lines. No order is created.
var ErrEmptyCart = errors.New("cart is empty")

// Line is a snapshot of one cart line at purchase time. ProductID is empty
// when the product was later deleted from the catalog.
type Line struct {
	ProductID   string          `json:"productId,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is an immutable snapshot of a purchased cart. Only Status changes
// after creation, and only on the back-office side.
type Order struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	Lines     []Line          `json:"lines"`
}

// Clone returns a deep copy of o.
func (o Order) Clone() Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

// Progress is the status progress in percent.
func (o Order) Progress() int {
	return o.Status.Progress()
}

// Draft is an order about to be submitted.
type Draft struct {
	// IdempotencyKey lets the server recognise a resubmitted draft.
	IdempotencyKey string
	CreatedAt      time.Time
	Total          decimal.Decimal
	Lines          []Line
}

// NewDraft snapshots lines by value and computes the total at now.
func NewDraft(lines []cart.Line, now time.Time) (Draft, error) {
	if len(lines) == 0 {
		return Draft{}, ErrEmptyCart
	}
	d := Draft{
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		Total:          cart.Total(lines),
		Lines:          make([]Line, len(lines)),
	}
	for i, l := range lines {
		d.Lines[i] = Line{
			ProductID:   l.ProductID,
			Name:        l.Name,
			Description: l.Description,
			ImageURL:    l.ImageURL,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}
	return d, nil
}

// Remote is the customer side of the order API.
type Remote interface {
	Orders(ctx context.Context, userID string) ([]Order, error)
	CreateOrder(ctx context.Context, userID string, d Draft) (*Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}
