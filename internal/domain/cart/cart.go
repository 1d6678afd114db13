// Package cart owns the in-memory cart of the active session and keeps it
// in step with the remote cart.
package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Line is a quantity of one product. Display fields are copied from the
// catalog when the line is created.
type Line struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
}

// LineFor denormalizes p into a line holding qty units.
func LineFor(p product.Product, qty int) Line {
	return Line{
		ProductID:   p.ID,
		Name:        p.Name,
		UnitPrice:   p.Price,
		ImageURL:    p.ImageURL,
		Description: p.Description,
		Quantity:    qty,
	}
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Total sums the subtotals of lines.
func Total(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// State is an immutable snapshot of a cart.
type State struct {
	OwnerID string `json:"ownerId,omitempty"`
	Lines   []Line `json:"lines"`
	Loading bool   `json:"loading"`
}

// Total is recomputed from the lines on every call.
func (s State) Total() decimal.Decimal {
	return Total(s.Lines)
}

// Line returns the line for productID.
func (s State) Line(productID string) (Line, bool) {
	if i := indexOf(s.Lines, productID); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

// Empty reports whether the cart has no lines.
func (s State) Empty() bool {
	return len(s.Lines) == 0
}

// Remote is the server side of the cart. Quantities sent are absolute.
// AddCartLine and SetCartQuantity may return a nil line when the server
// acknowledges without echoing it.
type Remote interface {
	CartLines(ctx context.Context, userID string) ([]Line, error)
	AddCartLine(ctx context.Context, userID, productID string, quantity int) (*Line, error)
	SetCartQuantity(ctx context.Context, userID, productID string, quantity int) (*Line, error)
	RemoveCartLine(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error
}

func indexOf(lines []Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}
