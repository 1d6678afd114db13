package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. Its display fields are copied into cart lines
// and order snapshots at insertion time.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Stock       int             `json:"stock,omitempty"`
}

// Catalog defines read operations for the product catalog.
type Catalog interface {
	Products(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, id string) (*Product, error)
}
