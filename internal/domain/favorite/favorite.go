// Package favorite tracks the products the active session marked as
// favorites. Unlike the cart, changes are shown only after the server
// confirms them.
package favorite

import (
	"context"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// Entry associates a product with the session. ID is assigned by the
// persistence layer and is what removal needs.
type Entry struct {
	ID      string          `json:"id"`
	Product product.Product `json:"product"`
}

// State is an immutable snapshot of the favorites set. Loaded separates an
// empty set from one that is still being fetched.
type State struct {
	OwnerID string  `json:"ownerId,omitempty"`
	Entries []Entry `json:"entries"`
	Loaded  bool    `json:"loaded"`
}

// Entry returns the entry for productID.
func (s State) Entry(productID string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Product.ID == productID {
			return e, true
		}
	}
	return Entry{}, false
}

// Contains reports whether productID is a favorite.
func (s State) Contains(productID string) bool {
	_, ok := s.Entry(productID)
	return ok
}

// Remote is the server side of favorites.
type Remote interface {
	Favorites(ctx context.Context, userID string) ([]Entry, error)
	AddFavorite(ctx context.Context, userID, productID string) (*Entry, error)
	RemoveFavorite(ctx context.Context, entryID string) error
}
