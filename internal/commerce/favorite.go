package commerce

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/favorite"
)

var _ favorite.Remote = (*Client)(nil)

// Favorites lists the favorites of userID.
func (c *Client) Favorites(ctx context.Context, userID string) ([]favorite.Entry, error) {
	var entries []favorite.Entry
	err := c.do(ctx, "favorites.list", request{
		method: http.MethodGet,
		path:   []string{"favorites", "user", userID},
	}, func(d *jx.Decoder) (err error) {
		entries, err = decodeFavorites(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// AddFavorite creates a favorite and returns it with its entry id.
func (c *Client) AddFavorite(ctx context.Context, userID, productID string) (*favorite.Entry, error) {
	var entry favorite.Entry
	err := c.do(ctx, "favorites.add", request{
		method: http.MethodPost,
		path:   []string{"favorites", "user", userID},
		body:   encodeFavoriteRequest(productID),
	}, func(d *jx.Decoder) (err error) {
		entry, err = decodeFavorite(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveFavorite deletes a favorite by entry id.
func (c *Client) RemoveFavorite(ctx context.Context, entryID string) error {
	return c.do(ctx, "favorites.remove", request{
		method: http.MethodDelete,
		path:   []string{"favorites", entryID},
	}, nil)
}
