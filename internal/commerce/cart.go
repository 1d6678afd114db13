package commerce

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

var _ cart.Remote = (*Client)(nil)

// CartLines returns the server cart of userID.
func (c *Client) CartLines(ctx context.Context, userID string) ([]cart.Line, error) {
	var lines []cart.Line
	err := c.do(ctx, "cart.get", request{
		method: http.MethodGet,
		path:   []string{"cart", userID},
	}, func(d *jx.Decoder) error {
		p, err := decodeCart(d)
		if p.line != nil {
			lines = []cart.Line{*p.line}
		} else {
			lines = p.lines
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func quantityQuery(productID string, quantity int) url.Values {
	return url.Values{
		"productId": {productID},
		"quantity":  {strconv.Itoa(quantity)},
	}
}

// lineFor picks the line of productID from a cart or item response.
func lineFor(productID string, dst **cart.Line) func(d *jx.Decoder) error {
	return func(d *jx.Decoder) error {
		p, err := decodeCart(d)
		if err != nil {
			return err
		}
		if p.line != nil {
			*dst = p.line
			return nil
		}
		for i := range p.lines {
			if p.lines[i].ProductID == productID {
				*dst = &p.lines[i]
				return nil
			}
		}
		return nil
	}
}

// AddCartLine adds quantity units of productID.
func (c *Client) AddCartLine(ctx context.Context, userID, productID string, quantity int) (*cart.Line, error) {
	var line *cart.Line
	err := c.do(ctx, "cart.add", request{
		method:   http.MethodPost,
		path:     []string{"cart", userID, "add"},
		query:    quantityQuery(productID, quantity),
		optional: true,
	}, lineFor(productID, &line))
	if err != nil {
		return nil, err
	}
	return line, nil
}

// SetCartQuantity sets the absolute quantity of productID.
func (c *Client) SetCartQuantity(ctx context.Context, userID, productID string, quantity int) (*cart.Line, error) {
	var line *cart.Line
	err := c.do(ctx, "cart.update", request{
		method:   http.MethodPut,
		path:     []string{"cart", userID, "update"},
		query:    quantityQuery(productID, quantity),
		optional: true,
	}, lineFor(productID, &line))
	if err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveCartLine removes productID from the cart.
func (c *Client) RemoveCartLine(ctx context.Context, userID, productID string) error {
	return c.do(ctx, "cart.remove", request{
		method: http.MethodDelete,
		path:   []string{"cart", userID, "remove"},
		query:  url.Values{"productId": {productID}},
	}, nil)
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context, userID string) error {
	return c.do(ctx, "cart.clear", request{
		method: http.MethodDelete,
		path:   []string{"cart", userID, "clear"},
	}, nil)
}
