package commerce

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

var _ product.Catalog = (*Client)(nil)

// Products lists the catalog.
func (c *Client) Products(ctx context.Context) ([]product.Product, error) {
	var products []product.Product
	err := c.do(ctx, "products.list", request{
		method: http.MethodGet,
		path:   []string{"products"},
	}, func(d *jx.Decoder) (err error) {
		products, err = decodeProducts(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Product returns one product or product.ErrNotFound.
func (c *Client) Product(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := c.do(ctx, "products.get", request{
		method: http.MethodGet,
		path:   []string{"products", id},
	}, func(d *jx.Decoder) (err error) {
		p, err = decodeProduct(d)
		return err
	})
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) && cerr.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(product.ErrNotFound, "product %s", id)
		}
		return nil, err
	}
	return &p, nil
}
