package commerce

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

var (
	_ order.Remote     = (*Client)(nil)
	_ order.DeskRemote = (*Client)(nil)
)

func (c *Client) listOrders(ctx context.Context, op string, path ...string) ([]order.Order, error) {
	var orders []order.Order
	err := c.do(ctx, op, request{method: http.MethodGet, path: path}, func(d *jx.Decoder) (err error) {
		orders, err = decodeOrders(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// Orders lists the orders placed by userID.
func (c *Client) Orders(ctx context.Context, userID string) ([]order.Order, error) {
	return c.listOrders(ctx, "orders.list", "orders", "user", userID)
}

// SellerOrders lists orders containing products of sellerID.
func (c *Client) SellerOrders(ctx context.Context, sellerID string) ([]order.Order, error) {
	return c.listOrders(ctx, "orders.seller", "orders", "seller", sellerID)
}

// Order returns a single order or order.ErrNotFound.
func (c *Client) Order(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	err := c.do(ctx, "orders.get", request{
		method: http.MethodGet,
		path:   []string{"orders", orderID},
	}, func(d *jx.Decoder) (err error) {
		o, err = decodeOrder(d)
		return err
	})
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) && cerr.StatusCode == http.StatusNotFound {
			return nil, errors.Wrapf(order.ErrNotFound, "order %s", orderID)
		}
		return nil, err
	}
	return &o, nil
}

// CreateOrder submits d. The draft's idempotency key is sent along so a
// retried submission does not create a second order.
func (c *Client) CreateOrder(ctx context.Context, userID string, d order.Draft) (*order.Order, error) {
	var o order.Order
	err := c.do(ctx, "orders.create", request{
		method: http.MethodPost,
		path:   []string{"orders", "user", userID},
		body:   encodeOrderRequest(d),
		header: http.Header{"Idempotency-Key": {d.IdempotencyKey}},
	}, func(d *jx.Decoder) (err error) {
		o, err = decodeOrder(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteOrder deletes an order.
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, "orders.delete", request{
		method: http.MethodDelete,
		path:   []string{"orders", orderID},
	}, nil)
}

// UpdateOrderStatus moves an order to status. The result is nil when the
// server does not echo the order.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) (*order.Order, error) {
	var (
		o       order.Order
		decoded bool
	)
	err := c.do(ctx, "orders.status", request{
		method:   http.MethodPut,
		path:     []string{"orders", orderID, "status"},
		body:     encodeStatusRequest(status),
		optional: true,
	}, func(d *jx.Decoder) (err error) {
		o, err = decodeOrder(d)
		decoded = err == nil
		return err
	})
	if err != nil || !decoded {
		return nil, err
	}
	return &o, nil
}
