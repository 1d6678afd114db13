package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/session"
)

var (
	// ErrForbidden is returned when a non back-office session uses the Desk.
	ErrForbidden = errors.New("back-office role required")
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")

	errEmptyResponse = errors.New("empty response")
)

// DeskRemote is the back-office side of the order API.
type DeskRemote interface {
	SellerOrders(ctx context.Context, sellerID string) ([]Order, error)
	Order(ctx context.Context, orderID string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status Status) (*Order, error)
}

// Desk lets sellers and administrators follow orders and move their status.
// Unlike Manager, it returns remote errors to the caller.
type Desk struct {
	remote DeskRemote
}

// NewDesk returns a Desk over remote.
func NewDesk(remote DeskRemote) *Desk {
	return &Desk{remote: remote}
}

func requireBackOffice(sess *session.Session) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	if !sess.Role.BackOffice() {
		return ErrForbidden
	}
	return nil
}

// Orders lists orders containing products sold by sess.
func (d *Desk) Orders(ctx context.Context, sess *session.Session) ([]Order, error) {
	if err := requireBackOffice(sess); err != nil {
		return nil, err
	}
	orders, err := d.remote.SellerOrders(ctx, sess.ID)
	if err != nil {
		return nil, errors.Wrap(err, "seller orders")
	}
	return orders, nil
}

// Advance moves order orderID to status next after checking the transition
// against the current server status.
func (d *Desk) Advance(ctx context.Context, sess *session.Session, orderID string, next Status) (*Order, error) {
	if err := requireBackOffice(sess); err != nil {
		return nil, err
	}
	current, err := d.remote.Order(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	if current == nil {
		return nil, ErrNotFound
	}
	if !current.Status.CanTransition(next) {
		return nil, &TransitionError{From: current.Status, To: next}
	}

	updated, err := d.remote.UpdateOrderStatus(ctx, orderID, next)
	if err != nil {
		return nil, errors.Wrapf(err, "update order %s status", orderID)
	}
	if updated == nil {
		o := current.Clone()
		o.Status = next
		updated = &o
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)),
		zap.String("by", sess.ID),
	)
	return updated, nil
}
