// Package checkout turns the active cart into an order.
//
// Placing the order and clearing the cart are two remote calls. When the
// order is placed but the remote clear keeps failing, the local cart is empty
// anyway and the Receipt reports CartCleared=false; the next cart load shows
// the server cart again, and clearing it once more is safe.
package checkout

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

// Cart is the part of the cart manager checkout needs.
type Cart interface {
	Lines(ctx context.Context, sess *session.Session) []cart.Line
	TryClear(ctx context.Context, sess *session.Session) error
	ClearRemote(ctx context.Context, sess *session.Session) error
}

// Orders is the part of the order manager checkout needs.
type Orders interface {
	PlaceOrder(ctx context.Context, sess *session.Session, lines []cart.Line) (*order.Order, error)
}

// Config controls the remote cart clear retries.
type Config struct {
	ClearAttempts int
	ClearBackoff  time.Duration
}

// Receipt is the outcome of a purchase. Order is nil when the order could
// not be placed; the cart is then left untouched.
type Receipt struct {
	Order       *order.Order `json:"order,omitempty"`
	CartCleared bool         `json:"cartCleared"`
}

// Service runs purchases.
type Service struct {
	cart     Cart
	orders   Orders
	notifier notice.Notifier
	cfg      Config
}

// NewService returns a Service.
func NewService(c Cart, o Orders, n notice.Notifier, cfg Config) *Service {
	if cfg.ClearAttempts <= 0 {
		cfg.ClearAttempts = 3
	}
	if cfg.ClearBackoff <= 0 {
		cfg.ClearBackoff = 200 * time.Millisecond
	}
	if n == nil {
		n = notice.Discard
	}
	return &Service{cart: c, orders: o, notifier: n, cfg: cfg}
}

// Purchase places an order for the current cart of sess and, once placed,
// empties the cart. An empty cart returns order.ErrEmptyCart.
func (s *Service) Purchase(ctx context.Context, sess *session.Session) (Receipt, error) {
	if err := session.Require(sess); err != nil {
		return Receipt{}, err
	}
	lines := s.cart.Lines(ctx, sess)
	if len(lines) == 0 {
		return Receipt{}, order.ErrEmptyCart
	}

	placed, err := s.orders.PlaceOrder(ctx, sess, lines)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "place order")
	}
	if placed == nil {
		return Receipt{}, nil
	}

	r := Receipt{Order: placed, CartCleared: true}
	if err := s.clear(ctx, sess); err != nil {
		r.CartCleared = false
		zctx.From(ctx).Warn("Order placed but server cart not cleared",
			zap.String("order_id", placed.ID),
			zap.Error(err),
		)
		notice.Absorb(ctx, s.notifier, "checkout.clear", "Order placed, but the cart could not be emptied on the server", err)
	}
	return r, nil
}

// clear empties the local cart on the first attempt and retries the remote
// clear with exponential backoff.
func (s *Service) clear(ctx context.Context, sess *session.Session) error {
	err := s.cart.TryClear(ctx, sess)
	if err == nil || s.cfg.ClearAttempts == 1 {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ClearBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.ClearAttempts-2)), ctx)

	return backoff.Retry(func() error {
		err := s.cart.ClearRemote(ctx, sess)
		if errors.Is(err, session.ErrNotAuthenticated) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
