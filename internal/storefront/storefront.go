// Package storefront groups the per-client state managers and keeps one
// bundle per active session.
package storefront

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/checkout"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage"
)

// Remote is the commerce backend as seen by the managers. A nil Remote runs
// every manager against the store alone.
type Remote interface {
	cart.Remote
	favorite.Remote
	order.Remote
}

// Config is shared by every bundle.
type Config struct {
	Cart        cart.Options
	Checkout    checkout.Config
	NoticeLimit int
}

// Bundle is the client-side state of one session.
type Bundle struct {
	Cart      *cart.Manager
	Favorites *favorite.Manager
	Orders    *order.Manager
	Checkout  *checkout.Service
	Notices   *notice.Feed

	warm     sync.Once
	lastUsed time.Time // guarded by Registry.mu
}

// NewBundle wires the managers of one client to a shared notice feed.
func NewBundle(store storage.Store, remote Remote, cfg Config) (*Bundle, error) {
	feed := notice.NewFeed(cfg.NoticeLimit)

	var (
		cr cart.Remote
		fr favorite.Remote
		ordr order.Remote
	)
	if remote != nil {
		cr, fr, ordr = remote, remote, remote
	}

	opts := cfg.Cart
	opts.Notifier = feed
	c, err := cart.NewManager(store, cr, opts)
	if err != nil {
		return nil, errors.Wrap(err, "cart")
	}
	o := order.NewManager(store, ordr, feed)
	return &Bundle{
		Cart:      c,
		Favorites: favorite.NewManager(store, fr, feed),
		Orders:    o,
		Checkout:  checkout.NewService(c, o, feed, cfg.Checkout),
		Notices:   feed,
	}, nil
}

// Reload loads cart, favorites and orders of sess concurrently.
func (b *Bundle) Reload(ctx context.Context, sess *session.Session) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Cart.Load(gctx, sess)
		return nil
	})
	g.Go(func() error {
		b.Favorites.Load(gctx, sess)
		return nil
	})
	g.Go(func() error {
		b.Orders.Load(gctx, sess)
		return nil
	})
	_ = g.Wait()
}

// Registry holds a Bundle per session id.
type Registry struct {
	store  storage.Store
	remote Remote
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	bundles map[string]*Bundle
}

// NewRegistry returns an empty Registry.
func NewRegistry(store storage.Store, remote Remote, cfg Config) *Registry {
	return &Registry{
		store:   store,
		remote:  remote,
		cfg:     cfg,
		now:     time.Now,
		bundles: make(map[string]*Bundle),
	}
}

// For returns the bundle of sess, creating and loading it on first use.
func (r *Registry) For(ctx context.Context, sess *session.Session) (*Bundle, error) {
	b, _, err := r.Acquire(ctx, sess)
	return b, err
}

// Acquire is For that also reports whether this call loaded the bundle, so
// callers needing fresh state can skip a second load.
func (r *Registry) Acquire(ctx context.Context, sess *session.Session) (b *Bundle, loaded bool, err error) {
	if err := session.Require(sess); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	b, ok := r.bundles[sess.ID]
	if !ok {
		if b, err = NewBundle(r.store, r.remote, r.cfg); err != nil {
			r.mu.Unlock()
			return nil, false, errors.Wrap(err, "new bundle")
		}
		r.bundles[sess.ID] = b
	}
	b.lastUsed = r.now()
	r.mu.Unlock()

	b.warm.Do(func() {
		zctx.From(ctx).Debug("Loading session state", zap.String("user_id", sess.ID))
		b.Reload(context.WithoutCancel(ctx), sess)
		loaded = true
	})
	return b, loaded, nil
}

// Reload returns the bundle of sess with cart, favorites and orders freshly
// loaded, creating the bundle when needed.
func (r *Registry) Reload(ctx context.Context, sess *session.Session) (*Bundle, error) {
	b, loaded, err := r.Acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !loaded {
		b.Reload(context.WithoutCancel(ctx), sess)
	}
	return b, nil
}

// Drop forgets the bundle of the session id. Persisted state is kept.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bundles, id)
}

// Len returns the number of live bundles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

// Sweep drops bundles unused for idle and returns how many were dropped.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	n := 0
	for id, b := range r.bundles {
		if b.lastUsed.Before(cutoff) {
			delete(r.bundles, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(idle); n > 0 {
				zctx.From(ctx).Debug("Dropped idle sessions", zap.Int("count", n))
			}
		}
	}
}
