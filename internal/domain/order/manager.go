package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/pkg/keyed"
	"github.com/xenking/kart-storefront/pkg/observable"
)

// History is an immutable snapshot of the order history.
type History struct {
	OwnerID string  `json:"ownerId,omitempty"`
	Orders  []Order `json:"orders"`
	Loaded  bool    `json:"loaded"`
}

// Order returns the order with id.
func (h History) Order(id string) (Order, bool) {
	i := slices.IndexFunc(h.Orders, func(o Order) bool { return o.ID == id })
	if i < 0 {
		return Order{}, false
	}
	return h.Orders[i].Clone(), true
}

// Manager owns the order history of one client. It never changes an
// order's status.
type Manager struct {
	store    storage.Store
	remote   Remote // nil in offline mode
	notifier notice.Notifier
	now      func() time.Time

	queue *keyed.Queue
	loads singleflight.Group
	save  sync.Mutex

	mu    sync.Mutex
	state History
	view  observable.Value[History]
}

// NewManager returns a Manager. A nil remote keeps orders in store only.
func NewManager(store storage.Store, remote Remote, n notice.Notifier) *Manager {
	if n == nil {
		n = notice.Discard
	}
	return &Manager{
		store:    store,
		remote:   remote,
		notifier: n,
		now:      time.Now,
		queue:    keyed.NewQueue(),
	}
}

func storageKey(owner string) string { return "orders:" + owner }

type persisted struct {
	Orders []Order `json:"orders"`
}

// Snapshot returns the current history.
func (m *Manager) Snapshot() History { return m.view.Load() }

// Observe exposes history snapshots.
func (m *Manager) Observe() *observable.Value[History] { return &m.view }

// Load fetches the order history of sess. It is empty without a session or
// when the fetch fails.
func (m *Manager) Load(ctx context.Context, sess *session.Session) History {
	owner := session.OwnerID(sess)
	if owner == "" {
		m.replace(History{Loaded: true})
		return m.Snapshot()
	}

	_, _, _ = m.loads.Do(owner, func() (any, error) {
		m.replace(History{OwnerID: owner})
		orders := m.fetch(ctx, owner)

		m.mu.Lock()
		if m.state.OwnerID == owner {
			m.state = History{OwnerID: owner, Orders: orders, Loaded: true}
			m.view.Store(m.state)
		}
		m.mu.Unlock()
		return nil, nil
	})
	return m.Snapshot()
}

func (m *Manager) fetch(ctx context.Context, owner string) []Order {
	if m.remote == nil {
		var p persisted
		if _, err := storage.GetJSON(ctx, m.store, storageKey(owner), &p); err != nil {
			notice.Absorb(ctx, m.notifier, "orders.load", "Saved orders could not be read", err)
			return nil
		}
		return p.Orders
	}
	orders, err := m.remote.Orders(ctx, owner)
	if err != nil {
		notice.Absorb(ctx, m.notifier, "orders.load", "Orders could not be loaded", err)
		return nil
	}
	return orders
}

func (m *Manager) ensure(ctx context.Context, sess *session.Session) {
	m.mu.Lock()
	stale := m.state.OwnerID != session.OwnerID(sess) || !m.state.Loaded
	m.mu.Unlock()
	if stale {
		m.Load(ctx, sess)
	}
}

// PlaceOrder snapshots lines into an order and submits it. The cart is not
// touched. An empty cart returns ErrEmptyCart. A failed submission is
// absorbed: the returned order is nil and the history is unchanged.
func (m *Manager) PlaceOrder(ctx context.Context, sess *session.Session, lines []cart.Line) (*Order, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}
	draft, err := NewDraft(lines, m.now())
	if err != nil {
		return nil, err
	}
	m.ensure(ctx, sess)

	var placed *Order
	err = m.queue.Do(ctx, sess.ID, func(ctx context.Context) error {
		created, err := m.submit(ctx, sess.ID, draft)
		if err != nil {
			notice.Absorb(ctx, m.notifier, "orders.place", "Order could not be placed", err)
			return nil
		}

		m.update(ctx, sess.ID, func(orders []Order) []Order {
			return append(slices.Clone(orders), created)
		})
		zctx.From(ctx).Info("Order placed",
			zap.String("order_id", created.ID),
			zap.String("total", created.Total.String()),
		)
		o := created.Clone()
		placed = &o
		return nil
	})
	return placed, err
}

// submit creates the order remotely and fills fields the server left out
// from the draft.
func (m *Manager) submit(ctx context.Context, owner string, d Draft) (Order, error) {
	o := Order{
		ID:        uuid.NewString(),
		CreatedAt: d.CreatedAt,
		Total:     d.Total,
		Status:    StatusPreparing,
		Lines:     slices.Clone(d.Lines),
	}
	if m.remote == nil {
		return o, nil
	}

	created, err := m.remote.CreateOrder(ctx, owner, d)
	if err != nil {
		return Order{}, err
	}
	if created == nil {
		return Order{}, errEmptyResponse
	}
	if created.ID != "" {
		o.ID = created.ID
	}
	if !created.CreatedAt.IsZero() {
		o.CreatedAt = created.CreatedAt
	}
	if !created.Total.IsZero() {
		o.Total = created.Total
	}
	if created.Status != "" {
		o.Status = created.Status
	}
	if len(created.Lines) > 0 {
		o.Lines = slices.Clone(created.Lines)
	}
	return o, nil
}

// RemoveOrder deletes an order of sess. History is pruned only after the
// server confirmed.
func (m *Manager) RemoveOrder(ctx context.Context, sess *session.Session, orderID string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, sess.ID+"/"+orderID, func(ctx context.Context) error {
		if _, ok := m.Snapshot().Order(orderID); !ok {
			return nil
		}
		if m.remote != nil {
			if err := m.remote.DeleteOrder(ctx, orderID); err != nil {
				notice.Absorb(ctx, m.notifier, "orders.remove", "Order could not be deleted", err)
				return nil
			}
		}
		m.update(ctx, sess.ID, func(orders []Order) []Order {
			return slices.DeleteFunc(slices.Clone(orders), func(o Order) bool { return o.ID == orderID })
		})
		return nil
	})
}

func (m *Manager) replace(h History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = h
	m.view.Store(h)
}

func (m *Manager) update(ctx context.Context, owner string, fn func([]Order) []Order) {
	m.mu.Lock()
	if m.state.OwnerID != owner {
		m.mu.Unlock()
		return
	}
	m.state.Orders = fn(m.state.Orders)
	m.view.Store(m.state)
	m.mu.Unlock()

	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	m.save.Lock()
	defer m.save.Unlock()

	h := m.Snapshot()
	if h.OwnerID == "" {
		return
	}
	if err := storage.PutJSON(context.WithoutCancel(ctx), m.store, storageKey(h.OwnerID), persisted{Orders: h.Orders}); err != nil {
		zctx.From(ctx).Warn("Orders could not be saved", zap.String("owner", h.OwnerID), zap.Error(err))
	}
}
