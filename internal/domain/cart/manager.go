package cart

import (
	"context"
	"math"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/pkg/keyed"
	"github.com/xenking/kart-storefront/pkg/observable"
)

// Manager is the cart of one client. Mutations on the same product run one
// at a time; mutations on different products run concurrently.
//
// Remote failures are absorbed: they are logged, reported to the notifier
// and compensated locally. Only a missing session is returned as an error.
type Manager struct {
	store  storage.Store
	remote Remote // nil in offline mode
	opts   Options

	queue *keyed.Queue
	loads singleflight.Group
	save  sync.Mutex

	mu    sync.Mutex
	state State
	gen   uint64
	view  observable.Value[State]

	rollbacks metric.Int64Counter
}

// NewManager returns an empty cart. A nil remote keeps the cart in store
// only.
func NewManager(store storage.Store, remote Remote, opts Options) (*Manager, error) {
	if opts.Rollback == "" {
		opts.Rollback = RollbackRestore
	}
	if opts.Notifier == nil {
		opts.Notifier = notice.Discard
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	rollbacks, err := opts.MeterProvider.Meter("storefront/cart").Int64Counter("storefront.cart.rollbacks",
		metric.WithDescription("Local cart mutations compensated after a remote failure"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rollback counter")
	}
	return &Manager{
		store:     store,
		remote:    remote,
		opts:      opts,
		queue:     keyed.NewQueue(),
		rollbacks: rollbacks,
	}, nil
}

func storageKey(owner string) string { return "cart:" + owner }

type persisted struct {
	Lines []Line `json:"lines"`
}

// Snapshot returns the current cart.
func (m *Manager) Snapshot() State {
	return m.view.Load()
}

// Observe exposes cart snapshots. Subscribers must not call back into the
// Manager.
func (m *Manager) Observe() *observable.Value[State] {
	return &m.view
}

// Lines returns the lines of sess's cart, loading it first when the session
// changed.
func (m *Manager) Lines(ctx context.Context, sess *session.Session) []Line {
	m.ensure(ctx, sess)
	return m.Snapshot().Lines
}

// Load replaces the cart with the persisted one for sess. Without a session
// the cart is empty. Load never fails: a failed read leaves an empty cart.
func (m *Manager) Load(ctx context.Context, sess *session.Session) State {
	owner := session.OwnerID(sess)
	if owner == "" {
		m.reset("")
		return m.Snapshot()
	}

	_, _, _ = m.loads.Do(owner, func() (any, error) {
		m.mu.Lock()
		m.gen++
		m.state = State{OwnerID: owner, Loading: true}
		m.publish()
		m.mu.Unlock()

		lines := m.fetch(ctx, owner)

		m.mu.Lock()
		if m.state.OwnerID == owner {
			m.gen++
			m.state = State{OwnerID: owner, Lines: lines}
			m.publish()
		}
		m.mu.Unlock()

		if m.remote != nil {
			m.persist(ctx)
		}
		return nil, nil
	})
	return m.Snapshot()
}

func (m *Manager) fetch(ctx context.Context, owner string) []Line {
	if m.remote == nil {
		var p persisted
		if _, err := storage.GetJSON(ctx, m.store, storageKey(owner), &p); err != nil {
			notice.Absorb(ctx, m.opts.Notifier, "cart.load", "Saved cart could not be read", err)
			return nil
		}
		return p.Lines
	}
	lines, err := m.remote.CartLines(ctx, owner)
	if err != nil {
		notice.Absorb(ctx, m.opts.Notifier, "cart.load", "Cart could not be loaded", err)
		return nil
	}
	return lines
}

// ensure loads the cart when it belongs to another session or a load is
// still running.
func (m *Manager) ensure(ctx context.Context, sess *session.Session) {
	m.mu.Lock()
	stale := m.state.OwnerID != session.OwnerID(sess) || m.state.Loading
	m.mu.Unlock()
	if stale {
		m.Load(ctx, sess)
	}
}

// AddToCart adds one unit of p. The line is updated locally first and
// compensated when the remote add fails.
func (m *Manager) AddToCart(ctx context.Context, sess *session.Session, p product.Product) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, queueKey(sess.ID, p.ID), func(ctx context.Context) error {
		cmd := m.begin(ctx, sess.ID, p.ID, m.opts.Rollback, func(cur Line, exists bool) (Line, bool) {
			if !exists {
				return LineFor(p, 1), true
			}
			cur.Quantity++
			return cur, true
		})
		if cmd == nil || m.remote == nil {
			return nil
		}

		line, err := m.remote.AddCartLine(ctx, sess.ID, p.ID, 1)
		if err != nil {
			m.compensate(ctx, cmd, "add")
			notice.Absorb(ctx, m.opts.Notifier, "cart.add", "Product could not be added to the cart", err)
			return nil
		}
		m.reconcile(ctx, cmd, line)
		return nil
	})
}

// RemoveFromCart drops the line for productID. Whether a failed remote
// removal brings the line back is decided by Options.Removal.
func (m *Manager) RemoveFromCart(ctx context.Context, sess *session.Session, productID string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, queueKey(sess.ID, productID), func(ctx context.Context) error {
		cmd := m.begin(ctx, sess.ID, productID, RollbackRestore, func(Line, bool) (Line, bool) {
			return Line{}, false
		})
		if cmd == nil || !cmd.existed || m.remote == nil {
			return nil
		}

		if err := m.remote.RemoveCartLine(ctx, sess.ID, productID); err != nil {
			if m.opts.Removal == RemovalRollsBack {
				m.compensate(ctx, cmd, "remove")
			}
			notice.Absorb(ctx, m.opts.Notifier, "cart.remove", "Product could not be removed on the server", err)
		}
		return nil
	})
}

// ChangeQuantity moves the quantity of productID by delta, never below 1.
// The remote receives the resulting absolute quantity. A change that does
// not move the quantity makes no remote call.
func (m *Manager) ChangeQuantity(ctx context.Context, sess *session.Session, productID string, delta int) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, queueKey(sess.ID, productID), func(ctx context.Context) error {
		var quantity int
		cmd := m.begin(ctx, sess.ID, productID, RollbackRestore, func(cur Line, exists bool) (Line, bool) {
			if !exists {
				return Line{}, false
			}
			quantity = shiftQuantity(cur.Quantity, delta)
			cur.Quantity = quantity
			return cur, true
		})
		if cmd == nil || !cmd.existed || cmd.before.Quantity == quantity || m.remote == nil {
			return nil
		}

		line, err := m.remote.SetCartQuantity(ctx, sess.ID, productID, quantity)
		if err != nil {
			m.compensate(ctx, cmd, "quantity")
			notice.Absorb(ctx, m.opts.Notifier, "cart.quantity", "Quantity could not be updated", err)
			return nil
		}
		m.reconcile(ctx, cmd, line)
		return nil
	})
}

// ClearCart empties the cart locally and asks the remote to do the same.
// The local cart is empty afterwards whatever the remote answers.
func (m *Manager) ClearCart(ctx context.Context, sess *session.Session) error {
	err := m.TryClear(ctx, sess)
	if errors.Is(err, session.ErrNotAuthenticated) {
		return err
	}
	if err != nil {
		notice.Absorb(ctx, m.opts.Notifier, "cart.clear", "Cart could not be cleared on the server", err)
	}
	return nil
}

// TryClear is ClearCart returning the remote error instead of absorbing it.
func (m *Manager) TryClear(ctx context.Context, sess *session.Session) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.reset(sess.ID)
	m.persist(ctx)
	return m.ClearRemote(ctx, sess)
}

// ClearRemote asks the remote to empty the cart without touching local
// state. Clearing an empty cart is harmless, so it is safe to retry.
func (m *Manager) ClearRemote(ctx context.Context, sess *session.Session) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	if m.remote == nil {
		return nil
	}
	if err := m.remote.ClearCart(ctx, sess.ID); err != nil {
		return errors.Wrap(err, "clear remote cart")
	}
	return nil
}

func queueKey(owner, productID string) string { return owner + "/" + productID }

// shiftQuantity returns qty+delta floored at 1, saturating instead of
// overflowing.
func shiftQuantity(qty, delta int) int {
	switch {
	case delta > 0 && qty > math.MaxInt-delta:
		return math.MaxInt
	case delta < 0 && qty+delta < 1:
		return 1
	}
	return qty + delta
}

func (m *Manager) reset(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.state = State{OwnerID: owner}
	m.publish()
}

// begin applies a local mutation and persists the result. It returns nil
// when the cart changed owner in the meantime.
func (m *Manager) begin(ctx context.Context, owner, productID string, restore RollbackPolicy, fn func(Line, bool) (Line, bool)) *command {
	m.mu.Lock()
	if m.state.OwnerID != owner {
		m.mu.Unlock()
		return nil
	}
	cmd := &command{owner: owner, productID: productID, gen: m.gen, restore: restore}
	m.state.Lines = cmd.apply(m.state.Lines, fn)
	m.publish()
	m.mu.Unlock()

	m.persist(ctx)
	return cmd
}

func (m *Manager) compensate(ctx context.Context, cmd *command, op string) {
	m.mu.Lock()
	if cmd.gen != m.gen || m.state.OwnerID != cmd.owner {
		m.mu.Unlock()
		zctx.From(ctx).Debug("Skipping stale cart compensation", zap.String("product_id", cmd.productID))
		return
	}
	m.state.Lines = cmd.revert(m.state.Lines)
	m.publish()
	m.mu.Unlock()

	m.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	zctx.From(ctx).Info("Cart mutation rolled back",
		zap.String("op", op),
		zap.String("product_id", cmd.productID),
	)
	m.persist(ctx)
}

// reconcile adopts the quantity the server reports for the mutated line.
func (m *Manager) reconcile(ctx context.Context, cmd *command, server *Line) {
	if server == nil || server.ProductID != cmd.productID || server.Quantity < 1 {
		return
	}

	m.mu.Lock()
	i := indexOf(m.state.Lines, cmd.productID)
	if cmd.gen != m.gen || m.state.OwnerID != cmd.owner || i < 0 || m.state.Lines[i].Quantity == server.Quantity {
		m.mu.Unlock()
		return
	}
	lines := append([]Line(nil), m.state.Lines...)
	lines[i].Quantity = server.Quantity
	m.state.Lines = lines
	m.publish()
	m.mu.Unlock()

	m.persist(ctx)
}

// publish must be called with mu held.
func (m *Manager) publish() {
	m.view.Store(m.state)
}

// persist writes the current cart. Writes are serialized and always write
// the latest state, so the store never goes back in time.
func (m *Manager) persist(ctx context.Context) {
	m.save.Lock()
	defer m.save.Unlock()

	m.mu.Lock()
	owner, lines := m.state.OwnerID, m.state.Lines
	m.mu.Unlock()
	if owner == "" {
		return
	}

	if err := storage.PutJSON(context.WithoutCancel(ctx), m.store, storageKey(owner), persisted{Lines: lines}); err != nil {
		zctx.From(ctx).Warn("Cart could not be saved", zap.String("owner", owner), zap.Error(err))
	}
}
