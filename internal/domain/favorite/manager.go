package favorite

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/pkg/keyed"
	"github.com/xenking/kart-storefront/pkg/observable"
)

// Manager owns the favorites of one client.
type Manager struct {
	store    storage.Store
	remote   Remote // nil in offline mode
	notifier notice.Notifier

	queue *keyed.Queue
	loads singleflight.Group
	save  sync.Mutex

	mu    sync.Mutex
	state State
	view  observable.Value[State]
}

// NewManager returns a Manager. A nil remote keeps favorites in store only
// with locally generated entry ids.
func NewManager(store storage.Store, remote Remote, n notice.Notifier) *Manager {
	if n == nil {
		n = notice.Discard
	}
	return &Manager{store: store, remote: remote, notifier: n, queue: keyed.NewQueue()}
}

func storageKey(owner string) string { return "favorites:" + owner }

type persisted struct {
	Entries []Entry `json:"entries"`
}

// Snapshot returns the current favorites.
func (m *Manager) Snapshot() State { return m.view.Load() }

// Observe exposes favorites snapshots.
func (m *Manager) Observe() *observable.Value[State] { return &m.view }

// Load fetches the favorites of sess. On failure the set is empty; in every
// case the returned state is Loaded.
func (m *Manager) Load(ctx context.Context, sess *session.Session) State {
	owner := session.OwnerID(sess)
	if owner == "" {
		m.replace(State{Loaded: true})
		return m.Snapshot()
	}

	_, _, _ = m.loads.Do(owner, func() (any, error) {
		m.replace(State{OwnerID: owner})
		entries := m.fetch(ctx, owner)

		m.mu.Lock()
		if m.state.OwnerID == owner {
			m.state = State{OwnerID: owner, Entries: entries, Loaded: true}
			m.view.Store(m.state)
		}
		m.mu.Unlock()
		return nil, nil
	})
	return m.Snapshot()
}

func (m *Manager) fetch(ctx context.Context, owner string) []Entry {
	if m.remote == nil {
		var p persisted
		if _, err := storage.GetJSON(ctx, m.store, storageKey(owner), &p); err != nil {
			notice.Absorb(ctx, m.notifier, "favorites.load", "Saved favorites could not be read", err)
			return nil
		}
		return p.Entries
	}
	entries, err := m.remote.Favorites(ctx, owner)
	if err != nil {
		notice.Absorb(ctx, m.notifier, "favorites.load", "Favorites could not be loaded", err)
		return nil
	}
	return entries
}

func (m *Manager) ensure(ctx context.Context, sess *session.Session) {
	m.mu.Lock()
	stale := m.state.OwnerID != session.OwnerID(sess) || !m.state.Loaded
	m.mu.Unlock()
	if stale {
		m.Load(ctx, sess)
	}
}

// IsFavorite reports whether productID is a favorite of sess. It is false
// without a session or before the session's favorites are loaded.
func (m *Manager) IsFavorite(sess *session.Session, productID string) bool {
	s := m.Snapshot()
	if !sess.Active() || s.OwnerID != sess.ID {
		return false
	}
	return s.Contains(productID)
}

// AddToFavorites marks p as a favorite once the server assigned an entry
// id. Adding a favorite twice is a no-op.
func (m *Manager) AddToFavorites(ctx context.Context, sess *session.Session, p product.Product) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, sess.ID+"/"+p.ID, func(ctx context.Context) error {
		if m.Snapshot().Contains(p.ID) {
			return nil
		}

		entry, err := m.create(ctx, sess.ID, p)
		if err != nil {
			notice.Absorb(ctx, m.notifier, "favorites.add", "Product could not be added to favorites", err)
			return nil
		}

		m.update(ctx, sess.ID, func(entries []Entry) []Entry {
			return append(slices.Clone(entries), *entry)
		})
		return nil
	})
}

func (m *Manager) create(ctx context.Context, owner string, p product.Product) (*Entry, error) {
	if m.remote == nil {
		return &Entry{ID: uuid.NewString(), Product: p}, nil
	}
	entry, err := m.remote.AddFavorite(ctx, owner, p.ID)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.ID == "" {
		return nil, errors.New("favorite created without entry id")
	}
	created := *entry
	// The server may echo only the product id.
	if created.Product.ID == "" || created.Product.Name == "" {
		created.Product = p
	}
	return &created, nil
}

// RemoveFromFavorites deletes the entry for productID and drops it locally
// after the server confirmed.
func (m *Manager) RemoveFromFavorites(ctx context.Context, sess *session.Session, productID string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	return m.queue.Do(ctx, sess.ID+"/"+productID, func(ctx context.Context) error {
		entry, ok := m.Snapshot().Entry(productID)
		if !ok {
			return nil
		}
		if m.remote != nil {
			if err := m.remote.RemoveFavorite(ctx, entry.ID); err != nil {
				notice.Absorb(ctx, m.notifier, "favorites.remove", "Product could not be removed from favorites", err)
				return nil
			}
		}
		m.update(ctx, sess.ID, func(entries []Entry) []Entry {
			return slices.DeleteFunc(slices.Clone(entries), func(e Entry) bool { return e.ID == entry.ID })
		})
		return nil
	})
}

// ClearFavorites removes every favorite. Entries whose removal failed stay.
func (m *Manager) ClearFavorites(ctx context.Context, sess *session.Session) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	m.ensure(ctx, sess)

	var failed int
	for _, e := range m.Snapshot().Entries {
		err := m.RemoveFromFavorites(ctx, sess, e.Product.ID)
		if err != nil {
			return err
		}
		if m.Snapshot().Contains(e.Product.ID) {
			failed++
		}
	}
	if failed > 0 {
		zctx.From(ctx).Warn("Favorites partially cleared", zap.Int("remaining", failed))
	}
	return nil
}

func (m *Manager) replace(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.view.Store(s)
}

func (m *Manager) update(ctx context.Context, owner string, fn func([]Entry) []Entry) {
	m.mu.Lock()
	if m.state.OwnerID != owner {
		m.mu.Unlock()
		return
	}
	m.state.Entries = fn(m.state.Entries)
	m.view.Store(m.state)
	m.mu.Unlock()

	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	m.save.Lock()
	defer m.save.Unlock()

	s := m.Snapshot()
	if s.OwnerID == "" {
		return
	}
	if err := storage.PutJSON(context.WithoutCancel(ctx), m.store, storageKey(s.OwnerID), persisted{Entries: s.Entries}); err != nil {
		zctx.From(ctx).Warn("Favorites could not be saved", zap.String("owner", s.OwnerID), zap.Error(err))
	}
}
