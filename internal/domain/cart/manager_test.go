package cart

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage/memory"
)

// --- Mock implementations ---

type quantityCall struct {
	ProductID string
	Quantity  int
}

type mockRemote struct {
	mu sync.Mutex

	lines     []Line
	loadErr   error
	addErr    error
	setErr    error
	removeErr error
	clearErr  error
	// echo, when set, is returned from add and set calls.
	echo *Line
	// delay makes add calls slow to expose missing serialization.
	delay time.Duration

	adds        []quantityCall
	sets        []quantityCall
	removes     []string
	clears      int
	inflight    int
	maxInflight int
}

func (m *mockRemote) CartLines(_ context.Context, _ string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]Line(nil), m.lines...), nil
}

func (m *mockRemote) AddCartLine(_ context.Context, _ string, productID string, quantity int) (*Line, error) {
	m.mu.Lock()
	m.inflight++
	m.maxInflight = max(m.maxInflight, m.inflight)
	m.adds = append(m.adds, quantityCall{productID, quantity})
	delay := m.delay
	m.mu.Unlock()

	time.Sleep(delay)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	return m.echo, m.addErr
}

func (m *mockRemote) SetCartQuantity(_ context.Context, _ string, productID string, quantity int) (*Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, quantityCall{productID, quantity})
	return m.echo, m.setErr
}

func (m *mockRemote) RemoveCartLine(_ context.Context, _ string, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes = append(m.removes, productID)
	return m.removeErr
}

func (m *mockRemote) ClearCart(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return m.clearErr
}

// --- Helpers ---

var (
	errRemote = errors.New("remote unavailable")
	alice     = &session.Session{ID: "1", Name: "alice", Role: session.RoleUser}
)

func newProduct(id string, price int64) product.Product {
	return product.Product{ID: id, Name: "product " + id, Price: decimal.NewFromInt(price)}
}

func quantities(s State) map[string]int {
	out := make(map[string]int, len(s.Lines))
	for _, l := range s.Lines {
		out[l.ProductID] = l.Quantity
	}
	return out
}

func newManager(t *testing.T, remote Remote, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(memory.New(), remote, opts)
	require.NoError(t, err)
	return m
}

// --- Tests ---

func TestState_Total(t *testing.T) {
	s := State{Lines: []Line{
		{ProductID: "p1", UnitPrice: decimal.NewFromInt(10), Quantity: 2},
		{ProductID: "p2", UnitPrice: decimal.NewFromInt(5), Quantity: 3},
	}}
	assert.True(t, s.Total().Equal(decimal.NewFromInt(35)), "got %s", s.Total())
	assert.True(t, State{}.Total().IsZero())
}

func TestManager_AddChangeRemoveScenario(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})
	p1 := newProduct("P1", 100)

	require.NoError(t, m.AddToCart(ctx, alice, p1))
	s := m.Snapshot()
	assert.Equal(t, map[string]int{"P1": 1}, quantities(s))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "product P1", s.Lines[0].Name, "display fields are denormalized")

	require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", 2))
	s = m.Snapshot()
	assert.Equal(t, map[string]int{"P1": 3}, quantities(s))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(300)))

	require.NoError(t, m.RemoveFromCart(ctx, alice, "P1"))
	s = m.Snapshot()
	assert.Empty(t, s.Lines)
	assert.True(t, s.Total().IsZero())

	assert.Equal(t, []quantityCall{{"P1", 1}}, remote.adds)
	assert.Equal(t, []quantityCall{{"P1", 3}}, remote.sets, "remote receives the absolute quantity")
	assert.Equal(t, []string{"P1"}, remote.removes)
}

func TestManager_RequiresSession(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})
	p := newProduct("P1", 1)

	require.ErrorIs(t, m.AddToCart(ctx, nil, p), session.ErrNotAuthenticated)
	require.ErrorIs(t, m.RemoveFromCart(ctx, &session.Session{}, "P1"), session.ErrNotAuthenticated)
	require.ErrorIs(t, m.ChangeQuantity(ctx, nil, "P1", 1), session.ErrNotAuthenticated)
	require.ErrorIs(t, m.ClearCart(ctx, nil), session.ErrNotAuthenticated)

	assert.Empty(t, m.Snapshot().Lines)
	assert.Empty(t, remote.adds)
	assert.Zero(t, remote.clears)
}

func TestManager_FailedAddRollsBackInsert(t *testing.T) {
	ctx := context.Background()
	feed := notice.NewFeed(0)
	m := newManager(t, &mockRemote{addErr: errRemote}, Options{Notifier: feed})

	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	assert.Empty(t, m.Snapshot().Lines)
	require.Len(t, feed.List(), 1)
	assert.Equal(t, "cart.add", feed.List()[0].Op)
}

func TestManager_FailedIncrement(t *testing.T) {
	tests := []struct {
		policy RollbackPolicy
		want   map[string]int
	}{
		{RollbackRestore, map[string]int{"P1": 2}},
		{RollbackRemove, map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			remote := &mockRemote{lines: []Line{{ProductID: "P1", UnitPrice: decimal.NewFromInt(10), Quantity: 2}}}
			m := newManager(t, remote, Options{Rollback: tt.policy})
			m.Load(ctx, alice)

			remote.addErr = errRemote
			require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

			assert.Equal(t, tt.want, quantities(m.Snapshot()))
		})
	}
}

func TestManager_QuantityFloor(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	for range 5 {
		require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", -1))
	}
	require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", -10))

	assert.Equal(t, map[string]int{"P1": 1}, quantities(m.Snapshot()))
	assert.Empty(t, remote.sets, "a change that keeps the quantity makes no remote call")
}

func TestShiftQuantity(t *testing.T) {
	tests := []struct {
		name  string
		qty   int
		delta int
		want  int
	}{
		{"increment", 2, 3, 5},
		{"decrement", 5, -2, 3},
		{"floor", 2, -5, 1},
		{"huge increment saturates", 5, math.MaxInt, math.MaxInt},
		{"huge decrement floors", 5, math.MinInt, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shiftQuantity(tt.qty, tt.delta))
		})
	}
}

func TestManager_ChangeQuantityDoesNotOverflow(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))
	require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", 4))

	require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", math.MaxInt))

	assert.Equal(t, map[string]int{"P1": math.MaxInt}, quantities(m.Snapshot()))
	assert.Equal(t, []quantityCall{{"P1", 5}, {"P1", math.MaxInt}}, remote.sets)
}

func TestManager_ChangeQuantityFailureRestores(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	remote.setErr = errRemote
	require.NoError(t, m.ChangeQuantity(ctx, alice, "P1", 4))

	assert.Equal(t, map[string]int{"P1": 1}, quantities(m.Snapshot()))
	assert.Equal(t, []quantityCall{{"P1", 5}}, remote.sets)
}

func TestManager_ChangeQuantityUnknownProduct(t *testing.T) {
	remote := &mockRemote{}
	m := newManager(t, remote, Options{})

	require.NoError(t, m.ChangeQuantity(context.Background(), alice, "missing", 1))
	assert.Empty(t, m.Snapshot().Lines)
	assert.Empty(t, remote.sets)
}

func TestManager_RemovalPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy RemovalPolicy
		want   []string
	}{
		{"always local", RemovalIsAlwaysLocal, []string{"A", "C"}},
		{"rolls back", RemovalRollsBack, []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			remote := &mockRemote{}
			m := newManager(t, remote, Options{Removal: tt.policy})
			for _, id := range []string{"A", "B", "C"} {
				require.NoError(t, m.AddToCart(ctx, alice, newProduct(id, 1)))
			}

			remote.removeErr = errRemote
			require.NoError(t, m.RemoveFromCart(ctx, alice, "B"))

			var got []string
			for _, l := range m.Snapshot().Lines {
				got = append(got, l.ProductID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_ClearIsLocallyAuthoritative(t *testing.T) {
	for name, clearErr := range map[string]error{"remote ok": nil, "remote failed": errRemote} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			remote := &mockRemote{clearErr: clearErr}
			feed := notice.NewFeed(0)
			m := newManager(t, remote, Options{Notifier: feed})
			require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

			require.NoError(t, m.ClearCart(ctx, alice))

			s := m.Snapshot()
			assert.Empty(t, s.Lines)
			assert.True(t, s.Total().IsZero())
			assert.Equal(t, 1, remote.clears)
			assert.Equal(t, clearErr != nil, len(feed.List()) == 1)
		})
	}
}

func TestManager_TryClearReturnsRemoteError(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &mockRemote{clearErr: errRemote}, Options{})
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	require.ErrorIs(t, m.TryClear(ctx, alice), errRemote)
	assert.Empty(t, m.Snapshot().Lines)
}

func TestManager_LoadFailureFallsBackToEmpty(t *testing.T) {
	feed := notice.NewFeed(0)
	m := newManager(t, &mockRemote{loadErr: errRemote}, Options{Notifier: feed})

	s := m.Load(context.Background(), alice)

	assert.Empty(t, s.Lines)
	assert.False(t, s.Loading, "loading must always resolve")
	assert.Equal(t, "1", s.OwnerID)
	assert.Len(t, feed.List(), 1)
}

func TestManager_LoadFollowsSession(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{lines: []Line{{ProductID: "P9", Quantity: 4}}}
	m := newManager(t, remote, Options{})

	assert.Equal(t, map[string]int{"P9": 4}, quantities(m.Load(ctx, alice)))

	s := m.Load(ctx, nil)
	assert.Empty(t, s.Lines)
	assert.Empty(t, s.OwnerID)

	bob := &session.Session{ID: "2"}
	remote.lines = nil
	assert.Empty(t, m.Lines(ctx, bob))
	assert.Equal(t, "2", m.Snapshot().OwnerID)
}

func TestManager_ReconcilesServerQuantity(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{echo: &Line{ProductID: "P1", Quantity: 3}}
	m := newManager(t, remote, Options{})

	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	assert.Equal(t, map[string]int{"P1": 3}, quantities(m.Snapshot()))
}

func TestManager_OfflinePersistence(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	m, err := NewManager(store, nil, Options{})
	require.NoError(t, err)
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))
	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 10)))

	reopened, err := NewManager(store, nil, Options{})
	require.NoError(t, err)
	s := reopened.Load(ctx, alice)
	assert.Equal(t, map[string]int{"P1": 2}, quantities(s))
	assert.True(t, s.Total().Equal(decimal.NewFromInt(20)))
}

func TestManager_SerializesSameProduct(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{delay: 5 * time.Millisecond}
	m := newManager(t, remote, Options{})
	m.Load(ctx, alice)
	p := newProduct("P1", 1)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.AddToCart(ctx, alice, p))
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"P1": 8}, quantities(m.Snapshot()))
	assert.Equal(t, 1, remote.maxInflight)
	assert.Len(t, remote.adds, 8)
}

func TestManager_ObservePublishesSnapshots(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, &mockRemote{addErr: errRemote}, Options{})
	m.Load(ctx, alice)

	var seen []int
	cancel := m.Observe().Subscribe(func(s State) { seen = append(seen, len(s.Lines)) })
	defer cancel()

	require.NoError(t, m.AddToCart(ctx, alice, newProduct("P1", 1)))

	assert.Equal(t, []int{1, 0}, seen, "optimistic insert then rollback")
}
