package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/commerce"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/favorite"
	"github.com/xenking/kart-storefront/internal/domain/notice"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

var errBackendDown = errors.Wrap(commerce.ErrRemoteUnavailable, "dial")

// mockRemote is an in-memory commerce backend keyed by user id.
type mockRemote struct {
	mu       sync.Mutex
	products map[string]product.Product
	down     bool
	lines  map[string][]cart.Line
	favs   map[string][]favorite.Entry
	orders map[string][]order.Order
	nextID int
}

func newMockRemote() *mockRemote {
	return &mockRemote{
		products: map[string]product.Product{
			"p1": {ID: "p1", Name: "Kart", Price: decimal.RequireFromString("19.90")},
			"p2": {ID: "p2", Name: "Helmet", Price: decimal.RequireFromString("5.05")},
		},
		lines:  make(map[string][]cart.Line),
		favs:   make(map[string][]favorite.Entry),
		orders: make(map[string][]order.Order),
	}
}

func (m *mockRemote) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *mockRemote) id() string {
	m.nextID++
	return strconv.Itoa(m.nextID)
}

func (m *mockRemote) CartLines(_ context.Context, userID string) ([]cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	return append([]cart.Line(nil), m.lines[userID]...), nil
}

func (m *mockRemote) setQuantity(userID, productID string, quantity int, add bool) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	lines := m.lines[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			if add {
				quantity += lines[i].Quantity
			}
			lines[i].Quantity = quantity
			l := lines[i]
			return &l, nil
		}
	}
	l := cart.LineFor(m.products[productID], quantity)
	m.lines[userID] = append(lines, l)
	return &l, nil
}

func (m *mockRemote) AddCartLine(_ context.Context, userID, productID string, quantity int) (*cart.Line, error) {
	return m.setQuantity(userID, productID, quantity, true)
}

func (m *mockRemote) SetCartQuantity(_ context.Context, userID, productID string, quantity int) (*cart.Line, error) {
	return m.setQuantity(userID, productID, quantity, false)
}

func (m *mockRemote) RemoveCartLine(_ context.Context, userID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errBackendDown
	}
	var kept []cart.Line
	for _, l := range m.lines[userID] {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	m.lines[userID] = kept
	return nil
}

func (m *mockRemote) ClearCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errBackendDown
	}
	delete(m.lines, userID)
	return nil
}

func (m *mockRemote) Favorites(_ context.Context, userID string) ([]favorite.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	return append([]favorite.Entry(nil), m.favs[userID]...), nil
}

func (m *mockRemote) AddFavorite(_ context.Context, userID, productID string) (*favorite.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	e := favorite.Entry{ID: "f" + m.id(), Product: m.products[productID]}
	m.favs[userID] = append(m.favs[userID], e)
	return &e, nil
}

func (m *mockRemote) RemoveFavorite(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errBackendDown
	}
	for user, entries := range m.favs {
		var kept []favorite.Entry
		for _, e := range entries {
			if e.ID != entryID {
				kept = append(kept, e)
			}
		}
		m.favs[user] = kept
	}
	return nil
}

func (m *mockRemote) Orders(_ context.Context, userID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	return append([]order.Order(nil), m.orders[userID]...), nil
}

func (m *mockRemote) CreateOrder(_ context.Context, userID string, d order.Draft) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errBackendDown
	}
	o := order.Order{ID: "o" + m.id(), CreatedAt: d.CreatedAt, Total: d.Total, Status: order.StatusPreparing, Lines: d.Lines}
	m.orders[userID] = append(m.orders[userID], o)
	return &o, nil
}

func (m *mockRemote) DeleteOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errBackendDown
	}
	for user, orders := range m.orders {
		var kept []order.Order
		for _, o := range orders {
			if o.ID != orderID {
				kept = append(kept, o)
			}
		}
		m.orders[user] = kept
	}
	return nil
}

// advance moves an order of userID the way a seller would on the server.
func (m *mockRemote) advance(userID, orderID string, status order.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.orders[userID] {
		if o.ID == orderID {
			m.orders[userID][i].Status = status
		}
	}
}

func (m *mockRemote) quantity(userID, productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lines[userID] {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

func TestServer_RemoteShoppingFlow(t *testing.T) {
	remote := newMockRemote()
	s := newServerWith(t, nil, remote)
	token := s.login("alice@shop.example")

	s.do(http.MethodPost, "/api/cart/items", token, addItemRequest{ProductID: "p1"})
	w := s.do(http.MethodPost, "/api/cart/items", token, addItemRequest{ProductID: "p1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decodeBody[cartView](t, w)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity, "acknowledged adds are kept")
	assert.Equal(t, 2, remote.quantity("7", "p1"))

	w = s.do(http.MethodPatch, "/api/cart/items/p1", token, quantityRequest{Delta: 1})
	assert.Equal(t, 3, decodeBody[cartView](t, w).Lines[0].Quantity)
	assert.Equal(t, 3, remote.quantity("7", "p1"))

	w = s.do(http.MethodGet, "/api/cart", token, nil)
	c = decodeBody[cartView](t, w)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Count)

	w = s.do(http.MethodPut, "/api/favorites/p2", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/favorites", token, nil)
	fav := decodeBody[favorite.State](t, w)
	require.Len(t, fav.Entries, 1)
	assert.Equal(t, "f1", fav.Entries[0].ID, "the server entry id is kept")

	w = s.do(http.MethodPost, "/api/orders", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rc := decodeBody[receiptView](t, w)
	require.NotNil(t, rc.Order)
	assert.True(t, rc.CartCleared)
	assert.True(t, rc.Order.Total.Equal(decimal.RequireFromString("59.70")), rc.Order.Total.String())
	assert.Zero(t, remote.quantity("7", "p1"))

	remote.advance("7", rc.Order.ID, order.StatusShipped)

	w = s.do(http.MethodGet, "/api/orders", token, nil)
	h := decodeBody[historyView](t, w)
	require.Len(t, h.Orders, 1)
	assert.Equal(t, order.StatusShipped, h.Orders[0].Status, "server-side status changes show on read")
	assert.Equal(t, 60, h.Orders[0].Progress)
}

func TestServer_RemoteRecoversFromLoadFailure(t *testing.T) {
	remote := newMockRemote()
	remote.setDown(true)
	s := newServerWith(t, nil, remote)
	token := s.login("alice@shop.example")

	w := s.do(http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[cartView](t, w).Lines)

	w = s.do(http.MethodGet, "/api/notices", token, nil)
	notices := decodeBody[[]notice.Notice](t, w)
	assert.NotEmpty(t, notices, "the failed load is reported")

	remote.setDown(false)
	remote.lines["7"] = []cart.Line{{ProductID: "p1", Name: "Kart", UnitPrice: decimal.RequireFromString("19.90"), Quantity: 2}}
	remote.orders["7"] = []order.Order{{ID: "o1", Status: order.StatusPreparing}}

	w = s.do(http.MethodGet, "/api/cart", token, nil)
	c := decodeBody[cartView](t, w)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	remote.advance("7", "o1", order.StatusShipped)
	token = s.login("alice@shop.example")

	w = s.do(http.MethodGet, "/api/orders", token, nil)
	h := decodeBody[historyView](t, w)
	require.Len(t, h.Orders, 1)
	assert.Equal(t, order.StatusShipped, h.Orders[0].Status)
}

func TestServer_QuantityDeltaBounded(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.login("alice@shop.example")
	s.do(http.MethodPost, "/api/cart/items", token, addItemRequest{ProductID: "p1"})

	w := s.do(http.MethodPatch, "/api/cart/items/p1", token, quantityRequest{Delta: maxDelta + 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/cart", token, nil)
	assert.Equal(t, 1, decodeBody[cartView](t, w).Count)
}
