package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/session"
)

type mockDeskRemote struct {
	orders    map[string]*Order
	updateErr error
	updates   []Status
}

func (m *mockDeskRemote) SellerOrders(_ context.Context, _ string) ([]Order, error) {
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *mockDeskRemote) Order(_ context.Context, orderID string) (*Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := o.Clone()
	return &c, nil
}

func (m *mockDeskRemote) UpdateOrderStatus(_ context.Context, orderID string, status Status) (*Order, error) {
	m.updates = append(m.updates, status)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.orders[orderID].Status = status
	c := m.orders[orderID].Clone()
	return &c, nil
}

var seller = &session.Session{ID: "9", Name: "shop", Role: session.RoleSeller}

func TestDesk_RequiresBackOffice(t *testing.T) {
	d := NewDesk(&mockDeskRemote{})

	_, err := d.Orders(context.Background(), nil)
	require.ErrorIs(t, err, session.ErrNotAuthenticated)

	_, err = d.Orders(context.Background(), alice)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = d.Advance(context.Background(), alice, "1", StatusConfirmed)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDesk_Advance(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"confirm", StatusPreparing, StatusConfirmed, false},
		{"cancel in transit", StatusInTransit, StatusCancelled, false},
		{"skip step", StatusPreparing, StatusDelivered, true},
		{"reopen cancelled", StatusCancelled, StatusPreparing, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &mockDeskRemote{orders: map[string]*Order{"1": {ID: "1", Status: tt.from}}}
			d := NewDesk(remote)

			got, err := d.Advance(context.Background(), seller, "1", tt.to)
			if tt.wantErr {
				var terr *TransitionError
				require.ErrorAs(t, err, &terr)
				assert.Equal(t, tt.from, terr.From)
				assert.Empty(t, remote.updates)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, got.Status)
			assert.Equal(t, []Status{tt.to}, remote.updates)
		})
	}
}

func TestDesk_AdvanceRemoteErrors(t *testing.T) {
	admin := &session.Session{ID: "1", Role: session.RoleAdmin}
	remote := &mockDeskRemote{
		orders:    map[string]*Order{"1": {ID: "1", Status: StatusPreparing}},
		updateErr: errors.New("boom"),
	}
	d := NewDesk(remote)

	_, err := d.Advance(context.Background(), admin, "1", StatusConfirmed)
	require.ErrorContains(t, err, "boom")

	_, err = d.Advance(context.Background(), admin, "404", StatusConfirmed)
	require.ErrorIs(t, err, ErrNotFound)
}
