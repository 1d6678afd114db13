package session

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/storage/memory"
)

type mockAuthenticator struct {
	session *Session
	err     error
	logins  int
}

func (m *mockAuthenticator) Login(_ context.Context, _ Credentials) (*Session, error) {
	m.logins++
	return m.session, m.err
}

func (m *mockAuthenticator) Register(_ context.Context, r Registration) (*Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &Session{ID: "new", Name: r.Name, Email: r.Email}, nil
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"USER", RoleUser},
		{"seller", RoleSeller},
		{" ADMIN ", RoleAdmin},
		{"", RoleUser},
		{"root", RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRole(tt.in))
		})
	}
}

func TestRequire(t *testing.T) {
	require.ErrorIs(t, Require(nil), ErrNotAuthenticated)
	require.ErrorIs(t, Require(&Session{}), ErrNotAuthenticated)
	require.NoError(t, Require(&Session{ID: "1"}))
}

func TestProvider_LoginPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	auth := &mockAuthenticator{session: &Session{ID: "7", Name: "ayse", Role: "seller"}}

	p := NewProvider(auth, store)
	assert.Nil(t, p.Current())

	var seen []Session
	cancel := p.Observe().Subscribe(func(s Session) { seen = append(seen, s) })
	defer cancel()

	s, err := p.Login(ctx, Credentials{Email: "a@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, RoleSeller, s.Role)
	require.Len(t, seen, 1)
	assert.Equal(t, "7", seen[0].ID)

	restored, err := NewProvider(auth, store).Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, *s, *restored)

	require.NoError(t, p.Logout(ctx))
	assert.Nil(t, p.Current())

	restored, err = NewProvider(auth, store).Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestProvider_LoginRejectsBlankCredentials(t *testing.T) {
	auth := &mockAuthenticator{}
	p := NewProvider(auth, memory.New())

	_, err := p.Login(context.Background(), Credentials{Email: "  ", Password: "pw"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, auth.logins)
}

func TestProvider_LoginFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	auth := &mockAuthenticator{session: &Session{ID: "1"}}
	p := NewProvider(auth, memory.New())

	_, err := p.Login(ctx, Credentials{Email: "a", Password: "b"})
	require.NoError(t, err)

	auth.err = ErrInvalidCredentials
	_, err = p.Login(ctx, Credentials{Email: "a", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, p.Current())
	assert.Equal(t, "1", p.Current().ID)
}

func TestProvider_RestoreDiscardsCorruptState(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Put(ctx, StorageKey, []byte("not json")))

	s, err := NewProvider(&mockAuthenticator{}, store).Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Zero(t, store.Len())
}

func TestProvider_Register(t *testing.T) {
	p := NewProvider(&mockAuthenticator{}, memory.New())

	s, err := p.Register(context.Background(), Registration{Name: "n", Email: "e@x", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, RoleUser, s.Role)
	assert.Equal(t, "new", p.Current().ID)

	_, err = p.Register(context.Background(), Registration{Email: "e@x"})
	require.Error(t, err)

	failing := NewProvider(&mockAuthenticator{err: errors.New("taken")}, memory.New())
	_, err = failing.Register(context.Background(), Registration{Email: "e@x", Password: "p"})
	require.ErrorContains(t, err, "taken")
}
