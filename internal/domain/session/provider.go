package session

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/pkg/observable"
)

// Credentials identify a user at login.
type Credentials struct {
	Email    string
	Password string
}

// Registration describes a new account.
type Registration struct {
	Name     string
	Email    string
	Password string
}

// Authenticator is the remote identity backend.
type Authenticator interface {
	Login(ctx context.Context, c Credentials) (*Session, error)
	Register(ctx context.Context, r Registration) (*Session, error)
}

// StorageKey is where the active session is persisted.
const StorageKey = "session"

// Provider owns the single active session of a client instance and persists
// it so it survives restarts.
type Provider struct {
	auth  Authenticator
	store storage.Store

	mu      sync.Mutex
	current observable.Value[Session]
}

// NewProvider returns a Provider with no active session. Call Restore to
// pick up a persisted one.
func NewProvider(auth Authenticator, store storage.Store) *Provider {
	return &Provider{auth: auth, store: store}
}

// Restore loads the persisted session. Undecodable data is discarded.
func (p *Provider) Restore(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var s Session
	found, err := storage.GetJSON(ctx, p.store, StorageKey, &s)
	if err != nil {
		zctx.From(ctx).Warn("Discarding unreadable session", zap.Error(err))
		if err := p.store.Delete(ctx, StorageKey); err != nil {
			return nil, errors.Wrap(err, "delete session")
		}
		return nil, nil
	}
	if !found || !s.Active() {
		return nil, nil
	}
	s.Role = ParseRole(string(s.Role))
	p.current.Store(s)
	return &s, nil
}

// Current returns a copy of the active session or nil.
func (p *Provider) Current() *Session {
	s := p.current.Load()
	if !s.Active() {
		return nil
	}
	return &s
}

// Observe exposes the active session. The zero Session means logged out.
func (p *Provider) Observe() *observable.Value[Session] {
	return &p.current
}

// Login authenticates and replaces the active session.
func (p *Provider) Login(ctx context.Context, c Credentials) (*Session, error) {
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || c.Password == "" {
		return nil, ErrInvalidCredentials
	}
	s, err := p.auth.Login(ctx, c)
	if err != nil {
		return nil, errors.Wrap(err, "login")
	}
	return p.activate(ctx, s)
}

// Register creates an account and activates its session.
func (p *Provider) Register(ctx context.Context, r Registration) (*Session, error) {
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" || r.Password == "" {
		return nil, errors.New("email and password are required")
	}
	s, err := p.auth.Register(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "register")
	}
	return p.activate(ctx, s)
}

// Logout forgets the active session.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.Delete(ctx, StorageKey); err != nil {
		return errors.Wrap(err, "delete session")
	}
	p.current.Store(Session{})
	return nil
}

func (p *Provider) activate(ctx context.Context, s *Session) (*Session, error) {
	if !s.Active() {
		return nil, errors.New("backend returned a session without id")
	}
	activated := *s
	activated.Role = ParseRole(string(activated.Role))

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := storage.PutJSON(ctx, p.store, StorageKey, activated); err != nil {
		return nil, errors.Wrap(err, "persist session")
	}
	p.current.Store(activated)
	zctx.From(ctx).Info("Session activated",
		zap.String("user_id", activated.ID),
		zap.String("role", string(activated.Role)),
	)
	return &activated, nil
}
