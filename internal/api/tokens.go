package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storage"
)

const tokenIssuer = "kart-storefront"

// Claims are the session token claims. Subject is the user id.
type Claims struct {
	Name  string       `json:"name"`
	Email string       `json:"email,omitempty"`
	Role  session.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session returns the principal the claims describe.
func (c *Claims) Session() *session.Session {
	return &session.Session{ID: c.Subject, Name: c.Name, Email: c.Email, Role: session.ParseRole(string(c.Role))}
}

// Tokens issues and verifies HS256 session tokens. Revoked token ids are
// kept in the store until the token would have expired anyway; Sweep removes
// them after that.
type Tokens struct {
	mu     sync.Mutex // guards the revocation index
	secret []byte
	ttl    time.Duration
	store  storage.Store
	now    func() time.Time
}

// NewTokens returns Tokens signing with secret.
func NewTokens(secret []byte, ttl time.Duration, store storage.Store) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: secret, ttl: ttl, store: store, now: time.Now}, nil
}

// Issue signs a token for s.
func (t *Tokens) Issue(s *session.Session) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := &Claims{
		Name:  s.Name,
		Email: s.Email,
		Role:  s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

func revokedKey(id string) string { return "revoked:" + id }

// revokedIndexKey maps every stored revocation id to its expiry.
const revokedIndexKey = "revoked"

type revocation struct {
	Until time.Time `json:"until"`
}

// Parse verifies raw and returns its claims. Any failure, including a
// revoked token, is session.ErrNotAuthenticated.
func (t *Tokens) Parse(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || claims.Subject == "" {
		return nil, session.ErrNotAuthenticated
	}

	var rev revocation
	found, err := storage.GetJSON(ctx, t.store, revokedKey(claims.ID), &rev)
	if err != nil {
		return nil, errors.Wrap(err, "check revocation")
	}
	if found {
		return nil, session.ErrNotAuthenticated
	}
	return claims, nil
}

// Revoke invalidates the token carrying claims.
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) error {
	rev := revocation{Until: t.now().Add(t.ttl)}
	if claims.ExpiresAt != nil {
		rev.Until = claims.ExpiresAt.Time
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	index, err := t.index(ctx)
	if err != nil {
		return err
	}
	if err := storage.PutJSON(ctx, t.store, revokedKey(claims.ID), rev); err != nil {
		return err
	}
	index[claims.ID] = rev.Until
	return storage.PutJSON(ctx, t.store, revokedIndexKey, index)
}

func (t *Tokens) index(ctx context.Context) (map[string]time.Time, error) {
	index := map[string]time.Time{}
	if _, err := storage.GetJSON(ctx, t.store, revokedIndexKey, &index); err != nil {
		return nil, errors.Wrap(err, "load revocations")
	}
	return index, nil
}

// Sweep deletes revocations of tokens that have expired and returns how many
// were deleted.
func (t *Tokens) Sweep(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, err := t.index(ctx)
	if err != nil {
		return 0, err
	}
	now := t.now()
	n := 0
	for id, until := range index {
		if until.After(now) {
			continue
		}
		if err := t.store.Delete(ctx, revokedKey(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return n, errors.Wrapf(err, "delete revocation %q", id)
		}
		delete(index, id)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, storage.PutJSON(ctx, t.store, revokedIndexKey, index)
}

// Run sweeps every interval until ctx is done.
func (t *Tokens) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			n, err := t.Sweep(ctx)
			if err != nil {
				zctx.From(ctx).Warn("Sweep revocations", zap.Error(err))
				continue
			}
			if n > 0 {
				zctx.From(ctx).Debug("Dropped expired revocations", zap.Int("count", n))
			}
		}
	}
}
