package commerce

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-storefront/internal/domain/session"
)

var _ session.Authenticator = (*Client)(nil)

func (c *Client) authenticate(ctx context.Context, op, endpoint string, body []byte) (*session.Session, error) {
	var s session.Session
	err := c.do(ctx, op, request{
		method: http.MethodPost,
		path:   []string{"auth", endpoint},
		body:   body,
	}, func(d *jx.Decoder) (err error) {
		s, err = decodeUser(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Login exchanges credentials for a session. A 400 or 401 answer is
// reported as session.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	s, err := c.authenticate(ctx, "auth.login", "login", encodeLogin(creds))
	var cerr *Error
	if errors.As(err, &cerr) && (cerr.StatusCode == http.StatusUnauthorized || cerr.StatusCode == http.StatusBadRequest) {
		return nil, errors.Wrap(session.ErrInvalidCredentials, cerr.Error())
	}
	return s, err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, r session.Registration) (*session.Session, error) {
	return c.authenticate(ctx, "auth.register", "register", encodeRegister(r))
}

// User returns the profile of userID.
func (c *Client) User(ctx context.Context, userID string) (*session.Session, error) {
	var s session.Session
	err := c.do(ctx, "auth.user", request{
		method: http.MethodGet,
		path:   []string{"auth", "user", userID},
	}, func(d *jx.Decoder) (err error) {
		s, err = decodeUser(d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
