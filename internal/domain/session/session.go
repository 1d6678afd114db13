// Package session resolves the current principal and gates the state
// managers on it.
package session

import (
	"strings"

	"github.com/go-faster/errors"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleUser   Role = "USER"
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole maps a backend role name to a Role. Unknown names fall back to
// RoleUser, the backend default.
func ParseRole(s string) Role {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleSeller, RoleAdmin:
		return r
	default:
		return RoleUser
	}
}

// BackOffice reports whether r may list seller orders and move order status.
func (r Role) BackOffice() bool {
	return r == RoleSeller || r == RoleAdmin
}

var (
	// ErrNotAuthenticated is returned when an operation needs an active
	// session and none is present. Nothing is mutated when it is returned.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials is returned by Authenticator implementations
	// when the backend refuses the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is the authenticated principal.
type Session struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// Active reports whether s identifies a principal. A nil Session is
// inactive.
func (s *Session) Active() bool {
	return s != nil && s.ID != ""
}

// Require returns ErrNotAuthenticated unless s is active.
func Require(s *Session) error {
	if !s.Active() {
		return ErrNotAuthenticated
	}
	return nil
}

// OwnerID returns the session id, or "" for an inactive session.
func OwnerID(s *Session) string {
	if !s.Active() {
		return ""
	}
	return s.ID
}
