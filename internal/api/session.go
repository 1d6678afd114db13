package api

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Session   *session.Session `json:"session"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		fail(w, r, session.ErrInvalidCredentials)
		return
	}
	sess, err := s.Auth.Login(r.Context(), session.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.signIn(w, r, sess, http.StatusOK)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		fail(w, r, invalid("name, email and password are required"))
		return
	}
	sess, err := s.Auth.Register(r.Context(), session.Registration{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.signIn(w, r, sess, http.StatusCreated)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request, sess *session.Session, status int) {
	if !sess.Active() {
		fail(w, r, session.ErrInvalidCredentials)
		return
	}
	token, exp, err := s.Tokens.Issue(sess)
	if err != nil {
		fail(w, r, err)
		return
	}
	// A new sign-in starts from the server state, not from whatever an
	// earlier session left in memory.
	if _, err := s.Registry.Reload(r.Context(), sess); err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Signed in", zap.String("user_id", sess.ID), zap.String("role", string(sess.Role)))
	writeJSON(w, status, tokenResponse{Token: token, ExpiresAt: exp, Session: sess})
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFrom(r.Context()).sess)
}

// logout revokes the token and drops the in-memory state. Persisted state
// stays for the next sign-in.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := s.Tokens.Revoke(r.Context(), p.claims); err != nil {
		fail(w, r, err)
		return
	}
	s.Registry.Drop(p.sess.ID)
	w.WriteHeader(http.StatusNoContent)
}
