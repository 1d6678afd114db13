// Package api exposes the storefront state managers over JSON HTTP for a
// browser or terminal presentation layer.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
	"github.com/xenking/kart-storefront/internal/storefront"
	"github.com/xenking/kart-storefront/pkg/httpmiddleware"
)

// Desk is the back-office order surface.
type Desk interface {
	Orders(ctx context.Context, sess *session.Session) ([]order.Order, error)
	Advance(ctx context.Context, sess *session.Session, orderID string, next order.Status) (*order.Order, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Auth     session.Authenticator
	Catalog  product.Catalog
	Desk     Desk
	Registry *storefront.Registry
	Tokens   *Tokens
	// Limiter guards the credential endpoints. Nil disables limiting.
	Limiter *httpmiddleware.Limiter
}

// Server serves the storefront API.
type Server struct {
	Deps
}

// New returns a Server.
func New(d Deps) *Server {
	return &Server{Deps: d}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.Limiter != nil {
				r.Use(s.Limiter.Middleware(nil))
			}
			r.Post("/session", s.login)
			r.Post("/users", s.register)
		})

		r.Get("/products", s.listProducts)
		r.Get("/products/{id}", s.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/session", s.currentSession)
			r.Delete("/session", s.logout)

			r.Get("/cart", s.getCart)
			r.Delete("/cart", s.clearCart)
			r.Post("/cart/items", s.addCartItem)
			r.Patch("/cart/items/{productID}", s.changeQuantity)
			r.Delete("/cart/items/{productID}", s.removeCartItem)

			r.Get("/favorites", s.getFavorites)
			r.Put("/favorites/{productID}", s.addFavorite)
			r.Delete("/favorites/{productID}", s.removeFavorite)

			r.Get("/orders", s.getOrders)
			r.Post("/orders", s.checkout)
			r.Delete("/orders/{orderID}", s.removeOrder)

			r.Get("/seller/orders", s.sellerOrders)
			r.Put("/seller/orders/{orderID}/status", s.advanceOrder)

			r.Get("/notices", s.getNotices)
			r.Delete("/notices/{noticeID}", s.dismissNotice)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Error{Code: http.StatusNotFound, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Error{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	return r
}

type principalKey struct{}

type principal struct {
	claims *Claims
	sess   *session.Session
}

// authenticate resolves the bearer token into a session.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			fail(w, r, session.ErrNotAuthenticated)
			return
		}
		claims, err := s.Tokens.Parse(r.Context(), raw)
		if err != nil {
			fail(w, r, err)
			return
		}
		p := principal{claims: claims, sess: claims.Session()}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p
}

// bundle returns the session and its state bundle, or writes the error.
func (s *Server) bundle(w http.ResponseWriter, r *http.Request) (*session.Session, *storefront.Bundle, bool) {
	sess := principalFrom(r.Context()).sess
	b, err := s.Registry.For(r.Context(), sess)
	if err != nil {
		fail(w, r, err)
		return nil, nil, false
	}
	return sess, b, true
}

// freshBundle is bundle that also reports whether the bundle was loaded by
// this request.
func (s *Server) freshBundle(w http.ResponseWriter, r *http.Request) (*session.Session, *storefront.Bundle, bool, bool) {
	sess := principalFrom(r.Context()).sess
	b, loaded, err := s.Registry.Acquire(r.Context(), sess)
	if err != nil {
		fail(w, r, err)
		return nil, nil, false, false
	}
	return sess, b, loaded, true
}
