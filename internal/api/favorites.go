package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/favorite"
)

func viewFavorites(st favorite.State) favorite.State {
	if st.Entries == nil {
		st.Entries = []favorite.Entry{}
	}
	return st
}

func (s *Server) getFavorites(w http.ResponseWriter, r *http.Request) {
	sess, b, loaded, ok := s.freshBundle(w, r)
	if !ok {
		return
	}
	if !loaded {
		b.Favorites.Load(r.Context(), sess)
	}
	writeJSON(w, http.StatusOK, viewFavorites(b.Favorites.Snapshot()))
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	p, err := s.Catalog.Product(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := b.Favorites.AddToFavorites(r.Context(), sess, *p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFavorites(b.Favorites.Snapshot()))
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Favorites.RemoveFromFavorites(r.Context(), sess, chi.URLParam(r, "productID")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFavorites(b.Favorites.Snapshot()))
}
