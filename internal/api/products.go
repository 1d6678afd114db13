package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Catalog.Products(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.Catalog.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
