package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
)

type cartView struct {
	Lines   []cart.Line     `json:"lines"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
	Loading bool            `json:"loading"`
}

func viewCart(st cart.State) cartView {
	v := cartView{Lines: st.Lines, Total: st.Total(), Loading: st.Loading}
	if v.Lines == nil {
		v.Lines = []cart.Line{}
	}
	for _, l := range st.Lines {
		v.Count += l.Quantity
	}
	return v
}

type addItemRequest struct {
	ProductID string `json:"productId"`
}

type quantityRequest struct {
	Delta int `json:"delta"`
}

// maxDelta bounds a single quantity change.
const maxDelta = 1000

// getCart reloads the cart so server-side changes and earlier load failures
// do not outlive a read.
func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	sess, b, loaded, ok := s.freshBundle(w, r)
	if !ok {
		return
	}
	if !loaded {
		b.Cart.Load(r.Context(), sess)
	}
	writeJSON(w, http.StatusOK, viewCart(b.Cart.Snapshot()))
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.ProductID == "" {
		fail(w, r, invalid("productId is required"))
		return
	}
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	p, err := s.Catalog.Product(r.Context(), req.ProductID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := b.Cart.AddToCart(r.Context(), sess, *p); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewCart(b.Cart.Snapshot()))
}

func (s *Server) changeQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Delta > maxDelta || req.Delta < -maxDelta {
		fail(w, r, invalid("delta is out of range"))
		return
	}
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Cart.ChangeQuantity(r.Context(), sess, chi.URLParam(r, "productID"), req.Delta); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewCart(b.Cart.Snapshot()))
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Cart.RemoveFromCart(r.Context(), sess, chi.URLParam(r, "productID")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewCart(b.Cart.Snapshot()))
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Cart.ClearCart(r.Context(), sess); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewCart(b.Cart.Snapshot()))
}
