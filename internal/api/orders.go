package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/checkout"
	"github.com/xenking/kart-storefront/internal/domain/order"
)

// orderView adds the display progress to an order.
type orderView struct {
	order.Order
	Progress int `json:"progress"`
}

func viewOrder(o order.Order) orderView {
	if o.Lines == nil {
		o.Lines = []order.Line{}
	}
	return orderView{Order: o, Progress: o.Progress()}
}

func viewOrders(orders []order.Order) []orderView {
	out := make([]orderView, len(orders))
	for i, o := range orders {
		out[i] = viewOrder(o)
	}
	return out
}

type historyView struct {
	Orders []orderView `json:"orders"`
	Loaded bool        `json:"loaded"`
}

type receiptView struct {
	Order       *orderView `json:"order"`
	CartCleared bool       `json:"cartCleared"`
}

func viewReceipt(rc checkout.Receipt) receiptView {
	v := receiptView{CartCleared: rc.CartCleared}
	if rc.Order != nil {
		o := viewOrder(*rc.Order)
		v.Order = &o
	}
	return v
}

type statusRequest struct {
	Status string `json:"status"`
}

// getOrders reloads the history so status changes made on the server show.
func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	sess, b, loaded, ok := s.freshBundle(w, r)
	if !ok {
		return
	}
	if !loaded {
		b.Orders.Load(r.Context(), sess)
	}
	h := b.Orders.Snapshot()
	writeJSON(w, http.StatusOK, historyView{Orders: viewOrders(h.Orders), Loaded: h.Loaded})
}

// checkout answers 201 when an order was placed and 200 with an empty
// receipt when placement failed and was reported as a notice.
func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	rc, err := b.Checkout.Purchase(r.Context(), sess)
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusOK
	if rc.Order != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, viewReceipt(rc))
}

func (s *Server) removeOrder(w http.ResponseWriter, r *http.Request) {
	sess, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if err := b.Orders.RemoveOrder(r.Context(), sess, chi.URLParam(r, "orderID")); err != nil {
		fail(w, r, err)
		return
	}
	h := b.Orders.Snapshot()
	writeJSON(w, http.StatusOK, historyView{Orders: viewOrders(h.Orders), Loaded: h.Loaded})
}

func (s *Server) sellerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.Desk.Orders(r.Context(), principalFrom(r.Context()).sess)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOrders(orders))
}

func (s *Server) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	next := order.ParseStatus(req.Status)
	if req.Status == "" || !next.Known() {
		fail(w, r, invalid("unknown order status"))
		return
	}
	o, err := s.Desk.Advance(r.Context(), principalFrom(r.Context()).sess, chi.URLParam(r, "orderID"), next)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOrder(*o))
}
