package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/notice"
)

func (s *Server) getNotices(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	notices := b.Notices.List()
	if notices == nil {
		notices = []notice.Notice{}
	}
	writeJSON(w, http.StatusOK, notices)
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	_, b, ok := s.bundle(w, r)
	if !ok {
		return
	}
	if !b.Notices.Dismiss(chi.URLParam(r, "noticeID")) {
		writeJSON(w, http.StatusNotFound, Error{Code: http.StatusNotFound, Message: "notice not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
