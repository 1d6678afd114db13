package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/commerce"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/session"
)

const maxBody = 64 << 10

// Error is the body of every error response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps err to a status code. Unexpected errors are logged and hidden.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, Error{Code: status, Message: msg})
}

func classify(err error) (int, string) {
	var (
		bad        *badRequest
		transition *order.TransitionError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.Is(err, session.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, product.ErrNotFound), errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &transition):
		return http.StatusConflict, transition.Error()
	case errors.Is(err, order.ErrEmptyCart):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, commerce.ErrRejected):
		return http.StatusBadRequest, "request rejected by the commerce backend"
	case errors.Is(err, commerce.ErrRemoteUnavailable), errors.Is(err, commerce.ErrInvalidResponse):
		return http.StatusBadGateway, "commerce backend unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	d := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	d.DisallowUnknownFields()
	if err := d.Decode(v); err != nil {
		return invalid("malformed request body")
	}
	return nil
}
