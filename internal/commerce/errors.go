package commerce

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrRemoteUnavailable covers transport failures, timeouts and server
	// errors. Retrying later may succeed.
	ErrRemoteUnavailable = errors.New("commerce api unavailable")
	// ErrRejected is a 4xx answer other than 408 and 429.
	ErrRejected = errors.New("commerce api rejected request")
	// ErrInvalidResponse is returned when a response does not have the
	// expected shape.
	ErrInvalidResponse = errors.New("invalid commerce api response")
)

// Error describes a failed commerce API operation. It matches its Kind
// with errors.Is.
type Error struct {
	Op         string
	StatusCode int
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("commerce %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func kindOfStatus(code int) error {
	switch {
	case code >= 500, code == 408, code == 429:
		return ErrRemoteUnavailable
	default:
		return ErrRejected
	}
}

func kindName(err error) string {
	switch {
	case errors.Is(err, ErrRemoteUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "other"
	}
}
