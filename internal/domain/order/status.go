package order

import (
	"fmt"
	"strings"
)

// Status is the server-reported state of an order.
type Status string

const (
	StatusPreparing Status = "PREPARING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// steps is the linear path of a successful order.
var steps = []Status{
	StatusPreparing,
	StatusConfirmed,
	StatusShipped,
	StatusInTransit,
	StatusDelivered,
}

// legacyNames are the status names the commerce backend stores.
var legacyNames = map[Status]string{
	StatusPreparing: "HAZIRLANIYOR",
	StatusConfirmed: "ONAYLANDI",
	StatusShipped:   "KARGOYA_VERILDI",
	StatusInTransit: "KARGODA",
	StatusDelivered: "TESLIM_EDILDI",
	StatusCancelled: "IPTAL_EDILDI",
}

// ParseStatus accepts both status names and the backend's legacy names.
// An empty status is the implicit initial state.
func ParseStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StatusPreparing
	}
	for st, legacy := range legacyNames {
		if s == legacy || s == string(st) {
			return st
		}
	}
	return Status(s)
}

// LegacyName is the backend name for s, or s itself when it has none.
func (s Status) LegacyName() string {
	if name, ok := legacyNames[s]; ok {
		return name
	}
	return string(s)
}

// Known reports whether s is one of the defined statuses.
func (s Status) Known() bool {
	_, ok := legacyNames[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Ordinal is the position of s on the delivery path, or -1 for cancelled
// and unknown statuses.
func (s Status) Ordinal() int {
	for i, st := range steps {
		if st == s {
			return i
		}
	}
	return -1
}

// Progress maps the ordinal linearly onto 0..100. Cancelled orders are at 0
// whatever progress they had before.
func (s Status) Progress() int {
	i := s.Ordinal()
	if i < 0 {
		return 0
	}
	return (i + 1) * 100 / len(steps)
}

// CanTransition reports whether s may move to next: one step forward on
// the delivery path, or cancellation before delivery.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() || !s.Known() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	i := s.Ordinal()
	return i >= 0 && i+1 < len(steps) && steps[i+1] == next
}

// TransitionError is returned when a status change leaves the state
// machine.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
