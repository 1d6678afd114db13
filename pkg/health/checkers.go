package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run, which
// points at a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is anything that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts p to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}
