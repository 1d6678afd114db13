// Package health serves liveness and readiness probes.
//
// Checks run in the background on a fixed interval. A check turns unhealthy
// after FailureThreshold consecutive failures and healthy again after one
// success, so a single slow answer does not flap the probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// FailureThreshold is the number of consecutive failures that mark a check
// unhealthy.
const FailureThreshold = 3

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[string]
	// fails is only touched by the goroutine running the check.
	fails int
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.fn(ctx); err != nil {
		msg := err.Error()
		c.lastErr.Store(&msg)
		c.fails++
		if c.fails >= FailureThreshold && c.healthy.Swap(false) {
			zctx.From(ctx).Warn("Health check failing", zap.String("check", c.name), zap.Error(err))
		}
		return
	}
	c.fails = 0
	c.lastErr.Store(nil)
	if !c.healthy.Swap(true) {
		zctx.From(ctx).Info("Health check recovered", zap.String("check", c.name))
	}
}

// Health holds the registered checks and the manual readiness switch.
// Register checks before Start.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	checks []*check
	stop   context.CancelFunc
}

// New returns a Health that is not ready yet.
func New() *Health {
	return &Health{}
}

// Add registers a check. It is healthy until it fails.
func (h *Health) Add(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	c := &check{name: name, kind: kind, timeout: timeout, fn: fn}
	c.healthy.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, c)
}

// Start runs every check now and then every interval until Stop or ctx is
// done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.stop = cancel
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	for _, c := range checks {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				c.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop ends the background checks. It may be called more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

// SetReady flips the manual readiness switch, e.g. off during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// failures lists unhealthy checks of kind with their last error.
func (h *Health) failures(kind Kind) map[string]string {
	h.mu.Lock()
	checks := append([]*check(nil), h.checks...)
	h.mu.Unlock()

	out := make(map[string]string)
	for _, c := range checks {
		if c.kind != kind || c.healthy.Load() {
			continue
		}
		out[c.name] = "unhealthy"
		if msg := c.lastErr.Load(); msg != nil {
			out[c.name] = *msg
		}
	}
	return out
}

// IsReady reports whether the switch is on and all readiness checks pass.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	write(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	write(w, failures)
}

func write(w http.ResponseWriter, failures map[string]string) {
	resp, code := status{Status: "ok"}, http.StatusOK
	if len(failures) > 0 {
		resp, code = status{Status: "unhealthy", Checks: failures}, http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
