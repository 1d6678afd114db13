package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(*http.Request) string

// window is a pair of adjacent fixed windows; the previous one is weighted by
// its overlap with the sliding window ending now.
type window struct {
	start time.Time
	prev  float64
	curr  float64
}

// Limiter is a sliding-window request limiter shared by every route it guards.
type Limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter allows limit requests per period and key.
func NewLimiter(limit int, period time.Duration) *Limiter {
	return &Limiter{
		max:     limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// take counts one request for key and reports the remaining budget and the
// end of the current window.
func (l *Limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found {
		w = &window{start: now.Truncate(l.period)}
		l.windows[key] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= l.period {
		if elapsed >= 2*l.period {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.start = now.Truncate(l.period)
	}

	overlap := 1 - float64(now.Sub(w.start))/float64(l.period)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.period)
	if used >= float64(l.max) {
		return 0, reset, false
	}
	w.curr++
	return max(int(float64(l.max)-used-1), 0), reset, true
}

// Sweep forgets keys that have been idle for two full periods.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.windows {
		if now.Sub(w.start) >= 2*l.period {
			delete(l.windows, k)
		}
	}
}

// Run sweeps periodically until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Sweep(now)
		}
	}
}

// Middleware enforces the limit with key, or the client address when key is
// nil. Every response carries X-RateLimit-* headers; a rejected request gets
// 429 with Retry-After.
func (l *Limiter) Middleware(key KeyFunc) Middleware {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := l.now()
			remaining, reset, ok := l.take(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := math.Ceil(max(reset.Sub(now), 0).Seconds())
				h.Set("Retry-After", strconv.Itoa(int(wait)))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
