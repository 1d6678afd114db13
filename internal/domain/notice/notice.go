// Package notice carries transient, dismissible notifications about remote
// failures that the state managers absorbed instead of returning.
package notice

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Level is the severity of a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Notice is a single notification shown to the user until dismissed.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

type discard struct{}

func (discard) Notify(Notice) {}

// Discard drops every notice.
var Discard Notifier = discard{}

// Absorb logs err and publishes a warning notice for op. It is the single
// place where managers turn a remote failure into user-visible feedback.
func Absorb(ctx context.Context, n Notifier, op, message string, err error) {
	zctx.From(ctx).Warn(message, zap.String("op", op), zap.Error(err))
	if n == nil {
		return
	}
	n.Notify(Notice{Level: LevelWarning, Op: op, Message: message})
}

// DefaultLimit bounds the number of notices a Feed retains.
const DefaultLimit = 32

// Feed is a bounded in-memory queue of notices. The oldest notice is
// dropped once the limit is reached.
type Feed struct {
	mu    sync.Mutex
	items []Notice
	limit int
	now   func() time.Time
}

// NewFeed returns a Feed keeping at most limit notices. A non-positive
// limit selects DefaultLimit.
func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Feed{limit: limit, now: time.Now}
}

// Notify appends n, assigning an id and timestamp when missing.
func (f *Feed) Notify(n Notice) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n.At.IsZero() {
		n.At = f.now()
	}
	if len(f.items) == f.limit {
		f.items = append(f.items[:0], f.items[1:]...)
	}
	f.items = append(f.items, n)
}

// List returns pending notices, oldest first.
func (f *Feed) List() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notice(nil), f.items...)
}

// Dismiss removes the notice with the given id and reports whether it
// existed.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, n := range f.items {
		if n.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}
