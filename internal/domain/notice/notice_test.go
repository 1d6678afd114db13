package notice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFeed_NotifyAssignsDefaults(t *testing.T) {
	f := NewFeed(0)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return at }

	f.Notify(Notice{Message: "hello"})

	got := f.List()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, LevelInfo, got[0].Level)
	assert.Equal(t, at, got[0].At)
}

func TestFeed_DropsOldest(t *testing.T) {
	f := NewFeed(2)
	f.Notify(Notice{ID: "1"})
	f.Notify(Notice{ID: "2"})
	f.Notify(Notice{ID: "3"})

	got := f.List()
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestFeed_Dismiss(t *testing.T) {
	f := NewFeed(4)
	f.Notify(Notice{ID: "a"})
	f.Notify(Notice{ID: "b"})

	assert.True(t, f.Dismiss("a"))
	assert.False(t, f.Dismiss("a"))

	got := f.List()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestAbsorb(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := zctx.Base(context.Background(), zap.New(core))
	f := NewFeed(4)

	Absorb(ctx, f, "cart.add", "could not add to cart", errors.New("boom"))

	got := f.List()
	require.Len(t, got, 1)
	assert.Equal(t, LevelWarning, got[0].Level)
	assert.Equal(t, "cart.add", got[0].Op)
	assert.Equal(t, "could not add to cart", got[0].Message)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "could not add to cart", entries[0].Message)
	assert.Equal(t, "cart.add", entries[0].ContextMap()["op"])

	assert.NotPanics(t, func() { Absorb(ctx, nil, "op", "msg", errors.New("x")) })
}
