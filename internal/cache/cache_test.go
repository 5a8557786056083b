package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rmrecorder/recentmessages/internal/storage"
)

func TestNilClientAlwaysMisses(t *testing.T) {
	m := New(nil, nil)
	_, err := m.GetMessages(context.Background(), "dallas", storage.MessageWindow{}, 10)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// SetMessages and Invalidate must be no-ops, not panics.
	m.SetMessages(context.Background(), "dallas", storage.MessageWindow{}, 10, []storage.Message{{ChannelLogin: "dallas"}})
	m.Invalidate(context.Background(), "dallas")
}

func TestWithLockRunsFnWithoutClient(t *testing.T) {
	m := New(nil, nil)
	ran := false
	m.WithLock(context.Background(), "k", func() { ran = true })
	assert.True(t, ran)
}

func TestGetOrLoadCallsLoadOnMissWithoutClient(t *testing.T) {
	m := New(nil, nil)
	calls := 0
	load := func(ctx context.Context) ([]storage.Message, error) {
		calls++
		return []storage.Message{{ChannelLogin: "dallas", RawLine: "x"}}, nil
	}

	msgs, err := m.GetOrLoad(context.Background(), "dallas", storage.MessageWindow{}, 10, load)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1, calls)
}

func TestCacheKeyIsPerChannelLimitAndWindow(t *testing.T) {
	w := storage.MessageWindow{}
	assert.Equal(t, cacheKey("dallas", w, 10), cacheKey("dallas", w, 10))
	assert.NotEqual(t, cacheKey("dallas", w, 10), cacheKey("dallas", w, 20))
	assert.NotEqual(t, cacheKey("dallas", w, 10), cacheKey("dallas", storage.MessageWindow{Before: mustTime(1000)}, 10))
}

func mustTime(ms int64) (t time.Time) {
	return time.UnixMilli(ms)
}
