// Package cache is a best-effort read-through cache in front of the
// recent-messages read path. It is latency-only: a cache miss, error,
// or disabled cache always falls through to storage, since messages
// live durably in the database and the cache holds no authoritative
// state (see SPEC_FULL.md's design notes on why this layer can never
// be load-bearing).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rmrecorder/recentmessages/internal/storage"
)

const (
	defaultTTL      = 30 * time.Second
	maxTTLBoost     = 5 * time.Minute
	lockTTL         = 3 * time.Second
	stampedeFactor  = 0.8
	hotKeyThreshold = 50
)

// ErrCacheMiss indicates no usable cached value was found.
var ErrCacheMiss = fmt.Errorf("cache miss")

// Manager fronts storage's GetMessages with a Redis cache, with
// stampede protection (probabilistic early expiration plus a
// distributed lock) and a TTL boost for frequently requested channels.
type Manager struct {
	client *redis.Client
	log    *logrus.Logger

	hotKeysMu sync.RWMutex
	hotKeys   map[string]*hotKeyStats
}

type hotKeyStats struct {
	count      int64
	lastAccess time.Time
	ttlBoost   time.Duration
}

// New constructs a Manager. A nil client is valid and makes every
// operation a pass-through miss, so callers can wire this
// unconditionally and let config.Redis.Enabled decide whether a real
// client gets passed in.
func New(client *redis.Client, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{client: client, log: log, hotKeys: make(map[string]*hotKeyStats)}
	if client != nil {
		go m.cleanupHotKeys()
	}
	return m
}

func cacheKey(channelLogin string, window storage.MessageWindow, limit int) string {
	return fmt.Sprintf("recent-messages:%s:%d:%d:%d", channelLogin, window.Before.UnixMilli(), window.After.UnixMilli(), limit)
}

// GetMessages returns a cached slice of messages for (channelLogin,
// window, limit), or ErrCacheMiss if nothing usable was cached. Bounded
// queries (before/after set) are cached just like unbounded ones: the
// key folds in the window so distinct windows never collide.
func (m *Manager) GetMessages(ctx context.Context, channelLogin string, window storage.MessageWindow, limit int) ([]storage.Message, error) {
	if m.client == nil {
		return nil, ErrCacheMiss
	}

	key := cacheKey(channelLogin, window, limit)
	m.trackHotKey(key)

	val, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		m.log.WithError(err).Debug("cache: get failed, falling through to storage")
		return nil, ErrCacheMiss
	}

	if ttl, err := m.client.TTL(ctx, key).Result(); err == nil && m.shouldRefreshEarly(ttl) {
		return nil, ErrCacheMiss
	}

	var msgs []storage.Message
	if err := json.Unmarshal([]byte(val), &msgs); err != nil {
		return nil, ErrCacheMiss
	}
	return msgs, nil
}

// SetMessages caches a result, boosting TTL for hot channels. Failures
// are logged and swallowed: caching is never allowed to fail a request.
func (m *Manager) SetMessages(ctx context.Context, channelLogin string, window storage.MessageWindow, limit int, msgs []storage.Message) {
	if m.client == nil {
		return
	}

	data, err := json.Marshal(msgs)
	if err != nil {
		return
	}

	key := cacheKey(channelLogin, window, limit)
	ttl := m.calculateTTL(key)
	if err := m.client.Set(ctx, key, data, ttl).Err(); err != nil {
		m.log.WithError(err).Debug("cache: set failed")
	}
}

// Invalidate drops every cached entry for channelLogin (all limit
// variants), called after a purge so stale content can't resurface.
func (m *Manager) Invalidate(ctx context.Context, channelLogin string) {
	if m.client == nil {
		return
	}

	pattern := fmt.Sprintf("recent-messages:%s:*", channelLogin)
	iter := m.client.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if len(batch) > 0 {
		if err := m.client.Del(ctx, batch...).Err(); err != nil {
			m.log.WithError(err).Debug("cache: invalidate failed")
		}
	}
}

// GetOrLoad returns the cached result for (channelLogin, window, limit)
// if present; otherwise it calls load under WithLock so a burst of
// concurrent misses on the same key collapses into a single load, and
// caches a successful result before returning it.
func (m *Manager) GetOrLoad(ctx context.Context, channelLogin string, window storage.MessageWindow, limit int, load func(ctx context.Context) ([]storage.Message, error)) ([]storage.Message, error) {
	if cached, err := m.GetMessages(ctx, channelLogin, window, limit); err == nil {
		return cached, nil
	}

	key := cacheKey(channelLogin, window, limit)
	var msgs []storage.Message
	var loadErr error
	m.WithLock(ctx, key, func() {
		if cached, err := m.GetMessages(ctx, channelLogin, window, limit); err == nil {
			msgs = cached
			return
		}
		msgs, loadErr = load(ctx)
		if loadErr == nil {
			m.SetMessages(ctx, channelLogin, window, limit, msgs)
		}
	})
	return msgs, loadErr
}

// WithLock acquires a short-lived distributed lock for key and runs fn
// while holding it, to collapse a cache-miss stampede on a hot channel
// down to one loader call. If the lock can't be acquired, fn still
// runs: correctness never depends on the lock, only latency does.
func (m *Manager) WithLock(ctx context.Context, key string, fn func()) {
	if m.client == nil {
		fn()
		return
	}

	lockKey := "lock:" + key
	locked, err := m.client.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil || !locked {
		fn()
		return
	}
	defer m.client.Del(ctx, lockKey)
	fn()
}

func (m *Manager) trackHotKey(key string) {
	m.hotKeysMu.Lock()
	defer m.hotKeysMu.Unlock()

	stats, ok := m.hotKeys[key]
	if !ok {
		stats = &hotKeyStats{}
		m.hotKeys[key] = stats
	}
	stats.count++
	stats.lastAccess = time.Now()
	if stats.count > hotKeyThreshold {
		boost := time.Duration(float64(stats.count-hotKeyThreshold)) * time.Second
		if boost > maxTTLBoost {
			boost = maxTTLBoost
		}
		stats.ttlBoost = boost
	}
}

func (m *Manager) calculateTTL(key string) time.Duration {
	m.hotKeysMu.RLock()
	defer m.hotKeysMu.RUnlock()
	if stats, ok := m.hotKeys[key]; ok && stats.ttlBoost > 0 {
		return defaultTTL + stats.ttlBoost
	}
	return defaultTTL
}

func (m *Manager) shouldRefreshEarly(ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	remainingRatio := float64(ttl) / float64(defaultTTL)
	if remainingRatio > stampedeFactor {
		return false
	}
	probability := math.Pow(1-remainingRatio/stampedeFactor, 3)
	return rand.Float64() < probability
}

func (m *Manager) cleanupHotKeys() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.hotKeysMu.Lock()
		now := time.Now()
		for key, stats := range m.hotKeys {
			if now.Sub(stats.lastAccess) > time.Hour {
				delete(m.hotKeys, key)
			} else if now.Sub(stats.lastAccess) > 10*time.Minute {
				stats.count /= 2
			}
		}
		m.hotKeysMu.Unlock()
	}
}
