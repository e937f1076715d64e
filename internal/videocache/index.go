package videocache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry records one mirrored asset, keyed by its remote path.
type Entry struct {
	FileName string    `json:"file_name"`
	Size     int64     `json:"size"`
	CachedAt time.Time `json:"cached_at"`
}

// index tracks which assets are already mirrored: L1 in-memory + optional
// L2 Redis. L1 is fast but lost on restart; L2 lets a restarted process
// skip re-downloading assets that are still on disk.
type index struct {
	l1         sync.Map      // key → *indexEntry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

type indexEntry struct {
	data      []byte
	expiresAt time.Time
}

// newIndex sets up the asset index. redisURL can be empty to disable L2.
func newIndex(redisURL string, ttl time.Duration, maxEntries int) *index {
	ix := &index{ttl: ttl, maxEntries: maxEntries}

	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Warn("videocache: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("videocache: redis unreachable, L2 disabled", slog.Any("error", err))
			} else {
				ix.rdb = rdb
				slog.Info("videocache: L2 redis connected", slog.String("addr", opts.Addr))
			}
		}
	}

	return ix
}

// indexKey builds a deterministic key from the remote asset path.
func indexKey(remotePath string) string {
	hash := sha256.Sum256([]byte(remotePath))
	return fmt.Sprintf("vc:%x", hash[:12])
}

// Get tries L1, then L2. On L2 hit, populates L1.
func (ix *index) Get(ctx context.Context, remotePath string) (Entry, bool) {
	key := indexKey(remotePath)

	if val, ok := ix.l1.Load(key); ok {
		entry := val.(*indexEntry)
		if time.Now().Before(entry.expiresAt) {
			var e Entry
			if json.Unmarshal(entry.data, &e) == nil {
				ix.hits.Add(1)
				return e, true
			}
		}
		ix.l1.Delete(key) // expired or corrupt
	}

	if ix.rdb != nil {
		data, err := ix.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				slog.Debug("videocache: L2 index hit", slog.String("path", remotePath))
				ix.hits.Add(1)
				ix.l1.Store(key, &indexEntry{data: data, expiresAt: time.Now().Add(ix.ttl)})
				return e, true
			}
		}
	}

	ix.misses.Add(1)
	return Entry{}, false
}

// Set stores the entry in both L1 and L2.
func (ix *index) Set(ctx context.Context, remotePath string, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}

	ix.evictIfNeeded()

	key := indexKey(remotePath)
	ix.l1.Store(key, &indexEntry{data: data, expiresAt: time.Now().Add(ix.ttl)})

	if ix.rdb != nil {
		if err := ix.rdb.Set(ctx, key, data, ix.ttl).Err(); err != nil {
			slog.Debug("videocache: L2 index set failed", slog.Any("error", err))
		}
	}
}

// Delete drops the entry from both tiers, e.g. when the file on disk is gone.
func (ix *index) Delete(ctx context.Context, remotePath string) {
	key := indexKey(remotePath)
	ix.l1.Delete(key)
	if ix.rdb != nil {
		ix.rdb.Del(ctx, key)
	}
}

// Stats returns current index hit/miss counters.
func (ix *index) Stats() (hits, misses int64) {
	return ix.hits.Load(), ix.misses.Load()
}

// evictIfNeeded removes entries when L1 exceeds maxEntries: expired entries
// first, then the earliest-expiring ones until under the limit.
func (ix *index) evictIfNeeded() {
	if ix.maxEntries <= 0 {
		return
	}

	count := 0
	ix.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < ix.maxEntries {
		return
	}

	now := time.Now()
	ix.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*indexEntry); ok && now.After(entry.expiresAt) {
			ix.l1.Delete(key)
			count--
		}
		return count >= ix.maxEntries
	})
	if count < ix.maxEntries {
		return
	}

	for count >= ix.maxEntries {
		var oldestKey any
		oldestAt := now.Add(ix.ttl + time.Hour)
		ix.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*indexEntry); ok && entry.expiresAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			return
		}
		ix.l1.Delete(oldestKey)
		count--
	}
}
