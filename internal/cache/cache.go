// Package cache holds in-process caches for lookups the scheduler repeats
// on every generation pass.
package cache

import (
	"context"
	"log/slog"
	"time"

	"sxledger/internal/core"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// RunCleanup drops expired entries from every cache each interval until
// ctx is done.
func RunCleanup(ctx context.Context, interval time.Duration, caches ...Cleaner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := 0
			for _, c := range caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				slog.DebugContext(ctx, "Cache cleanup", "removed", cleaned)
			}
		case <-ctx.Done():
			return
		}
	}
}

// AccountSource is the lookup the account cache decorates.
type AccountSource interface {
	Account(ctx context.Context, id string) (core.Account, error)
}

// AccountCache memoizes successful account lookups. Failures are never
// cached so a freshly created account is seen on the next call.
type AccountCache struct {
	next  AccountSource
	cache Cache[core.Account]
}

func NewAccountCache(next AccountSource, size int, ttl time.Duration) (*AccountCache, *LRUCache[core.Account]) {
	lru := NewLRUCache[core.Account](size, ttl)
	return &AccountCache{next: next, cache: lru}, lru
}

func (a *AccountCache) Account(ctx context.Context, id string) (core.Account, error) {
	if acct, ok := a.cache.Get(id); ok {
		return acct, nil
	}
	acct, err := a.next.Account(ctx, id)
	if err != nil {
		return core.Account{}, err
	}
	a.cache.Set(id, acct)
	return acct, nil
}

// Invalidate forgets one account, typically after it was saved.
func (a *AccountCache) Invalidate(id string) {
	a.cache.Delete(id)
}
