package cache

import (
	"context"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v2"

	"chronos-api/internal/models"
)

// LocalCache is an in-process cache for single instance deployments and the
// first level of a TieredCache.
type LocalCache struct {
	cache *ccache.Cache
	ttl   time.Duration

	// guards the check-and-set of Acquire and of SetBancos
	mu      sync.Mutex
	version int64
}

// NewLocalCache creates a cache holding at most maxSize entries
func NewLocalCache(maxSize int64, ttl time.Duration) *LocalCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LocalCache{
		cache: ccache.New(ccache.Configure().
			MaxSize(maxSize).
			ItemsToPrune(uint32(maxSize/10 + 1)).
			DeleteBuffer(256).
			PromoteBuffer(256).
			GetsPerPromote(3)),
		ttl: ttl,
	}
}

func (l *LocalCache) get(key string) (interface{}, bool) {
	item := l.cache.Get(key)
	if item == nil || item.Expired() {
		return nil, false
	}
	return item.Value(), true
}

// GetBancos returns a copy of the cached account list
func (l *LocalCache) GetBancos(context.Context) ([]*models.Banco, bool, error) {
	value, ok := l.get(bancosKey)
	if !ok {
		return nil, false, nil
	}
	return copyBancos(value.([]*models.Banco)), true, nil
}

// BancosVersion returns the number of invalidations so far
func (l *LocalCache) BancosVersion(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version, nil
}

// SetBancos caches a copy of the account list unless it was invalidated
// after version was read
func (l *LocalCache) SetBancos(_ context.Context, version int64, bancos []*models.Banco) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if version != l.version {
		return nil
	}
	l.cache.Set(bancosKey, copyBancos(bancos), l.ttl)
	return nil
}

// InvalidateBancos drops the cached account list
func (l *LocalCache) InvalidateBancos(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.version++
	l.cache.Delete(bancosKey)
	return nil
}

// GetRecord returns the idempotency record stored under key
func (l *LocalCache) GetRecord(_ context.Context, key string) (*models.RegistroIdempotencia, bool, error) {
	value, ok := l.get(idempotencyPrefix + key)
	if !ok {
		return nil, false, nil
	}
	return copyRecord(value.(*models.RegistroIdempotencia)), true, nil
}

// SaveRecord stores the idempotency record for key
func (l *LocalCache) SaveRecord(_ context.Context, key string, record *models.RegistroIdempotencia, ttl time.Duration) error {
	l.cache.Set(idempotencyPrefix+key, copyRecord(record), ttl)
	return nil
}

// Acquire marks an idempotency key as in flight
func (l *LocalCache) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.get(lockPrefix + key); held {
		return false, nil
	}
	l.cache.Set(lockPrefix+key, time.Now(), ttl)
	return true, nil
}

// Release clears the in-flight marker of an idempotency key
func (l *LocalCache) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Delete(lockPrefix + key)
	return nil
}

// ItemCount returns the number of cached entries
func (l *LocalCache) ItemCount() int {
	return l.cache.ItemCount()
}

// Stop releases the cache's background worker
func (l *LocalCache) Stop() {
	l.cache.Stop()
}

func copyBancos(bancos []*models.Banco) []*models.Banco {
	if bancos == nil {
		return nil
	}
	out := make([]*models.Banco, len(bancos))
	for i, b := range bancos {
		if b == nil {
			continue
		}
		c := *b
		out[i] = &c
	}
	return out
}

func copyRecord(record *models.RegistroIdempotencia) *models.RegistroIdempotencia {
	if record == nil {
		return nil
	}
	c := *record
	if record.Resultado != nil {
		resultado := *record.Resultado
		c.Resultado = &resultado
	}
	return &c
}
