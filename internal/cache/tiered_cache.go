package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
)

const tieredBancosKey = "tiered:bancos"

type tieredEntry struct {
	version int64
	bancos  []*models.Banco
}

// TieredCache serves the account list from a local cache in front of Redis.
// Local entries are tagged with the Redis version they were read under and
// are only served while that version is current, so an invalidation on any
// instance is seen by every instance at once.
type TieredCache struct {
	local  *LocalCache
	remote *RedisCache
	logger *logrus.Logger
}

// NewTieredCache combines a local and a Redis cache
func NewTieredCache(local *LocalCache, remote *RedisCache, logger *logrus.Logger) *TieredCache {
	return &TieredCache{local: local, remote: remote, logger: logger}
}

// GetBancos checks the Redis version, serves the local entry when it matches
// and otherwise reads Redis, filling the local cache on a hit.
func (t *TieredCache) GetBancos(ctx context.Context) ([]*models.Banco, bool, error) {
	version, err := t.remote.BancosVersion(ctx)
	if err != nil {
		return nil, false, err
	}
	if value, ok := t.local.get(tieredBancosKey); ok {
		if entry := value.(tieredEntry); entry.version == version {
			return copyBancos(entry.bancos), true, nil
		}
	}

	bancos, version, found, err := t.remote.versionedBancos(ctx)
	if err != nil || !found {
		return nil, false, err
	}

	t.storeLocal(version, bancos)
	return bancos, true, nil
}

// BancosVersion returns the Redis version
func (t *TieredCache) BancosVersion(ctx context.Context) (int64, error) {
	return t.remote.BancosVersion(ctx)
}

// SetBancos writes Redis and, when Redis accepted the list, the local cache
func (t *TieredCache) SetBancos(ctx context.Context, version int64, bancos []*models.Banco) error {
	stored, err := t.remote.setBancos(ctx, version, bancos)
	if err != nil || !stored {
		return err
	}
	t.storeLocal(version, bancos)
	return nil
}

// InvalidateBancos clears both levels
func (t *TieredCache) InvalidateBancos(ctx context.Context) error {
	t.local.cache.Delete(tieredBancosKey)
	if err := t.remote.InvalidateBancos(ctx); err != nil {
		t.logger.WithError(err).Warn("Failed to invalidate remote bancos cache")
		return err
	}
	return nil
}

func (t *TieredCache) storeLocal(version int64, bancos []*models.Banco) {
	t.local.cache.Set(tieredBancosKey, tieredEntry{version: version, bancos: copyBancos(bancos)}, t.local.ttl)
}
