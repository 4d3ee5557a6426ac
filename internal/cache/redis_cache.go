package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"chronos-api/internal/models"
)

// The list and its version share a hash tag so WATCH works on a cluster.
const (
	bancosKey         = "{bancos}:all"
	bancosVersionKey  = "{bancos}:version"
	idempotencyPrefix = "idempotency:"
	lockPrefix        = "lock:idempotency:"
)

// RedisCache keeps the account list and idempotency records in Redis so they
// are shared between instances.
type RedisCache struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
	logger    *logrus.Logger
}

// NewRedisCache wraps an already connected client
func NewRedisCache(client redis.UniversalClient, ttl time.Duration, keyPrefix string, logger *logrus.Logger) *RedisCache {
	return &RedisCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (r *RedisCache) buildKey(key string) string {
	if r.keyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.keyPrefix, key)
	}
	return key
}

// decode unmarshals a cached entry. A corrupt entry behaves like a miss and
// is dropped.
func (r *RedisCache) decode(ctx context.Context, key string, data []byte, dest interface{}) bool {
	if err := json.Unmarshal(data, dest); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		r.client.Del(ctx, r.buildKey(key))
		return false
	}
	return true
}

func (r *RedisCache) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return r.decode(ctx, key, data, dest), nil
}

func (r *RedisCache) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.client.Set(ctx, r.buildKey(key), data, ttl).Err()
}

func parseVersion(cmd *redis.StringCmd) (int64, error) {
	version, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read bancos version: %w", err)
	}
	return version, nil
}

// versionedBancos reads the account list together with the version it was
// stored under
func (r *RedisCache) versionedBancos(ctx context.Context) ([]*models.Banco, int64, bool, error) {
	var versionCmd, listCmd *redis.StringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		versionCmd = pipe.Get(ctx, r.buildKey(bancosVersionKey))
		listCmd = pipe.Get(ctx, r.buildKey(bancosKey))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("failed to get bancos: %w", err)
	}

	version, err := parseVersion(versionCmd)
	if err != nil {
		return nil, 0, false, err
	}

	data, err := listCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get bancos: %w", err)
	}

	var bancos []*models.Banco
	if !r.decode(ctx, bancosKey, data, &bancos) {
		return nil, version, false, nil
	}
	return bancos, version, true, nil
}

// GetBancos returns the cached account list
func (r *RedisCache) GetBancos(ctx context.Context) ([]*models.Banco, bool, error) {
	bancos, _, found, err := r.versionedBancos(ctx)
	return bancos, found, err
}

// BancosVersion returns the number of invalidations so far
func (r *RedisCache) BancosVersion(ctx context.Context) (int64, error) {
	return parseVersion(r.client.Get(ctx, r.buildKey(bancosVersionKey)))
}

// SetBancos caches the account list unless it was invalidated after version
// was read
func (r *RedisCache) SetBancos(ctx context.Context, version int64, bancos []*models.Banco) error {
	_, err := r.setBancos(ctx, version, bancos)
	return err
}

// setBancos writes the list under WATCH of the version key. The boolean
// reports whether the list was stored.
func (r *RedisCache) setBancos(ctx context.Context, version int64, bancos []*models.Banco) (bool, error) {
	data, err := json.Marshal(bancos)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}

	versionKey := r.buildKey(bancosVersionKey)
	stored := false
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := parseVersion(tx.Get(ctx, versionKey))
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.buildKey(bancosKey), data, r.ttl)
			return nil
		})
		stored = err == nil
		return err
	}, versionKey)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cache bancos: %w", err)
	}
	return stored, nil
}

// InvalidateBancos drops the cached account list and moves the version on
func (r *RedisCache) InvalidateBancos(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.buildKey(bancosVersionKey))
		pipe.Del(ctx, r.buildKey(bancosKey))
		return nil
	})
	return err
}

// GetRecord returns the idempotency record stored under key
func (r *RedisCache) GetRecord(ctx context.Context, key string) (*models.RegistroIdempotencia, bool, error) {
	var record models.RegistroIdempotencia
	found, err := r.getJSON(ctx, idempotencyPrefix+key, &record)
	if err != nil || !found {
		return nil, false, err
	}
	return &record, true, nil
}

// SaveRecord stores the idempotency record for key
func (r *RedisCache) SaveRecord(ctx context.Context, key string, record *models.RegistroIdempotencia, ttl time.Duration) error {
	return r.setJSON(ctx, idempotencyPrefix+key, record, ttl)
}

// Acquire marks an idempotency key as in flight with SET NX
func (r *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := r.client.SetNX(ctx, r.buildKey(lockPrefix+key), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return acquired, nil
}

// Release clears the in-flight marker of an idempotency key
func (r *RedisCache) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.buildKey(lockPrefix+key)).Err()
}

// Ping checks Redis connectivity
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
