package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos-api/internal/models"
)

func nullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newTestRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, ttl, "chronos", nullLogger()), mr
}

func bancoIDs(bancos []*models.Banco) []string {
	ids := make([]string, 0, len(bancos))
	for _, b := range bancos {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestRedisCacheBancos(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	version, err := c.BancosVersion(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	bancos := []*models.Banco{
		{ID: "profit", CapitalActual: decimal.RequireFromString("10.50")},
		{ID: "azteca", CapitalActual: decimal.Zero},
	}
	require.NoError(t, c.SetBancos(ctx, version, bancos))
	assert.True(t, mr.Exists("chronos:{bancos}:all"))

	got, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"profit", "azteca"}, bancoIDs(got))
	assert.True(t, got[0].CapitalActual.Equal(decimal.RequireFromString("10.5")))

	require.NoError(t, c.InvalidateBancos(ctx))
	_, ok, err = c.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	version, err = c.BancosVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestRedisCacheSkipsListReadBeforeInvalidation(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	before, err := c.BancosVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateBancos(ctx))

	stored, err := c.setBancos(ctx, before, []*models.Banco{{ID: "profit"}})
	require.NoError(t, err)
	assert.False(t, stored)

	_, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheEntriesExpire(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetBancos(ctx, 0, []*models.Banco{{ID: "profit"}}))
	require.NoError(t, c.SaveRecord(ctx, "k", &models.RegistroIdempotencia{Huella: "h"}, 10*time.Second))

	mr.FastForward(11 * time.Second)
	_, found, err := c.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	_, ok, _ := c.GetBancos(ctx)
	assert.True(t, ok)

	mr.FastForward(time.Minute)
	_, ok, _ = c.GetBancos(ctx)
	assert.False(t, ok)
}

func TestRedisCacheIdempotency(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	_, found, err := c.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	record := &models.RegistroIdempotencia{
		Huella:    "abc",
		Resultado: &models.ResultadoTransferencia{TransferenciaID: "t1", SalidaID: "s", EntradaID: "e"},
	}
	require.NoError(t, c.SaveRecord(ctx, "k", record, time.Minute))

	got, found, err := c.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record, got)
}

func TestRedisCacheAcquireIsExclusive(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := c.Acquire(ctx, "k", 5*time.Second); err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
	assert.True(t, mr.Exists("chronos:lock:idempotency:k"))

	require.NoError(t, c.Release(ctx, "k"))
	ok, err := c.Acquire(ctx, "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(6 * time.Second)
	ok, err = c.Acquire(ctx, "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "an abandoned lock expires")
}

func TestRedisCacheDropsUndecodableEntries(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set("chronos:idempotency:k", "{not json"))
	_, found, err := c.GetRecord(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("chronos:idempotency:k"))

	require.NoError(t, mr.Set("chronos:{bancos}:all", "[{"))
	_, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("chronos:{bancos}:all"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Minute)
	ctx := context.Background()
	mr.Close()

	_, _, err := c.GetRecord(ctx, "k")
	assert.Error(t, err)
	_, err = c.BancosVersion(ctx)
	assert.Error(t, err)
	_, err = c.Acquire(ctx, "k", time.Second)
	assert.Error(t, err)
	assert.Error(t, c.Ping(ctx))
}

func TestTieredCacheServesLocalWhileVersionHolds(t *testing.T) {
	remote, mr := newTestRedisCache(t, time.Minute)
	local := NewLocalCache(10, time.Minute)
	defer local.Stop()
	tiered := NewTieredCache(local, remote, nullLogger())
	ctx := context.Background()

	version, err := tiered.BancosVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, tiered.SetBancos(ctx, version, []*models.Banco{{ID: "profit"}}))

	mr.Del("chronos:{bancos}:all")
	got, ok, err := tiered.GetBancos(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"profit"}, bancoIDs(got))
}

func TestTieredCacheSeesOtherInstanceInvalidation(t *testing.T) {
	remote, _ := newTestRedisCache(t, time.Minute)

	localA := NewLocalCache(10, time.Minute)
	defer localA.Stop()
	localB := NewLocalCache(10, time.Minute)
	defer localB.Stop()

	replicaA := NewTieredCache(localA, remote, nullLogger())
	replicaB := NewTieredCache(localB, remote, nullLogger())
	ctx := context.Background()

	require.NoError(t, replicaA.SetBancos(ctx, 0, []*models.Banco{{ID: "profit"}}))
	_, ok, _ := replicaA.GetBancos(ctx)
	require.True(t, ok)

	got, ok, err := replicaB.GetBancos(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"profit"}, bancoIDs(got))

	require.NoError(t, replicaB.InvalidateBancos(ctx))
	_, ok, err = replicaA.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTieredCacheSkipsStaleVersion(t *testing.T) {
	remote, _ := newTestRedisCache(t, time.Minute)
	local := NewLocalCache(10, time.Minute)
	defer local.Stop()
	tiered := NewTieredCache(local, remote, nullLogger())
	ctx := context.Background()

	before, err := tiered.BancosVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, tiered.InvalidateBancos(ctx))

	require.NoError(t, tiered.SetBancos(ctx, before, []*models.Banco{{ID: "profit"}}))
	_, ok, err := tiered.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, local.ItemCount())
}
