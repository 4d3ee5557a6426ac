package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronos-api/internal/models"
)

func TestLocalCacheBancos(t *testing.T) {
	c := NewLocalCache(100, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	_, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	version, err := c.BancosVersion(ctx)
	require.NoError(t, err)

	bancos := []*models.Banco{{ID: "profit", CapitalActual: decimal.NewFromInt(10)}}
	require.NoError(t, c.SetBancos(ctx, version, bancos))

	got, ok, err := c.GetBancos(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, bancos, got)

	require.NoError(t, c.InvalidateBancos(ctx))
	_, ok, _ = c.GetBancos(ctx)
	assert.False(t, ok)
}

func TestLocalCacheSkipsListReadBeforeInvalidation(t *testing.T) {
	c := NewLocalCache(100, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	before, err := c.BancosVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, c.InvalidateBancos(ctx))

	require.NoError(t, c.SetBancos(ctx, before, []*models.Banco{{ID: "profit"}}))
	_, ok, _ := c.GetBancos(ctx)
	assert.False(t, ok)

	after, err := c.BancosVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
	require.NoError(t, c.SetBancos(ctx, after, []*models.Banco{{ID: "profit"}}))
	_, ok, _ = c.GetBancos(ctx)
	assert.True(t, ok)
}

func TestLocalCacheReturnsCopies(t *testing.T) {
	c := NewLocalCache(100, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	bancos := []*models.Banco{{ID: "profit", CapitalActual: decimal.NewFromInt(10)}}
	require.NoError(t, c.SetBancos(ctx, 0, bancos))
	bancos[0].CapitalActual = decimal.NewFromInt(99)

	got, _, _ := c.GetBancos(ctx)
	got[0].CapitalActual = decimal.NewFromInt(77)
	got[0] = nil

	again, ok, _ := c.GetBancos(ctx)
	require.True(t, ok)
	require.NotNil(t, again[0])
	assert.True(t, again[0].CapitalActual.Equal(decimal.NewFromInt(10)))

	record := &models.RegistroIdempotencia{Huella: "h", Resultado: &models.ResultadoTransferencia{TransferenciaID: "t1"}}
	require.NoError(t, c.SaveRecord(ctx, "k", record, time.Minute))
	stored, _, _ := c.GetRecord(ctx, "k")
	stored.Resultado.TransferenciaID = "changed"

	stored, _, _ = c.GetRecord(ctx, "k")
	assert.Equal(t, "t1", stored.Resultado.TransferenciaID)
}

func TestLocalCacheEntriesExpire(t *testing.T) {
	c := NewLocalCache(100, 20*time.Millisecond)
	defer c.Stop()
	ctx := context.Background()

	require.NoError(t, c.SetBancos(ctx, 0, []*models.Banco{{ID: "profit"}}))
	time.Sleep(40 * time.Millisecond)

	_, ok, _ := c.GetBancos(ctx)
	assert.False(t, ok)
}

func TestLocalCacheIdempotency(t *testing.T) {
	c := NewLocalCache(100, time.Minute)
	defer c.Stop()
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

func TestLocalCacheAcquireIsExclusive(t *testing.T) {
	c := NewLocalCache(100, time.Minute)
	defer c.Stop()
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Acquire(ctx, "k", time.Minute); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)

	require.NoError(t, c.Release(ctx, "k"))
	ok, err := c.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
