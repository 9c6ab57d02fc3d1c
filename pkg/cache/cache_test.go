package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string    `json:"symbol"`
	Levels []float64 `json:"levels"`
}

func TestMemoryCacheRoundTripCopiesValue(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := payload{Symbol: "BTCUSDT", Levels: []float64{1, 2}}
	require.NoError(t, mc.Set(ctx, "a", in, time.Minute))
	in.Levels[0] = 99

	var out payload
	require.NoError(t, mc.Get(ctx, "a", &out))
	assert.Equal(t, "BTCUSDT", out.Symbol)
	assert.Equal(t, []float64{1, 2}, out.Levels)

	var s string
	require.NoError(t, mc.Set(ctx, "s", "plain", 0))
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "plain", s)
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var out payload
	assert.ErrorIs(t, mc.Get(ctx, "missing", &out), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "short", payload{}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	assert.ErrorIs(t, mc.Get(ctx, "short", &out), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "gone", payload{}, 0))
	require.NoError(t, mc.Delete(ctx, "gone"))
	assert.ErrorIs(t, mc.Get(ctx, "gone", &out), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyRead(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rc := NewRedisCache(db, "marketcore")
	ctx := context.Background()

	mock.ExpectSet("marketcore:analysis:BTCUSDT", []byte(`{"symbol":"BTCUSDT","levels":[1.5]}`), time.Minute).SetVal("OK")
	require.NoError(t, rc.Set(ctx, GenerateKey("analysis", "BTCUSDT"), payload{Symbol: "BTCUSDT", Levels: []float64{1.5}}, time.Minute))

	mock.ExpectGet("marketcore:analysis:BTCUSDT").SetVal(`{"symbol":"BTCUSDT","levels":[1.5]}`)
	var out payload
	require.NoError(t, rc.Get(ctx, "analysis:BTCUSDT", &out))
	assert.Equal(t, []float64{1.5}, out.Levels)

	mock.ExpectGet("marketcore:analysis:ETHUSDT").RedisNil()
	assert.ErrorIs(t, rc.Get(ctx, "analysis:ETHUSDT", &out), ErrCacheMiss)

	mock.ExpectUnlink("marketcore:a", "marketcore:b").SetVal(2)
	require.NoError(t, rc.Delete(ctx, "a", "b"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLayeredCacheReadsThroughAndBackfills(t *testing.T) {
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, time.Minute)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, remote.Set(ctx, "k", payload{Symbol: "ETHUSDT"}, 0))

	var out payload
	require.NoError(t, lc.Get(ctx, "k", &out))
	assert.Equal(t, "ETHUSDT", out.Symbol)

	require.NoError(t, remote.Delete(ctx, "k"))
	out = payload{}
	require.NoError(t, lc.Get(ctx, "k", &out), "served from L1 after backfill")
	assert.Equal(t, "ETHUSDT", out.Symbol)

	require.NoError(t, lc.Set(ctx, "w", "v", time.Hour))
	var s string
	require.NoError(t, remote.Get(ctx, "w", &s))
	assert.Equal(t, "v", s)

	require.NoError(t, lc.Delete(ctx, "w"))
	assert.ErrorIs(t, lc.Get(ctx, "w", &s), ErrCacheMiss)
}
