package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trading-grow/internal/models"
	"github.com/trading-grow/internal/storage"
)

func newTestCache(t *testing.T) (*storage.CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Minute), mr
}

func TestCachedProvider_HitSkipsProvider(t *testing.T) {
	cache, _ := newTestCache(t)
	var calls int32
	next := countingProvider(&calls, func() (*Snapshot, error) {
		return fixedSynthetic().Lookup(context.Background(), "NVDA")
	})

	p := NewCachedProvider(next, cache, nil)
	first, err := p.Lookup(context.Background(), "nvda")
	require.NoError(t, err)
	second, err := p.Lookup(context.Background(), "NVDA")
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, first.Symbol, second.Symbol)
	assert.True(t, first.Price.Equal(second.Price))
	assert.Equal(t, first.Metadata, second.Metadata)
}

func TestCachedProvider_RemembersMissingSymbol(t *testing.T) {
	cache, mr := newTestCache(t)
	var calls int32
	next := countingProvider(&calls, func() (*Snapshot, error) {
		return nil, ErrSymbolNotFound
	})

	p := NewCachedProvider(next, cache, nil)
	for i := 0; i < 3; i++ {
		_, err := p.Lookup(context.Background(), "ZZZZ")
		assert.True(t, errors.Is(err, ErrSymbolNotFound))
	}
	assert.Equal(t, int32(1), calls)

	mr.FastForward(missingSymbolTTL + time.Second)
	_, _ = p.Lookup(context.Background(), "ZZZZ")
	assert.Equal(t, int32(2), calls)
}

func TestCachedProvider_ExpiredSnapshotRefetched(t *testing.T) {
	cache, mr := newTestCache(t)
	var calls int32
	next := countingProvider(&calls, func() (*Snapshot, error) {
		return fixedSynthetic().Lookup(context.Background(), "JPM")
	})

	p := NewCachedProvider(next, cache, nil)
	_, err := p.Lookup(context.Background(), "JPM")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = p.Lookup(context.Background(), "JPM")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls)
}

func TestCachedProvider_Forget(t *testing.T) {
	cache, mr := newTestCache(t)
	var calls int32
	found := false
	next := countingProvider(&calls, func() (*Snapshot, error) {
		if !found {
			return nil, ErrSymbolNotFound
		}
		return &Snapshot{Symbol: "NEWCO", Name: "New Co", Source: SourceSynthetic}, nil
	})

	p := NewCachedProvider(next, cache, nil)
	_, err := p.Lookup(context.Background(), "NEWCO")
	require.ErrorIs(t, err, ErrSymbolNotFound)
	assert.True(t, mr.Exists(cache.MissingSymbolKey("NEWCO")))

	found = true
	require.NoError(t, p.Forget(context.Background(), "newco"))
	assert.False(t, mr.Exists(cache.MissingSymbolKey("NEWCO")))

	s, err := p.Lookup(context.Background(), "NEWCO")
	require.NoError(t, err)
	assert.Equal(t, "New Co", s.Name)
	assert.True(t, mr.Exists(cache.SnapshotKey("NEWCO")))

	require.NoError(t, p.Forget(context.Background(), "NEWCO"))
	assert.False(t, mr.Exists(cache.SnapshotKey("NEWCO")))
	assert.Equal(t, int32(2), calls)
}

func TestCachedProvider_RedisDownFallsThrough(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	p := NewCachedProvider(fixedSynthetic(), cache, nil)
	s, err := p.Lookup(context.Background(), "XOM")
	require.NoError(t, err)
	assert.Equal(t, "Exxon Mobil", s.Name)
}

type fakeRecorder struct {
	points []models.PricePoint
	err    error
}

func (r *fakeRecorder) Record(_ context.Context, points ...models.PricePoint) error {
	r.points = append(r.points, points...)
	return r.err
}

func TestRecordingProvider(t *testing.T) {
	recorder := &fakeRecorder{}
	p := NewRecordingProvider(fixedSynthetic(), recorder)

	s, err := p.Lookup(context.Background(), "CVX")
	require.NoError(t, err)
	require.Len(t, recorder.points, 1)
	assert.Equal(t, "CVX", recorder.points[0].Symbol)
	assert.True(t, s.Price.Equal(recorder.points[0].Price))

	_, err = p.Lookup(context.Background(), "1BAD")
	assert.Error(t, err)
	assert.Len(t, recorder.points, 1, "failed lookups are not recorded")
}

func TestRecordingProvider_RecorderErrorIgnored(t *testing.T) {
	p := NewRecordingProvider(fixedSynthetic(), &fakeRecorder{err: errors.New("clickhouse down")})
	_, err := p.Lookup(context.Background(), "CVX")
	assert.NoError(t, err)
}
