package maps

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
)

type countingProvider struct {
	stubGeocoder
	stubRouter
	reverse      map[string]string
	reverseCalls int
}

func (p *countingProvider) ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error) {
	p.reverseCalls++
	name, ok := p.reverse[at.String()]
	if !ok {
		return "", ErrLocationNotFound
	}
	return name, nil
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *CachedProvider, *countingProvider) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingProvider{
		stubGeocoder: stubGeocoder{results: knownPlaces()},
		reverse:      map[string]string{paris.String(): "Paris, France"},
	}
	return mr, NewCachedProvider(next, client, time.Hour, zap.NewNop()), next
}

func TestCachedProvider_GeocodeHitsCacheSecondTime(t *testing.T) {
	mr, cache, next := setupCache(t)
	ctx := context.Background()

	c1, err := cache.Geocode(ctx, "Paris")
	require.NoError(t, err)
	c2, err := cache.Geocode(ctx, "  paris ")
	require.NoError(t, err)

	assert.Equal(t, paris, c1)
	assert.Equal(t, c1, c2)
	assert.Len(t, next.stubGeocoder.calls, 1)
	assert.True(t, mr.Exists("geocode:fwd:paris"))
	assert.Equal(t, time.Hour, mr.TTL("geocode:fwd:paris"))
}

func TestCachedProvider_NotFoundIsNotCached(t *testing.T) {
	mr, cache, next := setupCache(t)
	ctx := context.Background()

	_, err := cache.Geocode(ctx, "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)
	_, err = cache.Geocode(ctx, "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)

	assert.Len(t, next.stubGeocoder.calls, 2)
	assert.False(t, mr.Exists("geocode:fwd:atlantis"))
}

func TestCachedProvider_ReverseKeyedByGeohash(t *testing.T) {
	mr, cache, next := setupCache(t)
	ctx := context.Background()

	name, err := cache.ReverseGeocode(ctx, paris)
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", name)

	name, err = cache.ReverseGeocode(ctx, paris)
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", name)
	assert.Equal(t, 1, next.reverseCalls)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Len(t, keys[0], len("geocode:rev:")+9)
}

func TestCachedProvider_RedisDownBypassesCache(t *testing.T) {
	mr, cache, next := setupCache(t)
	mr.Close()

	c, err := cache.Geocode(context.Background(), "Lyon")
	require.NoError(t, err)
	assert.Equal(t, lyon, c)
	assert.Len(t, next.stubGeocoder.calls, 1)
}

func TestCachedProvider_CorruptEntryFallsThrough(t *testing.T) {
	mr, cache, next := setupCache(t)
	require.NoError(t, mr.Set("geocode:fwd:lyon", "garbage"))

	c, err := cache.Geocode(context.Background(), "Lyon")
	require.NoError(t, err)
	assert.Equal(t, lyon, c)
	assert.Len(t, next.stubGeocoder.calls, 1)
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate(" 2.3522,48.8566 ")
	require.NoError(t, err)
	assert.Equal(t, paris, c)

	_, err = ParseCoordinate("2.35")
	assert.Error(t, err)
	_, err = ParseCoordinate("abc,48")
	assert.Error(t, err)
	_, err = ParseCoordinate("2.35,95")
	assert.Error(t, err)
}
