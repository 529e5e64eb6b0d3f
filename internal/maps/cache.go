package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/metrics"
)

const (
	forwardKeyPrefix = "geocode:fwd:"
	reverseKeyPrefix = "geocode:rev:"
	// ~5m cells: close enough to share a street address.
	reverseGeohashPrecision = 9
)

// CachedProvider decorates a Provider with a Redis-backed geocode cache.
// Routing is never cached. Redis failures degrade to a direct provider call.
type CachedProvider struct {
	Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProvider wraps next with a geocode cache of the given TTL.
func NewCachedProvider(next Provider, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	return &CachedProvider{Provider: next, rdb: rdb, ttl: ttl, logger: logger}
}

// Geocode implements Geocoder.
func (c *CachedProvider) Geocode(ctx context.Context, query string) (route.Coordinate, error) {
	key := forwardKeyPrefix + normalizeQuery(query)

	if val, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if coord, perr := parseCoordinate(val); perr == nil {
			metrics.GeocodeCacheTotal.WithLabelValues("hit").Inc()
			return coord, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.GeocodeCacheTotal.WithLabelValues("miss").Inc()

	coord, err := c.Provider.Geocode(ctx, query)
	if err != nil {
		return route.Coordinate{}, err
	}
	if err := c.rdb.Set(ctx, key, coord.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return coord, nil
}

// ReverseGeocode implements ReverseGeocoder, keyed by geohash cell.
func (c *CachedProvider) ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error) {
	key := reverseKeyPrefix + geohash.EncodeWithPrecision(at.Latitude, at.Longitude, reverseGeohashPrecision)

	if val, err := c.rdb.Get(ctx, key).Result(); err == nil {
		metrics.GeocodeCacheTotal.WithLabelValues("hit").Inc()
		return val, nil
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("reverse geocode cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.GeocodeCacheTotal.WithLabelValues("miss").Inc()

	address, err := c.Provider.ReverseGeocode(ctx, at)
	if err != nil {
		return "", err
	}
	if err := c.rdb.Set(ctx, key, address, c.ttl).Err(); err != nil {
		c.logger.Warn("reverse geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
	return address, nil
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func parseCoordinate(s string) (route.Coordinate, error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return route.Coordinate{}, fmt.Errorf("malformed coordinate %q", s)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return route.Coordinate{}, err
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return route.Coordinate{}, err
	}
	c := route.Coordinate{Longitude: lon, Latitude: lat}
	return c, c.Validate()
}

// ParseCoordinate parses "lon,lat" as used by the directions proxy.
func ParseCoordinate(s string) (route.Coordinate, error) {
	return parseCoordinate(strings.TrimSpace(s))
}
