package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/metrics"
)

// DefaultProviderTimeout bounds every outbound geocode and route call.
const DefaultProviderTimeout = 5 * time.Second

// Trip is the outcome of an estimation: both resolved endpoints and the route.
type Trip struct {
	From     route.Coordinate
	To       route.Coordinate
	Estimate route.Estimate
}

// Estimator resolves addresses and estimates the driving route between them.
type Estimator struct {
	geocoder Geocoder
	router   Router
	timeout  time.Duration
	fallback bool
	logger   *zap.Logger
}

// EstimatorOption customizes an Estimator.
type EstimatorOption func(*Estimator)

// WithTimeout sets the per-call provider timeout.
func WithTimeout(d time.Duration) EstimatorOption {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFallback enables or disables the great-circle fallback.
func WithFallback(enabled bool) EstimatorOption {
	return func(e *Estimator) { e.fallback = enabled }
}

// NewEstimator creates an Estimator. The fallback is enabled by default.
func NewEstimator(geocoder Geocoder, router Router, logger *zap.Logger, opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		geocoder: geocoder,
		router:   router,
		timeout:  DefaultProviderTimeout,
		fallback: true,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate geocodes both endpoints concurrently, then asks the router for a route.
// A routing failure falls back to the great-circle distance × 1.2 with unknown duration.
func (e *Estimator) Estimate(ctx context.Context, origin, destination Place) (Trip, error) {
	var trip Trip

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.resolve(gctx, "pickup", origin)
		trip.From = c
		return err
	})
	g.Go(func() error {
		c, err := e.resolve(gctx, "destination", destination)
		trip.To = c
		return err
	})
	if err := g.Wait(); err != nil {
		return Trip{}, err
	}

	if trip.From == trip.To {
		trip.Estimate = route.Zero(trip.From)
		return trip, nil
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	est, err := e.router.Route(rctx, trip.From, trip.To)
	cancel()
	if err == nil {
		trip.Estimate = est
		return trip, nil
	}

	if !e.fallback || ctx.Err() != nil {
		if !errors.Is(err, ErrRouteUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
		}
		return Trip{}, &RouteComputationError{Err: err}
	}

	e.logger.Warn("routing provider failed, using great-circle fallback",
		zap.String("from", trip.From.String()),
		zap.String("to", trip.To.String()),
		zap.Error(err),
	)
	metrics.RouteFallbacksTotal.Inc()
	trip.Estimate = route.FallbackEstimate(trip.From, trip.To)
	return trip, nil
}

func (e *Estimator) resolve(ctx context.Context, side string, p Place) (route.Coordinate, error) {
	if p.Coord != nil {
		if err := p.Coord.Validate(); err != nil {
			return route.Coordinate{}, &AddressResolutionError{Side: side, Query: p.String(), Err: fmt.Errorf("%w: %v", ErrLocationNotFound, err)}
		}
		return *p.Coord, nil
	}
	if p.Address == "" {
		return route.Coordinate{}, &AddressResolutionError{Side: side, Err: ErrLocationNotFound}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	c, err := e.geocoder.Geocode(cctx, p.Address)
	if err != nil {
		if !errors.Is(err, ErrLocationNotFound) {
			err = fmt.Errorf("%w: %v", ErrLocationNotFound, err)
		}
		return route.Coordinate{}, &AddressResolutionError{Side: side, Query: p.Address, Err: err}
	}
	return c, nil
}
