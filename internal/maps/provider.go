package maps

import (
	"context"
	"errors"
	"fmt"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
)

var (
	// ErrLocationNotFound is returned when an address cannot be geocoded.
	ErrLocationNotFound = errors.New("location not found")
	// ErrRouteUnavailable is returned when the router yields no route.
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrNotConfigured is returned when the provider credential is unset.
	ErrNotConfigured = errors.New("maps provider credential not configured")
)

// Geocoder resolves an address to its first matching coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (route.Coordinate, error)
}

// ReverseGeocoder resolves a coordinate to a display address.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error)
}

// Router computes a driving route with geometry between two coordinates.
type Router interface {
	Route(ctx context.Context, from, to route.Coordinate) (route.Estimate, error)
}

// Provider is a full mapping backend.
type Provider interface {
	Geocoder
	ReverseGeocoder
	Router
}

// AddressResolutionError reports which endpoint of a trip could not be geocoded.
type AddressResolutionError struct {
	Side  string
	Query string
	Err   error
}

func (e *AddressResolutionError) Error() string {
	return fmt.Sprintf("resolve %s address %q: %v", e.Side, e.Query, e.Err)
}

func (e *AddressResolutionError) Unwrap() error { return e.Err }

// RouteComputationError wraps a routing provider failure that was not absorbed by the fallback.
type RouteComputationError struct {
	Err error
}

func (e *RouteComputationError) Error() string {
	return fmt.Sprintf("compute route: %v", e.Err)
}

func (e *RouteComputationError) Unwrap() error { return e.Err }

// Place is either a free-text address or an already known coordinate.
type Place struct {
	Address string
	Coord   *route.Coordinate
}

// AddressPlace wraps a free-text address.
func AddressPlace(address string) Place {
	return Place{Address: address}
}

// CoordinatePlace wraps a known coordinate.
func CoordinatePlace(c route.Coordinate) Place {
	return Place{Coord: &c}
}

func (p Place) String() string {
	if p.Coord != nil {
		return p.Coord.String()
	}
	return p.Address
}
