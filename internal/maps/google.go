package maps

import (
	"context"
	"fmt"

	gmaps "googlemaps.github.io/maps"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
)

// GoogleClient implements Provider on top of the Google Maps Platform.
type GoogleClient struct {
	client   *gmaps.Client
	language string
	region   string
}

// NewGoogleClient creates a GoogleClient with the given API key.
func NewGoogleClient(apiKey string) (*GoogleClient, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleClient{client: client, language: "fr", region: "fr"}, nil
}

// Geocode implements Geocoder.
func (g *GoogleClient) Geocode(ctx context.Context, query string) (route.Coordinate, error) {
	results, err := g.client.Geocode(ctx, &gmaps.GeocodingRequest{
		Address:  query,
		Language: g.language,
		Region:   g.region,
	})
	if err != nil {
		return route.Coordinate{}, fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return route.Coordinate{}, ErrLocationNotFound
	}
	loc := results[0].Geometry.Location
	return route.Coordinate{Longitude: loc.Lng, Latitude: loc.Lat}, nil
}

// ReverseGeocode implements ReverseGeocoder.
func (g *GoogleClient) ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &gmaps.GeocodingRequest{
		LatLng:   &gmaps.LatLng{Lat: at.Latitude, Lng: at.Longitude},
		Language: g.language,
	})
	if err != nil {
		return "", fmt.Errorf("geocoding api error: %w", err)
	}
	if len(results) == 0 {
		return "", ErrLocationNotFound
	}
	return results[0].FormattedAddress, nil
}

// Route implements Router. It assumes driving mode.
func (g *GoogleClient) Route(ctx context.Context, from, to route.Coordinate) (route.Estimate, error) {
	r := &gmaps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        gmaps.TravelModeDriving,
		Language:    g.language,
		Region:      g.region,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return route.Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return route.Estimate{}, ErrRouteUnavailable
	}

	est := route.Estimate{DurationKnown: true}
	for _, leg := range routes[0].Legs {
		est.DistanceMeters += float64(leg.Distance.Meters)
		est.DurationSeconds += leg.Duration.Seconds()
	}

	points, err := routes[0].OverviewPolyline.Decode()
	if err == nil {
		est.Path = make([]route.Coordinate, len(points))
		for i, p := range points {
			est.Path[i] = route.Coordinate{Longitude: p.Lng, Latitude: p.Lat}
		}
	}
	return est, nil
}

func latLng(c route.Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Latitude, c.Longitude)
}
