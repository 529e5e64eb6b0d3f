package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
)

// DefaultMapboxBaseURL is the public Mapbox API endpoint.
const DefaultMapboxBaseURL = "https://api.mapbox.com"

const maxProviderBody = 4 << 20

// ProviderResponse is a raw upstream response, passed through by the proxy endpoints.
type ProviderResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *ProviderResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ProviderStatusError is returned by the typed methods on a non-2xx upstream status.
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// MapboxClient talks to the Mapbox geocoding and directions APIs.
type MapboxClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewMapboxClient creates a Mapbox client. An empty baseURL selects the public API.
func NewMapboxClient(baseURL, token string, timeout time.Duration) *MapboxClient {
	if baseURL == "" {
		baseURL = DefaultMapboxBaseURL
	}
	if timeout == 0 {
		timeout = DefaultProviderTimeout
	}
	return &MapboxClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a credential is set.
func (c *MapboxClient) Configured() bool {
	return c.token != ""
}

// GeocodeRaw performs a forward geocoding lookup limited to the first result.
func (c *MapboxClient) GeocodeRaw(ctx context.Context, query string) (*ProviderResponse, error) {
	q := url.Values{}
	q.Set("limit", "1")
	return c.get(ctx, "/geocoding/v5/mapbox.places/"+url.PathEscape(query)+".json", q)
}

// ReverseGeocodeRaw performs a reverse geocoding lookup.
func (c *MapboxClient) ReverseGeocodeRaw(ctx context.Context, at route.Coordinate) (*ProviderResponse, error) {
	return c.get(ctx, "/geocoding/v5/mapbox.places/"+at.String()+".json", url.Values{})
}

// DirectionsRaw requests a driving route with GeoJSON geometry.
func (c *MapboxClient) DirectionsRaw(ctx context.Context, from, to route.Coordinate) (*ProviderResponse, error) {
	q := url.Values{}
	q.Set("geometries", "geojson")
	q.Set("overview", "full")
	return c.get(ctx, "/directions/v5/mapbox/driving/"+from.String()+";"+to.String(), q)
}

// Geocode implements Geocoder.
func (c *MapboxClient) Geocode(ctx context.Context, query string) (route.Coordinate, error) {
	resp, err := c.GeocodeRaw(ctx, query)
	if err != nil {
		return route.Coordinate{}, err
	}
	if !resp.OK() {
		return route.Coordinate{}, statusError(resp)
	}
	return DecodeFirstCoordinate(resp.Body)
}

// ReverseGeocode implements ReverseGeocoder.
func (c *MapboxClient) ReverseGeocode(ctx context.Context, at route.Coordinate) (string, error) {
	resp, err := c.ReverseGeocodeRaw(ctx, at)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", statusError(resp)
	}
	return DecodeFirstPlaceName(resp.Body)
}

// Route implements Router.
func (c *MapboxClient) Route(ctx context.Context, from, to route.Coordinate) (route.Estimate, error) {
	resp, err := c.DirectionsRaw(ctx, from, to)
	if err != nil {
		return route.Estimate{}, err
	}
	if !resp.OK() {
		return route.Estimate{}, statusError(resp)
	}
	return DecodeRoute(resp.Body)
}

func (c *MapboxClient) get(ctx context.Context, path string, q url.Values) (*ProviderResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	q.Set("access_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build mapbox request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mapbox request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read mapbox response: %w", err)
	}
	return &ProviderResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func statusError(resp *ProviderResponse) error {
	body := string(resp.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return &ProviderStatusError{StatusCode: resp.StatusCode, Body: body}
}

// --- Response decoding, shared with the client package ---

type geocodeResponse struct {
	Features []struct {
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"`
		Geometry  struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

type directionsResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// DecodeFirstCoordinate extracts the first feature's position from a geocoding response.
func DecodeFirstCoordinate(body []byte) (route.Coordinate, error) {
	var r geocodeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return route.Coordinate{}, fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(r.Features) == 0 {
		return route.Coordinate{}, ErrLocationNotFound
	}
	f := r.Features[0]
	pos := f.Center
	if len(pos) < 2 {
		pos = f.Geometry.Coordinates
	}
	if len(pos) < 2 {
		return route.Coordinate{}, fmt.Errorf("%w: feature has no position", ErrLocationNotFound)
	}
	c := route.Coordinate{Longitude: pos[0], Latitude: pos[1]}
	if err := c.Validate(); err != nil {
		return route.Coordinate{}, fmt.Errorf("%w: %v", ErrLocationNotFound, err)
	}
	return c, nil
}

// DecodeFirstPlaceName extracts the first feature's display name.
func DecodeFirstPlaceName(body []byte) (string, error) {
	var r geocodeResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("failed to decode geocoding response: %w", err)
	}
	if len(r.Features) == 0 || r.Features[0].PlaceName == "" {
		return "", ErrLocationNotFound
	}
	return r.Features[0].PlaceName, nil
}

// DecodeRoute extracts the first route from a directions response.
func DecodeRoute(body []byte) (route.Estimate, error) {
	var r directionsResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return route.Estimate{}, fmt.Errorf("failed to decode directions response: %w", err)
	}
	if len(r.Routes) == 0 {
		return route.Estimate{}, ErrRouteUnavailable
	}
	first := r.Routes[0]
	if first.Distance < 0 || first.Duration < 0 {
		return route.Estimate{}, errors.New("directions response has negative distance or duration")
	}

	path := make([]route.Coordinate, 0, len(first.Geometry.Coordinates))
	for _, p := range first.Geometry.Coordinates {
		if len(p) >= 2 {
			path = append(path, route.Coordinate{Longitude: p[0], Latitude: p[1]})
		}
	}
	return route.Estimate{
		DistanceMeters:  first.Distance,
		DurationSeconds: first.Duration,
		DurationKnown:   true,
		Path:            path,
	}, nil
}
