package route

import (
	"fmt"
	"math"
)

// FallbackDetourFactor approximates road distance over great-circle distance.
const FallbackDetourFactor = 1.2

const earthRadiusKm = 6371.0

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// Validate checks that the coordinate lies within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", c.Longitude)
	}
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", c.Latitude)
	}
	return nil
}

// String renders the coordinate as "lon,lat", the order the mapping APIs expect.
func (c Coordinate) String() string {
	return fmt.Sprintf("%g,%g", c.Longitude, c.Latitude)
}

// Estimate is the value object produced once per fare calculation.
type Estimate struct {
	DistanceMeters  float64      `json:"distance_meters"`
	DurationSeconds float64      `json:"duration_seconds"`
	DurationKnown   bool         `json:"duration_known"`
	Path            []Coordinate `json:"path,omitempty"`
	Fallback        bool         `json:"fallback"`
}

// DistanceKm returns the estimated distance in kilometers.
func (e Estimate) DistanceKm() float64 {
	return e.DistanceMeters / 1000
}

// Zero returns the estimate for a trip whose endpoints coincide.
func Zero(at Coordinate) Estimate {
	return Estimate{
		DurationKnown: true,
		Path:          []Coordinate{at, at},
	}
}

// FallbackEstimate inflates the great-circle distance by FallbackDetourFactor.
// The duration is left unknown.
func FallbackEstimate(from, to Coordinate) Estimate {
	return Estimate{
		DistanceMeters: HaversineKm(from, to) * FallbackDetourFactor * 1000,
		Path:           []Coordinate{from, to},
		Fallback:       true,
	}
}

// HaversineKm calculates the great-circle distance between two coordinates in kilometers.
func HaversineKm(from, to Coordinate) float64 {
	dLat := degreesToRadians(to.Latitude - from.Latitude)
	dLng := degreesToRadians(to.Longitude - from.Longitude)

	lat1Rad := degreesToRadians(from.Latitude)
	lat2Rad := degreesToRadians(to.Latitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1Rad)*math.Cos(lat2Rad)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
