package fare

import (
	"fmt"
	"math"
	"strings"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
)

// DurationUnavailable is shown instead of "0 min" when the route duration is unknown.
const DurationUnavailable = "estimation indisponible"

// Quote is a computed, non-persistent price and route estimate for an address pair and tier.
// A new quote replaces the previous one wholesale.
type Quote struct {
	Pickup           string           `json:"pickup"`
	Destination      string           `json:"destination"`
	PickupCoord      route.Coordinate `json:"pickup_coord"`
	DestinationCoord route.Coordinate `json:"destination_coord"`
	DistanceKm       float64          `json:"distance_km"`
	DurationMinutes  int              `json:"duration_minutes"`
	DurationKnown    bool             `json:"duration_known"`
	Fallback         bool             `json:"fallback"`
	Tier             ServiceTier      `json:"tier"`
	Price            float64          `json:"price"`
	Currency         string           `json:"currency"`
}

// DurationMinutes converts seconds to whole minutes, rounding half away from zero.
func DurationMinutes(seconds float64) int {
	return int(math.Round(seconds / 60))
}

// NewQuote prices a route estimate against the rate table.
func NewQuote(rt *RateTable, pickup, destination string, from, to route.Coordinate, est route.Estimate, tierKey string) (Quote, error) {
	tier, err := rt.Tier(tierKey)
	if err != nil {
		return Quote{}, err
	}
	distanceKm := est.DistanceKm()
	price, err := rt.Price(distanceKm, tier.Key)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Pickup:           strings.TrimSpace(pickup),
		Destination:      strings.TrimSpace(destination),
		PickupCoord:      from,
		DestinationCoord: to,
		DistanceKm:       distanceKm,
		DurationKnown:    est.DurationKnown,
		Fallback:         est.Fallback,
		Tier:             tier,
		Price:            price,
		Currency:         rt.Currency(),
	}
	if est.DurationKnown {
		q.DurationMinutes = DurationMinutes(est.DurationSeconds)
	}
	return q, nil
}

// PriceDisplay renders the price at two decimals.
func (q Quote) PriceDisplay() string {
	return FormatPrice(q.Price, q.Currency)
}

// DistanceDisplay renders the distance at one decimal, e.g. "12.3 km".
func (q Quote) DistanceDisplay() string {
	return fmt.Sprintf("%.1f km", q.DistanceKm)
}

// DurationDisplay renders the ETA, or DurationUnavailable on the fallback path.
func (q Quote) DurationDisplay() string {
	if !q.DurationKnown {
		return DurationUnavailable
	}
	return fmt.Sprintf("%d min", q.DurationMinutes)
}
