package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/maps"
	"github.com/vtc-premium/service-reservation/internal/metrics"
)

// TripEstimator resolves two places and estimates the route between them.
type TripEstimator interface {
	Estimate(ctx context.Context, origin, destination maps.Place) (maps.Trip, error)
}

// QuoteRequest asks for a price between two places. A coordinate, when
// given, takes precedence over the address text for that side.
type QuoteRequest struct {
	Pickup           string            `json:"pickup"`
	Destination      string            `json:"destination"`
	PickupCoord      *route.Coordinate `json:"pickup_coord,omitempty"`
	DestinationCoord *route.Coordinate `json:"destination_coord,omitempty"`
	ServiceType      string            `json:"serviceType"`
}

// ErrEmptyAddress is returned when a side has neither address nor coordinate.
var ErrEmptyAddress = errors.New("pickup and destination are required")

// QuoteService prices trips against the rate table.
type QuoteService struct {
	estimator TripEstimator
	rates     *fare.RateTable
	logger    *zap.Logger
}

// NewQuoteService creates a new QuoteService.
func NewQuoteService(estimator TripEstimator, rates *fare.RateTable, logger *zap.Logger) *QuoteService {
	return &QuoteService{estimator: estimator, rates: rates, logger: logger}
}

// Rates returns the rate table in use.
func (s *QuoteService) Rates() *fare.RateTable {
	return s.rates
}

// Quote estimates the route and prices it for the requested tier.
func (s *QuoteService) Quote(ctx context.Context, req QuoteRequest) (*fare.Quote, error) {
	if _, err := s.rates.Tier(req.ServiceType); err != nil {
		metrics.QuotesTotal.WithLabelValues("invalid_tier").Inc()
		return nil, err
	}
	origin, err := place(req.Pickup, req.PickupCoord)
	if err != nil {
		return nil, err
	}
	destination, err := place(req.Destination, req.DestinationCoord)
	if err != nil {
		return nil, err
	}

	trip, err := s.estimator.Estimate(ctx, origin, destination)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues(quoteFailure(err)).Inc()
		s.logger.Warn("quote failed",
			zap.String("pickup", origin.String()),
			zap.String("destination", destination.String()),
			zap.Error(err),
		)
		return nil, err
	}

	q, err := fare.NewQuote(s.rates, req.Pickup, req.Destination, trip.From, trip.To, trip.Estimate, req.ServiceType)
	if err != nil {
		metrics.QuotesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to price trip: %w", err)
	}

	outcome := "routed"
	if q.Fallback {
		outcome = "fallback"
	}
	metrics.QuotesTotal.WithLabelValues(outcome).Inc()
	return &q, nil
}

func place(address string, coord *route.Coordinate) (maps.Place, error) {
	if coord != nil {
		return maps.CoordinatePlace(*coord), nil
	}
	if strings.TrimSpace(address) == "" {
		return maps.Place{}, ErrEmptyAddress
	}
	return maps.AddressPlace(strings.TrimSpace(address)), nil
}

func quoteFailure(err error) string {
	switch {
	case errors.Is(err, maps.ErrLocationNotFound):
		return "location_not_found"
	case errors.Is(err, maps.ErrRouteUnavailable):
		return "route_unavailable"
	default:
		return "error"
	}
}
