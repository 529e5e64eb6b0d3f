package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtc_quotes_total",
		Help: "Fare quotes computed, by outcome.",
	}, []string{"outcome"})

	RouteFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vtc_route_fallbacks_total",
		Help: "Route estimates that fell back to the great-circle formula.",
	})

	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtc_reservations_total",
		Help: "Reservation submissions, by result.",
	}, []string{"result"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtc_notifications_total",
		Help: "Notification attempts, by recipient and outcome.",
	}, []string{"recipient", "outcome"})

	GeocodeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vtc_geocode_cache_total",
		Help: "Geocode cache lookups, by result.",
	}, []string{"result"})
)

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
