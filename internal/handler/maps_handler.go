package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/maps"
	"github.com/vtc-premium/service-reservation/internal/middleware"
)

// MapsProxy performs raw provider calls whose responses are relayed verbatim.
type MapsProxy interface {
	Configured() bool
	GeocodeRaw(ctx context.Context, query string) (*maps.ProviderResponse, error)
	ReverseGeocodeRaw(ctx context.Context, at route.Coordinate) (*maps.ProviderResponse, error)
	DirectionsRaw(ctx context.Context, from, to route.Coordinate) (*maps.ProviderResponse, error)
}

// MapsHandler proxies map lookups so the provider credential stays server-side.
type MapsHandler struct {
	proxy       MapsProxy
	token       string
	publicToken string
	logger      *zap.Logger
}

// NewMapsHandler creates a new MapsHandler. publicToken, when set, is the
// URL-restricted token handed to browsers instead of the server credential.
func NewMapsHandler(proxy MapsProxy, token, publicToken string, logger *zap.Logger) *MapsHandler {
	return &MapsHandler{proxy: proxy, token: token, publicToken: publicToken, logger: logger}
}

// RegisterRoutes registers the map proxy routes.
func (h *MapsHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/api/mapbox")
	{
		g.GET("/geocode", h.Geocode)
		g.GET("/reverse-geocode", h.ReverseGeocode)
		g.GET("/directions", h.Directions)
		g.GET("/token", h.Token)
	}
}

// Geocode handles GET /api/mapbox/geocode?query=.
func (h *MapsHandler) Geocode(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		fail(c, http.StatusBadRequest, "Paramètre query manquant")
		return
	}
	if !h.proxy.Configured() {
		fail(c, http.StatusInternalServerError, msgNotConfigured)
		return
	}
	resp, err := h.proxy.GeocodeRaw(c.Request.Context(), query)
	h.relay(c, "geocode", resp, err)
}

// ReverseGeocode handles GET /api/mapbox/reverse-geocode?lon=&lat=.
func (h *MapsHandler) ReverseGeocode(c *gin.Context) {
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	at := route.Coordinate{Longitude: lon, Latitude: lat}
	if errLon != nil || errLat != nil || at.Validate() != nil {
		fail(c, http.StatusBadRequest, "Paramètres lon/lat invalides")
		return
	}
	if !h.proxy.Configured() {
		fail(c, http.StatusInternalServerError, msgNotConfigured)
		return
	}
	resp, err := h.proxy.ReverseGeocodeRaw(c.Request.Context(), at)
	h.relay(c, "reverse-geocode", resp, err)
}

// Directions handles GET /api/mapbox/directions?start=lon,lat&end=lon,lat.
func (h *MapsHandler) Directions(c *gin.Context) {
	start, errStart := maps.ParseCoordinate(c.Query("start"))
	end, errEnd := maps.ParseCoordinate(c.Query("end"))
	if errStart != nil || errEnd != nil {
		fail(c, http.StatusBadRequest, "Paramètres start/end invalides")
		return
	}
	if !h.proxy.Configured() {
		fail(c, http.StatusInternalServerError, msgNotConfigured)
		return
	}
	resp, err := h.proxy.DirectionsRaw(c.Request.Context(), start, end)
	h.relay(c, "directions", resp, err)
}

// Token handles GET /api/mapbox/token.
func (h *MapsHandler) Token(c *gin.Context) {
	switch {
	case h.publicToken != "":
		c.JSON(http.StatusOK, gin.H{"token": h.publicToken})
	case h.token != "":
		h.logger.Warn("serving server-side map credential to client; configure a public token")
		c.JSON(http.StatusOK, gin.H{"token": h.token})
	default:
		fail(c, http.StatusInternalServerError, msgNotConfigured)
	}
}

func (h *MapsHandler) relay(c *gin.Context, op string, resp *maps.ProviderResponse, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		msg := msgProviderError
		if errors.Is(err, maps.ErrNotConfigured) {
			msg = msgNotConfigured
		}
		h.logger.Error("map provider call failed",
			zap.String("op", op),
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
		fail(c, status, msg)
		return
	}
	if !resp.OK() {
		h.logger.Warn("map provider returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
