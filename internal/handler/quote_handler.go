package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/application"
	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/maps"
	"github.com/vtc-premium/service-reservation/internal/middleware"
)

// QuoteProvider prices trips and exposes the rate table.
type QuoteProvider interface {
	Quote(ctx context.Context, req application.QuoteRequest) (*fare.Quote, error)
	Rates() *fare.RateTable
}

// QuoteHandler serves the rate table and server-side quotes.
type QuoteHandler struct {
	service QuoteProvider
	logger  *zap.Logger
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(service QuoteProvider, logger *zap.Logger) *QuoteHandler {
	return &QuoteHandler{service: service, logger: logger}
}

// RegisterRoutes registers the tier and quote routes.
func (h *QuoteHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/api/tiers", h.ListTiers)
	r.POST("/api/quotes", h.CreateQuote)
}

type tierView struct {
	fare.ServiceTier
	Description string `json:"description"`
}

// ListTiers handles GET /api/tiers.
func (h *QuoteHandler) ListTiers(c *gin.Context) {
	rt := h.service.Rates()
	tiers := make([]tierView, 0)
	for _, t := range rt.Tiers() {
		tiers = append(tiers, tierView{ServiceTier: t, Description: rt.Describe(t.Key)})
	}
	c.JSON(http.StatusOK, gin.H{
		"base_fare": rt.BaseFare(),
		"currency":  rt.Currency(),
		"tiers":     tiers,
	})
}

type quoteView struct {
	*fare.Quote
	PriceDisplay    string `json:"price_display"`
	DistanceDisplay string `json:"distance_display"`
	DurationDisplay string `json:"duration_display"`
}

// CreateQuote handles POST /api/quotes.
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	var req application.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgInvalidData)
		return
	}

	q, err := h.service.Quote(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, fare.ErrInvalidTier):
		fail(c, http.StatusBadRequest, "Type de service invalide")
		return
	case errors.Is(err, application.ErrEmptyAddress):
		fail(c, http.StatusBadRequest, "Adresses de départ et de destination requises")
		return
	case errors.Is(err, maps.ErrLocationNotFound):
		fail(c, http.StatusUnprocessableEntity, "Adresse introuvable")
		return
	case errors.Is(err, maps.ErrRouteUnavailable):
		fail(c, http.StatusUnprocessableEntity, "Itinéraire indisponible")
		return
	default:
		h.logger.Error("quote failed",
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, msgServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"quote": quoteView{
			Quote:           q,
			PriceDisplay:    q.PriceDisplay(),
			DistanceDisplay: q.DistanceDisplay(),
			DurationDisplay: q.DurationDisplay(),
		},
	})
}
