package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/application"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/middleware"
)

// ReservationSubmitter accepts raw booking payloads.
type ReservationSubmitter interface {
	Submit(ctx context.Context, raw map[string]any) (*application.SubmitResult, error)
}

// ReservationHandler handles HTTP requests for booking submissions.
type ReservationHandler struct {
	service ReservationSubmitter
	logger  *zap.Logger
}

// NewReservationHandler creates a new ReservationHandler.
func NewReservationHandler(service ReservationSubmitter, logger *zap.Logger) *ReservationHandler {
	return &ReservationHandler{service: service, logger: logger}
}

// RegisterRoutes registers the reservation routes. Extra handlers, such as the
// idempotency middleware, run before the submission.
func (h *ReservationHandler) RegisterRoutes(r *gin.RouterGroup, mw ...gin.HandlerFunc) {
	handlers := make([]gin.HandlerFunc, 0, len(mw)+1)
	handlers = append(handlers, mw...)
	r.POST("/api/reservations", append(handlers, h.CreateReservation)...)
}

// CreateReservation handles POST /api/reservations.
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var raw map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		h.logger.Warn("malformed reservation body",
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, msgServerError)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), raw)
	if err != nil {
		var ve *reservation.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": msgInvalidData,
				"errors":  ve.Messages(),
				"fields":  ve.Fields,
			})
			return
		}
		h.logger.Error("reservation submission failed",
			zap.String("request_id", middleware.RequestID(c)),
			zap.Error(err),
		)
		fail(c, http.StatusInternalServerError, msgServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       msgReservationSaved,
		"reservationId": result.ReservationID,
	})
}
