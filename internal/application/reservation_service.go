package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/metrics"
	"github.com/vtc-premium/service-reservation/internal/notification"
)

// Notifier dispatches the e-mails of an accepted reservation.
type Notifier interface {
	Dispatch(ctx context.Context, id int64, b reservation.ValidatedBooking) notification.Report
}

// SubmitResult is the outcome of an accepted reservation.
type SubmitResult struct {
	ReservationID int64
	Booking       reservation.ValidatedBooking
	Notifications notification.Report
}

// ReservationService is the application service accepting booking submissions.
type ReservationService struct {
	validator *reservation.Validator
	notifier  Notifier
	now       func() time.Time
	logger    *zap.Logger
}

// NewReservationService creates a new ReservationService.
func NewReservationService(
	validator *reservation.Validator,
	notifier Notifier,
	logger *zap.Logger,
) *ReservationService {
	return &ReservationService{
		validator: validator,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger,
	}
}

// Submit validates the payload, assigns a reservation ID and notifies the
// operator and customer. Notification failures are logged, never returned:
// once validated, the reservation is accepted.
func (s *ReservationService) Submit(ctx context.Context, raw map[string]any) (*SubmitResult, error) {
	result := s.validator.Validate(raw)
	if !result.Valid() {
		metrics.ReservationsTotal.WithLabelValues("rejected").Inc()
		s.logger.Info("reservation rejected",
			zap.Int("violations", len(result.Errors)),
		)
		return nil, result.Err()
	}

	booking := *result.Booking
	id := reservation.NewReservationID(s.now())

	s.logger.Info("reservation accepted",
		zap.Int64("reservation_id", id),
		zap.String("service_type", booking.ServiceType),
		zap.String("date", booking.Date),
		zap.String("time", booking.Time),
	)

	// Mail delivery outlives a client that disconnects mid-request.
	report := s.notifier.Dispatch(context.WithoutCancel(ctx), id, booking)

	metrics.ReservationsTotal.WithLabelValues("accepted").Inc()
	return &SubmitResult{
		ReservationID: id,
		Booking:       booking,
		Notifications: report,
	}, nil
}
