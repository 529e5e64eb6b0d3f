package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/maps"
)

// TripEstimator resolves two places and estimates the route between them.
type TripEstimator interface {
	Estimate(ctx context.Context, origin, destination maps.Place) (maps.Trip, error)
}

// BookingSubmitter sends a frozen booking to the server.
type BookingSubmitter interface {
	Submit(ctx context.Context, req reservation.Request, idempotencyKey string) (*SubmitResponse, error)
}

// BookingForm holds the customer fields entered after a quote.
type BookingForm struct {
	Date       string
	Time       string
	Name       string
	Phone      string
	Email      string
	Passengers int
	Notes      string
}

// Confirmation is what the user sees after submitting. When
// ManualContactRequired is set, the server never acknowledged the booking.
type Confirmation struct {
	ReservationID         int64
	Date                  string
	Time                  string
	Pickup                string
	Destination           string
	Price                 string
	ManualContactRequired bool
	Message               string
}

// Session is one user's quote-then-book flow. All methods are safe for
// concurrent use; a newer Quote supersedes one still in flight.
type Session struct {
	estimator TripEstimator
	reverse   maps.ReverseGeocoder
	rates     *fare.RateTable
	submitter BookingSubmitter
	contact   string
	logger    *zap.Logger

	mu           sync.Mutex
	state        State
	generation   uint64
	cancelQuote  context.CancelFunc
	quote        *fare.Quote
	snapshot     *reservation.Request
	key          string
	fieldErrors  []reservation.FieldError
	confirmation *Confirmation
}

// SessionConfig wires a Session.
type SessionConfig struct {
	Estimator TripEstimator
	Reverse   maps.ReverseGeocoder
	Rates     *fare.RateTable
	Submitter BookingSubmitter
	// OperatorContact is shown when a booking could not reach the server.
	OperatorContact string
	Logger          *zap.Logger
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		estimator: cfg.Estimator,
		reverse:   cfg.Reverse,
		rates:     cfg.Rates,
		submitter: cfg.Submitter,
		contact:   cfg.OperatorContact,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Quote returns the current quote, if any.
func (s *Session) Quote() *fare.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil {
		return nil
	}
	q := *s.quote
	return &q
}

// FieldErrors returns the errors of the last rejected submission.
func (s *Session) FieldErrors() []reservation.FieldError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reservation.FieldError(nil), s.fieldErrors...)
}

// Confirmation returns the confirmation of a Confirmed or Failed session.
func (s *Session) Confirmation() *Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmation
}

// CurrentAddress resolves the user's position to a display address for the pickup field.
func (s *Session) CurrentAddress(ctx context.Context, at route.Coordinate) (string, error) {
	if s.reverse == nil {
		return "", maps.ErrNotConfigured
	}
	if err := at.Validate(); err != nil {
		return "", err
	}
	return s.reverse.ReverseGeocode(ctx, at)
}

// RequestQuote prices the trip for tier. It cancels any quote still in
// flight; a superseded call returns ErrSuperseded and leaves the state to
// the newer one. A geocoding or routing failure returns the session to Idle.
func (s *Session) RequestQuote(ctx context.Context, pickup, destination, tier string) (*fare.Quote, error) {
	pickup, destination = strings.TrimSpace(pickup), strings.TrimSpace(destination)
	if pickup == "" || destination == "" {
		return nil, ErrEmptyAddress
	}
	if _, err := s.rates.Tier(tier); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.state.CanTransitionTo(StateQuoting) {
		from := s.state
		s.mu.Unlock()
		return nil, &TransitionError{From: from, To: StateQuoting}
	}
	if s.cancelQuote != nil {
		s.cancelQuote()
	}
	s.generation++
	gen := s.generation
	qctx, cancel := context.WithCancel(ctx)
	s.cancelQuote = cancel
	s.state = StateQuoting
	s.mu.Unlock()

	trip, err := s.estimator.Estimate(qctx, maps.AddressPlace(pickup), maps.AddressPlace(destination))

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	if gen != s.generation {
		return nil, ErrSuperseded
	}
	s.cancelQuote = nil

	if err != nil {
		s.state = StateIdle
		s.quote = nil
		s.logger.Warn("quote failed", zap.Error(err))
		return nil, err
	}

	q, err := fare.NewQuote(s.rates, pickup, destination, trip.From, trip.To, trip.Estimate, tier)
	if err != nil {
		s.state = StateIdle
		s.quote = nil
		return nil, err
	}
	s.state = StateQuoteReady
	s.quote = &q
	s.fieldErrors = nil
	out := q
	return &out, nil
}

// Submit freezes the current quote with the form into a booking and sends it.
//
// On success the session is Confirmed. A validation rejection (400) returns
// the session to QuoteReady with FieldErrors set. Any other failure, including
// other 4xx such as the 409 of a key still in flight, moves it to Failed and
// returns a local confirmation, with ManualContactRequired set, together with
// the error.
func (s *Session) Submit(ctx context.Context, form BookingForm) (*Confirmation, error) {
	s.mu.Lock()
	if s.state != StateQuoteReady || s.quote == nil {
		from := s.state
		s.mu.Unlock()
		return nil, &TransitionError{From: from, To: StateSubmitting}
	}
	snapshot := freeze(*s.quote, form)
	s.snapshot = &snapshot
	s.key = uuid.NewString()
	s.state = StateSubmitting
	s.fieldErrors = nil
	s.mu.Unlock()

	return s.send(ctx)
}

// Retry resends the frozen booking of a Failed session with the same
// idempotency key, so a booking the server did receive is not duplicated.
func (s *Session) Retry(ctx context.Context) (*Confirmation, error) {
	s.mu.Lock()
	if s.state != StateFailed || s.snapshot == nil {
		from := s.state
		s.mu.Unlock()
		return nil, &TransitionError{From: from, To: StateSubmitting}
	}
	s.state = StateSubmitting
	s.confirmation = nil
	s.mu.Unlock()

	return s.send(ctx)
}

// Reset returns a finished session to Idle, dropping the quote and booking.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsTerminal() {
		return &TransitionError{From: s.state, To: StateIdle}
	}
	s.state = StateIdle
	s.quote = nil
	s.snapshot = nil
	s.key = ""
	s.fieldErrors = nil
	s.confirmation = nil
	return nil
}

func (s *Session) send(ctx context.Context) (*Confirmation, error) {
	s.mu.Lock()
	snapshot, key := *s.snapshot, s.key
	s.mu.Unlock()

	resp, err := s.submitter.Submit(ctx, snapshot, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		conf := s.confirmationFor(snapshot)
		conf.ReservationID = resp.ReservationID
		conf.Message = resp.Message
		s.state = StateConfirmed
		s.confirmation = &conf
		return &conf, nil
	}

	var rejected *RejectedError
	if errors.As(err, &rejected) {
		s.state = StateQuoteReady
		s.fieldErrors = rejected.Fields
		if len(s.fieldErrors) == 0 {
			for _, m := range rejected.Messages {
				s.fieldErrors = append(s.fieldErrors, reservation.FieldError{Message: m})
			}
		}
		s.snapshot = nil
		s.key = ""
		return nil, err
	}

	s.logger.Error("booking submission failed", zap.String("idempotency_key", key), zap.Error(err))
	conf := s.confirmationFor(snapshot)
	conf.ManualContactRequired = true
	conf.Message = s.manualContactMessage()
	s.state = StateFailed
	s.confirmation = &conf
	return &conf, err
}

func (s *Session) manualContactMessage() string {
	msg := "Votre demande n'a pas pu être transmise."
	if s.contact != "" {
		msg += fmt.Sprintf(" Merci d'appeler le %s pour confirmer votre réservation.", s.contact)
	} else {
		msg += " Merci de nous contacter par téléphone pour confirmer votre réservation."
	}
	return msg
}

func freeze(q fare.Quote, form BookingForm) reservation.Request {
	return reservation.Request{
		Pickup:      q.Pickup,
		Destination: q.Destination,
		DistanceKm:  math.Round(q.DistanceKm*10) / 10,
		Duration:    q.DurationDisplay(),
		Price:       fare.RoundCents(q.Price),
		ServiceType: q.Tier.Key,
		Date:        form.Date,
		Time:        form.Time,
		Name:        form.Name,
		Phone:       form.Phone,
		Email:       form.Email,
		Passengers:  form.Passengers,
		Notes:       form.Notes,
	}
}

func (s *Session) confirmationFor(r reservation.Request) Confirmation {
	return Confirmation{
		Date:        r.Date,
		Time:        r.Time,
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Price:       fare.FormatPrice(r.Price, s.rates.Currency()),
	}
}
