package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/domain/route"
	"github.com/vtc-premium/service-reservation/internal/maps"
)

var (
	louvre = route.Coordinate{Longitude: 2.3376, Latitude: 48.8606}
	orly   = route.Coordinate{Longitude: 2.3794, Latitude: 48.7262}
)

type estimateFunc func(ctx context.Context, origin, destination maps.Place) (maps.Trip, error)

func (f estimateFunc) Estimate(ctx context.Context, origin, destination maps.Place) (maps.Trip, error) {
	return f(ctx, origin, destination)
}

func tripOf(meters, seconds float64) maps.Trip {
	return maps.Trip{
		From:     louvre,
		To:       orly,
		Estimate: route.Estimate{DistanceMeters: meters, DurationSeconds: seconds, DurationKnown: true},
	}
}

func fixedEstimator(trip maps.Trip) estimateFunc {
	return func(context.Context, maps.Place, maps.Place) (maps.Trip, error) { return trip, nil }
}

type submitCall struct {
	req reservation.Request
	key string
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls []submitCall
	errs  []error
}

func (s *stubSubmitter) Submit(_ context.Context, req reservation.Request, key string) (*SubmitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, submitCall{req: req, key: key})
	if n := len(s.calls) - 1; n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return &SubmitResponse{Success: true, Message: "Réservation enregistrée avec succès", ReservationID: 1760000000000}, nil
}

type stubReverse struct{ name string }

func (s stubReverse) ReverseGeocode(context.Context, route.Coordinate) (string, error) {
	return s.name, nil
}

func newSession(est TripEstimator, sub BookingSubmitter) *Session {
	return NewSession(SessionConfig{
		Estimator:       est,
		Reverse:         stubReverse{name: "Rue de Rivoli, 75001 Paris"},
		Rates:           fare.DefaultRateTable(),
		Submitter:       sub,
		OperatorContact: "06 12 34 56 78",
	})
}

func validForm() BookingForm {
	return BookingForm{
		Date:       "2030-05-01",
		Time:       "08:30",
		Name:       "Jean Dupont",
		Phone:      "06 12 34 56 78",
		Email:      "jean@example.com",
		Passengers: 2,
	}
}

func quoted(t *testing.T, sub BookingSubmitter) *Session {
	t.Helper()
	s := newSession(fixedEstimator(tripOf(12345, 1500)), sub)
	_, err := s.RequestQuote(context.Background(), "Musée du Louvre, Paris", "Aéroport d'Orly", fare.TierStandard)
	require.NoError(t, err)
	require.Equal(t, StateQuoteReady, s.State())
	return s
}

func TestSession_QuoteReady(t *testing.T) {
	s := newSession(fixedEstimator(tripOf(12345, 1500)), &stubSubmitter{})

	q, err := s.RequestQuote(context.Background(), " Musée du Louvre ", "Aéroport d'Orly", fare.TierStandard)
	require.NoError(t, err)

	assert.Equal(t, StateQuoteReady, s.State())
	assert.Equal(t, "Musée du Louvre", q.Pickup)
	assert.InDelta(t, 23.5175, q.Price, 1e-9)
	assert.Equal(t, "25 min", q.DurationDisplay())
	assert.Equal(t, q.Price, s.Quote().Price)
}

func TestSession_QuoteInputErrorsKeepState(t *testing.T) {
	s := newSession(fixedEstimator(tripOf(1000, 60)), &stubSubmitter{})

	_, err := s.RequestQuote(context.Background(), "  ", "Orly", fare.TierStandard)
	assert.ErrorIs(t, err, ErrEmptyAddress)

	_, err = s.RequestQuote(context.Background(), "Louvre", "Orly", "limousine")
	assert.ErrorIs(t, err, fare.ErrInvalidTier)

	assert.Equal(t, StateIdle, s.State())
}

func TestSession_QuoteFailureReturnsToIdle(t *testing.T) {
	failing := estimateFunc(func(context.Context, maps.Place, maps.Place) (maps.Trip, error) {
		return maps.Trip{}, &maps.AddressResolutionError{Side: "destination", Query: "nulle part", Err: maps.ErrLocationNotFound}
	})
	s := newSession(failing, &stubSubmitter{})

	_, err := s.RequestQuote(context.Background(), "Louvre, Paris", "nulle part", fare.TierStandard)
	assert.ErrorIs(t, err, maps.ErrLocationNotFound)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Quote())
}

func TestSession_NewerQuoteSupersedesInFlight(t *testing.T) {
	started := make(chan struct{})
	est := estimateFunc(func(ctx context.Context, origin, _ maps.Place) (maps.Trip, error) {
		if origin.Address == "slow" {
			close(started)
			<-ctx.Done()
			return maps.Trip{}, ctx.Err()
		}
		return tripOf(10000, 900), nil
	})
	s := newSession(est, &stubSubmitter{})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.RequestQuote(context.Background(), "slow", "Orly", fare.TierStandard)
		errCh <- err
	}()
	<-started

	q, err := s.RequestQuote(context.Background(), "fast", "Orly", fare.TierPremium)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded quote did not return")
	}
	assert.Equal(t, StateQuoteReady, s.State())
	assert.Equal(t, q.Price, s.Quote().Price)
	assert.Equal(t, fare.TierPremium, s.Quote().Tier.Key)
}

func TestSession_LateResultOfSupersededQuoteIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	est := estimateFunc(func(_ context.Context, origin, _ maps.Place) (maps.Trip, error) {
		if origin.Address == "stubborn" {
			close(started)
			<-release
			return tripOf(99000, 6000), nil
		}
		return tripOf(10000, 900), nil
	})
	s := newSession(est, &stubSubmitter{})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.RequestQuote(context.Background(), "stubborn", "Orly", fare.TierStandard)
		errCh <- err
	}()
	<-started

	_, err := s.RequestQuote(context.Background(), "fast", "Orly", fare.TierStandard)
	require.NoError(t, err)
	close(release)

	assert.ErrorIs(t, <-errCh, ErrSuperseded)
	assert.Equal(t, "fast", s.Quote().Pickup)
	assert.InDelta(t, 10.0, s.Quote().DistanceKm, 1e-9)
}

func TestSession_SubmitFreezesSnapshot(t *testing.T) {
	sub := &stubSubmitter{}
	s := quoted(t, sub)

	conf, err := s.Submit(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, s.State())
	assert.Equal(t, int64(1760000000000), conf.ReservationID)
	assert.False(t, conf.ManualContactRequired)
	assert.Equal(t, "23.52 €", conf.Price)

	require.Len(t, sub.calls, 1)
	req := sub.calls[0].req
	assert.InDelta(t, 12.3, req.DistanceKm, 1e-9)
	assert.Equal(t, 23.52, req.Price)
	assert.Equal(t, "25 min", req.Duration)
	assert.Equal(t, fare.TierStandard, req.ServiceType)
	assert.Equal(t, "Jean Dupont", req.Name)
	assert.NotEmpty(t, sub.calls[0].key)
}

func TestSession_RejectionReturnsToQuoteReady(t *testing.T) {
	sub := &stubSubmitter{errs: []error{&RejectedError{
		Message:  "Données invalides",
		Messages: []string{"Numéro de téléphone invalide"},
		Fields:   []reservation.FieldError{{Field: reservation.FieldPhone, Message: "Numéro de téléphone invalide"}},
	}}}
	s := quoted(t, sub)

	conf, err := s.Submit(context.Background(), validForm())
	assert.Nil(t, conf)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, StateQuoteReady, s.State())
	require.Len(t, s.FieldErrors(), 1)
	assert.Equal(t, reservation.FieldPhone, s.FieldErrors()[0].Field)

	_, err = s.Submit(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, s.State())
	assert.Empty(t, s.FieldErrors())
}

func TestSession_TransportFailureThenRetry(t *testing.T) {
	sub := &stubSubmitter{errs: []error{&TransportError{StatusCode: 500, Message: "Erreur serveur. Veuillez réessayer."}}}
	s := quoted(t, sub)

	conf, err := s.Submit(context.Background(), validForm())
	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	require.NotNil(t, conf)

	assert.Equal(t, StateFailed, s.State())
	assert.True(t, conf.ManualContactRequired)
	assert.Contains(t, conf.Message, "06 12 34 56 78")
	assert.Equal(t, "Musée du Louvre, Paris", conf.Pickup)

	conf, err = s.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, s.State())
	assert.False(t, conf.ManualContactRequired)

	require.Len(t, sub.calls, 2)
	assert.Equal(t, sub.calls[0].key, sub.calls[1].key)
	assert.Equal(t, sub.calls[0].req, sub.calls[1].req)
}

func TestSession_InvalidTransitions(t *testing.T) {
	s := newSession(fixedEstimator(tripOf(1000, 60)), &stubSubmitter{})

	_, err := s.Submit(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.Retry(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, s.Reset(), ErrInvalidTransition)
}

func TestSession_ResetAfterConfirmation(t *testing.T) {
	s := quoted(t, &stubSubmitter{})
	_, err := s.Submit(context.Background(), validForm())
	require.NoError(t, err)

	_, err = s.RequestQuote(context.Background(), "Louvre, Paris", "Orly", fare.TierStandard)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Quote())
	assert.Nil(t, s.Confirmation())
}

func TestSession_CurrentAddress(t *testing.T) {
	s := newSession(fixedEstimator(tripOf(1000, 60)), &stubSubmitter{})

	addr, err := s.CurrentAddress(context.Background(), louvre)
	require.NoError(t, err)
	assert.Equal(t, "Rue de Rivoli, 75001 Paris", addr)

	_, err = s.CurrentAddress(context.Background(), route.Coordinate{Longitude: 200})
	assert.Error(t, err)
}

func TestState_Transitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransitionTo(StateQuoting))
	assert.False(t, StateIdle.CanTransitionTo(StateSubmitting))
	assert.True(t, StateFailed.CanTransitionTo(StateSubmitting))
	assert.False(t, StateConfirmed.CanTransitionTo(StateSubmitting))
	assert.True(t, StateConfirmed.IsTerminal())
	assert.False(t, StateQuoteReady.IsTerminal())
	assert.False(t, State("bogus").IsValid())
}

func TestSession_ConflictLandsInFailed(t *testing.T) {
	sub := &stubSubmitter{errs: []error{&TransportError{StatusCode: 409, Message: "Requête déjà en cours de traitement"}}}
	s := quoted(t, sub)

	conf, err := s.Submit(context.Background(), validForm())
	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, StateFailed, s.State())
	require.NotNil(t, conf)
	assert.True(t, conf.ManualContactRequired)
	assert.Empty(t, s.FieldErrors())
}
