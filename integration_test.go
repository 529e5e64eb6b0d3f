//go:build integration

package main_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/events"
	"github.com/vtc-premium/service-reservation/internal/notification"
	"github.com/vtc-premium/service-reservation/internal/repository"
)

// TestTierRepository_SeedLoadAndDeactivate verifies the rate table round trip
// through Postgres, including first-start seeding and tier retirement.
func TestTierRepository_SeedLoadAndDeactivate(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewGormTierRepository(db)

	require.NoError(t, repo.SeedIfEmpty(ctx, fare.DefaultRateTable().Tiers()))
	// Seeding again must not duplicate or overwrite.
	require.NoError(t, repo.SeedIfEmpty(ctx, fare.TwoTierRateTable().Tiers()))

	rt, err := repository.LoadRateTable(ctx, repo, 5, "EUR")
	require.NoError(t, err)
	assert.Equal(t, []string{fare.TierBusiness, fare.TierPremium, fare.TierStandard}, rt.Keys())
	assert.Equal(t, "Standard (1.50€/km)", rt.Describe(fare.TierStandard))

	require.NoError(t, repo.Upsert(ctx, fare.ServiceTier{Key: fare.TierPremium, Label: "Van", PerKm: 2.20}, 1))
	require.NoError(t, repo.Deactivate(ctx, fare.TierBusiness))

	rt, err = repository.LoadRateTable(ctx, repo, 5, "EUR")
	require.NoError(t, err)
	assert.False(t, rt.Has(fare.TierBusiness))

	price, err := rt.Price(10, fare.TierPremium)
	require.NoError(t, err)
	assert.InDelta(t, 27.0, price, 1e-9)
}

// TestKafkaTransport_MailerReceivesBothNotifications verifies that a dispatch
// over the Kafka transport reaches the mailer's consumer for both recipients.
func TestKafkaTransport_MailerReceivesBothNotifications(t *testing.T) {
	brokers, cleanup := setupKafka(t, events.TopicReservationNotifications)
	defer cleanup()

	rec := startMailer(t, brokers, events.TopicReservationNotifications)
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	logger, _ := zap.NewDevelopment()
	producer := events.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	dispatcher := notification.NewDispatcher(
		notification.NewKafkaSender(producer, events.TopicReservationNotifications, "service-reservation"),
		fare.DefaultRateTable(),
		notification.Config{OperatorEmail: "vtc@example.com", SenderEmail: "no-reply@example.com", ContactPhone: "06 12 34 56 78"},
		logger,
	)

	booking := reservation.ValidatedBooking{
		Name:        "Jean Dupont",
		Phone:       "06 12 34 56 78",
		Email:       "jean@example.com",
		Pickup:      "Gare de Lyon, Paris",
		Destination: "Aéroport Charles de Gaulle",
		Date:        "2030-05-01",
		Time:        "08:30",
		ServiceType: fare.TierPremium,
		Passengers:  "2",
		Price:       "61.00 €",
	}
	const id int64 = 1760000000000

	report := dispatcher.Dispatch(context.Background(), id, booking)
	require.Equal(t, notification.StatusSent, report.Operator.Status)
	require.Equal(t, notification.StatusSent, report.Customer.Status)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 20*time.Second, 200*time.Millisecond, "mailer did not receive both notifications")

	byRecipient := map[string]events.NotificationRequestedEvent{}
	for _, evt := range rec.snapshot() {
		assert.Equal(t, id, evt.ReservationID)
		byRecipient[evt.Recipient] = evt
	}
	assert.Equal(t, "vtc@example.com", byRecipient[notification.RecipientOperator].To)
	assert.Contains(t, byRecipient[notification.RecipientOperator].Subject, "Jean Dupont")
	assert.Equal(t, "jean@example.com", byRecipient[notification.RecipientCustomer].To)

	msg := notification.MessageFromEvent(byRecipient[notification.RecipientCustomer])
	assert.Contains(t, msg.Body, "06 12 34 56 78")
}
