package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/config"
	"github.com/vtc-premium/service-reservation/internal/events"
	"github.com/vtc-premium/service-reservation/internal/logger"
	"github.com/vtc-premium/service-reservation/internal/notification"
)

const serviceName = "reservation-mailer"

// The mailer drains queued reservation e-mails from Kafka and relays them
// over SMTP. It pairs with the server running VTC_NOTIFY_TRANSPORT=kafka.
func main() {
	cfg, err := config.Load("VTC")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	smtpSender := notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.Notify.SMTPHost,
		Port:     cfg.Notify.SMTPPort,
		Username: cfg.Notify.SMTPUser,
		Password: cfg.Notify.SMTPPassword,
		Timeout:  cfg.Notify.Timeout,
	})
	deliver := func(ctx context.Context, evt events.NotificationRequestedEvent) error {
		return smtpSender.Send(ctx, notification.MessageFromEvent(evt))
	}

	consumer := events.NewNotificationConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, deliver, log)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting notification consumer",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("notification consumer error", zap.Error(err))
	}
	log.Info(serviceName + " stopped")
}
