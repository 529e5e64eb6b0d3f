package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/events"
)

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures an SMTP relay. For SendGrid the user is "apikey" and
// the password is the API key.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// DefaultTimeout bounds one delivery. It stays under the client's request
// timeout so a submission answers before the widget gives up.
const DefaultTimeout = 8 * time.Second

// SMTPSender delivers messages through an SMTP relay, upgrading to TLS when offered.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &SMTPSender{cfg: cfg}
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

// buildMessage renders msg as a plain-text UTF-8 mail. Addresses that do not
// parse, including ones carrying CR or LF, are rejected.
func buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(headerSafe(msg.Subject))
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// EventPublisher is the subset of the Kafka producer used for queued delivery.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, evt events.CloudEvent) error
}

// KafkaSender queues messages on a topic; the mailer delivers them.
type KafkaSender struct {
	publisher EventPublisher
	topic     string
	source    string
}

// NewKafkaSender creates a KafkaSender.
func NewKafkaSender(publisher EventPublisher, topic, source string) *KafkaSender {
	if topic == "" {
		topic = events.TopicReservationNotifications
	}
	return &KafkaSender{publisher: publisher, topic: topic, source: source}
}

// Send implements Sender. Success means the message was queued, not delivered.
func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	reservationID, _ := ReservationIDFromContext(ctx)
	evt, err := events.NewCloudEvent(s.source, events.NotificationRequested, events.NotificationRequestedEvent{
		ReservationID: reservationID,
		Recipient:     msg.Recipient,
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		Body:          msg.Body,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.publisher.PublishEvent(ctx, s.topic, strconv.FormatInt(reservationID, 10), evt)
}

// MessageFromEvent rebuilds a message from a queued event.
func MessageFromEvent(evt events.NotificationRequestedEvent) Message {
	return Message{
		Recipient: evt.Recipient,
		From:      evt.From,
		To:        evt.To,
		Subject:   evt.Subject,
		Body:      evt.Body,
	}
}

type reservationIDKey struct{}

// WithReservationID tags ctx with the reservation being notified.
func WithReservationID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, reservationIDKey{}, id)
}

// ReservationIDFromContext returns the reservation set by WithReservationID.
func ReservationIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(reservationIDKey{}).(int64)
	return id, ok
}

// LogSender only logs messages. It backs the "none" transport used in
// development when no relay is available.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification not sent (transport disabled)",
		zap.String("recipient", msg.Recipient),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
