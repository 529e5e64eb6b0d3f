package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/metrics"
)

// ErrDeliveryFailed matches every notification failure.
var ErrDeliveryFailed = errors.New("notification delivery failed")

// DeliveryError reports which recipient could not be notified.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is makes every DeliveryError match ErrDeliveryFailed.
func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// Outcome statuses.
const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Outcome is the result of one notification attempt.
type Outcome struct {
	Status string
	Err    error
}

// Report holds the independent outcomes of a dispatch.
type Report struct {
	Operator Outcome
	Customer Outcome
}

// TierDescriber renders a tier for the operator, e.g. "Standard (1.50€/km)".
type TierDescriber interface {
	Describe(tierKey string) string
}

// Config holds addressing for the dispatcher.
type Config struct {
	OperatorEmail string
	SenderEmail   string
	// ContactPhone is shown to customers in their confirmation.
	ContactPhone string
	Timeout      time.Duration
}

// Dispatcher renders and sends reservation e-mails.
type Dispatcher struct {
	sender Sender
	tiers  TierDescriber
	cfg    Config
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sender Sender, tiers TierDescriber, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Dispatcher{sender: sender, tiers: tiers, cfg: cfg, logger: logger}
}

// NotifyOperator sends the booking alert to the operator inbox.
func (d *Dispatcher) NotifyOperator(ctx context.Context, id int64, b reservation.ValidatedBooking) error {
	if d.cfg.OperatorEmail == "" {
		return &DeliveryError{Recipient: RecipientOperator, Err: errors.New("operator address not configured")}
	}
	body, err := render(operatorTemplate, d.data(id, b))
	if err != nil {
		return &DeliveryError{Recipient: RecipientOperator, Err: err}
	}
	return d.send(ctx, id, Message{
		Recipient: RecipientOperator,
		From:      d.cfg.SenderEmail,
		To:        d.cfg.OperatorEmail,
		Subject:   OperatorSubject(b),
		Body:      body,
	})
}

// NotifyCustomer sends the confirmation to the customer's address.
func (d *Dispatcher) NotifyCustomer(ctx context.Context, id int64, b reservation.ValidatedBooking) error {
	if !b.HasCustomerEmail() {
		return &DeliveryError{Recipient: RecipientCustomer, Err: errors.New("no customer address")}
	}
	body, err := render(customerTemplate, d.data(id, b))
	if err != nil {
		return &DeliveryError{Recipient: RecipientCustomer, Err: err}
	}
	return d.send(ctx, id, Message{
		Recipient: RecipientCustomer,
		From:      d.cfg.SenderEmail,
		To:        b.Email,
		Subject:   CustomerSubject(b),
		Body:      body,
	})
}

// Dispatch notifies operator and customer concurrently. Outcomes are logged
// and counted; a failure on one side does not affect the other.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64, b reservation.ValidatedBooking) Report {
	var (
		report Report
		wg     sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		report.Operator = outcome(d.NotifyOperator(ctx, id, b))
	}()

	if b.HasCustomerEmail() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Customer = outcome(d.NotifyCustomer(ctx, id, b))
		}()
	} else {
		report.Customer = Outcome{Status: StatusSkipped}
	}
	wg.Wait()

	d.record(id, RecipientOperator, report.Operator)
	d.record(id, RecipientCustomer, report.Customer)
	return report
}

// SelfTest sends a test message to the operator to verify the mail configuration.
func (d *Dispatcher) SelfTest(ctx context.Context) error {
	if d.cfg.OperatorEmail == "" {
		return &DeliveryError{Recipient: RecipientSelfTest, Err: errors.New("operator address not configured")}
	}
	return d.send(ctx, 0, selfTestMessage(d.cfg.SenderEmail, d.cfg.OperatorEmail))
}

func (d *Dispatcher) send(ctx context.Context, id int64, msg Message) error {
	ctx, cancel := context.WithTimeout(WithReservationID(ctx, id), d.cfg.Timeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		return &DeliveryError{Recipient: msg.Recipient, Err: err}
	}
	return nil
}

func (d *Dispatcher) data(id int64, b reservation.ValidatedBooking) messageData {
	service := b.ServiceType
	if d.tiers != nil {
		service = d.tiers.Describe(b.ServiceType)
	}
	return messageData{
		ReservationID: reservation.FormatReservationID(id),
		Booking:       b,
		Service:       service,
		Contact:       d.cfg.ContactPhone,
	}
}

func (d *Dispatcher) record(id int64, recipient string, o Outcome) {
	metrics.NotificationsTotal.WithLabelValues(recipient, o.Status).Inc()

	fields := []zap.Field{
		zap.Int64("reservation_id", id),
		zap.String("recipient", recipient),
		zap.String("outcome", o.Status),
	}
	if o.Err != nil {
		d.logger.Error("reservation notification failed", append(fields, zap.Error(o.Err))...)
		return
	}
	d.logger.Info("reservation notification", fields...)
}

func outcome(err error) Outcome {
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	return Outcome{Status: StatusSent}
}
