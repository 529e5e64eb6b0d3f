package notification

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/events"
)

type recordingSender struct {
	mu       sync.Mutex
	messages []Message
	fail     map[string]error
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.Recipient]; err != nil {
		return err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) byRecipient(r string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Recipient == r {
			return m, true
		}
	}
	return Message{}, false
}

func booking() reservation.ValidatedBooking {
	return reservation.ValidatedBooking{
		Name:        "Jean Dupont",
		Phone:       "0612345678",
		Email:       "jean@example.com",
		Pickup:      "Gare de Lyon, Paris",
		Destination: "Aéroport CDG",
		Date:        "2026-10-20",
		Time:        "08:30",
		ServiceType: fare.TierPremium,
		Passengers:  "2",
		Notes:       "2 valises",
		Distance:    "32.4 km",
		Duration:    "41 min",
		Price:       "69.80 €",
	}
}

func newDispatcher(sender Sender) *Dispatcher {
	return NewDispatcher(sender, fare.DefaultRateTable(), Config{
		OperatorEmail: "ops@vtc.example",
		SenderEmail:   "noreply@vtc.example",
		ContactPhone:  "06 12 34 56 78",
	}, zap.NewNop())
}

func TestDispatch_SendsBoth(t *testing.T) {
	sender := &recordingSender{}
	report := newDispatcher(sender).Dispatch(context.Background(), 1760880000000, booking())

	assert.Equal(t, StatusSent, report.Operator.Status)
	assert.Equal(t, StatusSent, report.Customer.Status)

	op, ok := sender.byRecipient(RecipientOperator)
	require.True(t, ok)
	assert.Equal(t, "ops@vtc.example", op.To)
	assert.Equal(t, "noreply@vtc.example", op.From)
	assert.Equal(t, "NOUVELLE RÉSERVATION - Jean Dupont - 2026-10-20 08:30", op.Subject)
	assert.Contains(t, op.Body, "Premium (2.00€/km)")
	assert.Contains(t, op.Body, "69.80 €")
	assert.Contains(t, op.Body, "Notes       : 2 valises")
	assert.Contains(t, op.Body, "1760880000000")

	cu, ok := sender.byRecipient(RecipientCustomer)
	require.True(t, ok)
	assert.Equal(t, "jean@example.com", cu.To)
	assert.Equal(t, "Confirmation de votre réservation VTC - 2026-10-20", cu.Subject)
	assert.Contains(t, cu.Body, "Merci Jean Dupont !")
	assert.Contains(t, cu.Body, "06 12 34 56 78")
}

func TestDispatch_SkipsCustomerWithoutEmail(t *testing.T) {
	sender := &recordingSender{}
	b := booking()
	b.Email = ""
	b.Notes = ""

	report := newDispatcher(sender).Dispatch(context.Background(), 1, b)

	assert.Equal(t, StatusSent, report.Operator.Status)
	assert.Equal(t, StatusSkipped, report.Customer.Status)
	assert.Len(t, sender.messages, 1)

	op, _ := sender.byRecipient(RecipientOperator)
	assert.NotContains(t, op.Body, "Email")
	assert.NotContains(t, op.Body, "Notes")
}

func TestDispatch_OperatorFailureDoesNotBlockCustomer(t *testing.T) {
	sender := &recordingSender{fail: map[string]error{RecipientOperator: errors.New("550 rejected")}}
	report := newDispatcher(sender).Dispatch(context.Background(), 1, booking())

	assert.Equal(t, StatusFailed, report.Operator.Status)
	assert.ErrorIs(t, report.Operator.Err, ErrDeliveryFailed)
	assert.Equal(t, StatusSent, report.Customer.Status)
}

func TestNotifyOperator_NotConfigured(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, nil, Config{}, zap.NewNop())

	err := d.NotifyOperator(context.Background(), 1, booking())
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, RecipientOperator, de.Recipient)
}

func TestNotifyOperator_RawTierWithoutDescriber(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, nil, Config{OperatorEmail: "ops@vtc.example"}, zap.NewNop())

	require.NoError(t, d.NotifyOperator(context.Background(), 1, booking()))
	assert.Contains(t, sender.messages[0].Body, "Service     : premium")
}

func TestSelfTest(t *testing.T) {
	sender := &recordingSender{}
	require.NoError(t, newDispatcher(sender).SelfTest(context.Background()))

	msg, ok := sender.byRecipient(RecipientSelfTest)
	require.True(t, ok)
	assert.Equal(t, "ops@vtc.example", msg.To)
}

type stubPublisher struct {
	topic string
	key   string
	evt   events.CloudEvent
	err   error
}

func (p *stubPublisher) PublishEvent(ctx context.Context, topic, key string, evt events.CloudEvent) error {
	p.topic, p.key, p.evt = topic, key, evt
	return p.err
}

func TestKafkaSender_QueuesEvent(t *testing.T) {
	pub := &stubPublisher{}
	d := newDispatcher(NewKafkaSender(pub, "", "vtc-server"))

	require.NoError(t, d.NotifyCustomer(context.Background(), 99, booking()))

	assert.Equal(t, events.TopicReservationNotifications, pub.topic)
	assert.Equal(t, "99", pub.key)
	assert.Equal(t, events.NotificationRequested, pub.evt.Type)

	var evt events.NotificationRequestedEvent
	require.NoError(t, pub.evt.ParseData(&evt))
	assert.Equal(t, int64(99), evt.ReservationID)
	assert.Equal(t, "jean@example.com", evt.To)

	msg := MessageFromEvent(evt)
	assert.Equal(t, RecipientCustomer, msg.Recipient)
	assert.Contains(t, msg.Body, "Merci Jean Dupont")
}

func TestKafkaSender_PublishFailure(t *testing.T) {
	pub := &stubPublisher{err: errors.New("broker down")}
	d := newDispatcher(NewKafkaSender(pub, "custom.topic", "vtc-server"))

	err := d.NotifyOperator(context.Background(), 1, booking())
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, "custom.topic", pub.topic)
}

// fakeSMTP accepts one session and returns the DATA payload.
func fakeSMTP(t *testing.T) (string, int, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 8BITMIME")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, _ := tp.ReadDotBytes()
				received <- string(data)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 OK")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, received
}

func TestSMTPSender_Send(t *testing.T) {
	host, port, received := fakeSMTP(t)
	sender := NewSMTPSender(SMTPConfig{Host: host, Port: port, Timeout: 2 * time.Second})

	err := sender.Send(context.Background(), Message{
		From:    "noreply@vtc.example",
		To:      "ops@vtc.example",
		Subject: "NOUVELLE RÉSERVATION - Jean",
		Body:    "Départ : Gare de Lyon\n",
	})
	require.NoError(t, err)

	select {
	case data := <-received:
		lower := strings.ToLower(data)
		assert.Contains(t, lower, "to: <ops@vtc.example>")
		assert.Contains(t, lower, "subject: =?utf-8?q?")
		assert.Contains(t, lower, "content-type: text/plain; charset=utf-8")
		assert.Contains(t, data, "D=C3=A9part")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSMTPSender_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second})
	err = sender.Send(context.Background(), Message{From: "a@b.co", To: "c@d.co"})
	assert.Error(t, err)
}

func TestBuildMessage_RejectsHeaderInjection(t *testing.T) {
	_, err := buildMessage(Message{From: "a@b.co", To: "c@d.co\r\nBcc: evil@x.co", Subject: "hi"})
	assert.Error(t, err)

	m, err := buildMessage(Message{From: "a@b.co", To: "c@d.co", Subject: "hi\r\nBcc: evil@x.co"})
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "\r\nBcc:")
}

func TestNewDispatcher_DefaultTimeout(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, nil, Config{}, zap.NewNop())
	assert.Equal(t, DefaultTimeout, d.cfg.Timeout)
	assert.Less(t, DefaultTimeout, 10*time.Second)

	d = NewDispatcher(&recordingSender{}, nil, Config{Timeout: 3 * time.Second}, zap.NewNop())
	assert.Equal(t, 3*time.Second, d.cfg.Timeout)
}

func TestLogSender_LogsInsteadOfSending(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	err := s.Send(context.Background(), Message{Recipient: RecipientOperator, To: "vtc@example.com", Subject: "hello"})
	require.NoError(t, err)

	entries := logs.FilterMessage("notification not sent (transport disabled)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "vtc@example.com", entries[0].ContextMap()["to"])
}
