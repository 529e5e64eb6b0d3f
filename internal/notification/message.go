package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
)

// Recipient kinds, used in logs, metrics and queued events.
const (
	RecipientOperator = "operator"
	RecipientCustomer = "customer"
	RecipientSelfTest = "self-test"
)

// Message is a rendered plain-text e-mail.
type Message struct {
	Recipient string
	From      string
	To        string
	Subject   string
	Body      string
}

type messageData struct {
	ReservationID string
	Booking       reservation.ValidatedBooking
	Service       string
	Contact       string
}

var operatorTemplate = template.Must(template.New("operator").Parse(`NOUVELLE RÉSERVATION VTC
Référence : {{.ReservationID}}

CLIENT
  Nom       : {{.Booking.Name}}
  Téléphone : {{.Booking.Phone}}
{{- if .Booking.Email}}
  Email     : {{.Booking.Email}}
{{- end}}

COURSE
  Date        : {{.Booking.Date}}
  Heure       : {{.Booking.Time}}
  Départ      : {{.Booking.Pickup}}
  Destination : {{.Booking.Destination}}
  Distance    : {{.Booking.Distance}}
  Durée       : {{.Booking.Duration}}
  Service     : {{.Service}}
  Passagers   : {{.Booking.Passengers}}
{{- if .Booking.Notes}}
  Notes       : {{.Booking.Notes}}
{{- end}}

PRIX ESTIMÉ : {{.Booking.Price}}

Action : contactez le client au {{.Booking.Phone}} pour confirmer la réservation.

--
Message envoyé automatiquement par le système de réservation VTC Premium.
`))

var customerTemplate = template.Must(template.New("customer").Parse(`Merci {{.Booking.Name}} !

Votre réservation a bien été enregistrée.

Récapitulatif de votre course
  Date        : {{.Booking.Date}}
  Heure       : {{.Booking.Time}}
  Départ      : {{.Booking.Pickup}}
  Destination : {{.Booking.Destination}}
  Prix estimé : {{.Booking.Price}}

Notre chauffeur vous contactera prochainement pour confirmer votre réservation.
{{- if .Contact}}
En cas de question, contactez-nous au {{.Contact}}.
{{- end}}
`))

func render(t *template.Template, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s message: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// OperatorSubject is the subject line of the operator alert.
func OperatorSubject(b reservation.ValidatedBooking) string {
	return fmt.Sprintf("NOUVELLE RÉSERVATION - %s - %s %s", b.Name, b.Date, b.Time)
}

// CustomerSubject is the subject line of the customer confirmation.
func CustomerSubject(b reservation.ValidatedBooking) string {
	return fmt.Sprintf("Confirmation de votre réservation VTC - %s", b.Date)
}

func selfTestMessage(from, to string) Message {
	return Message{
		Recipient: RecipientSelfTest,
		From:      from,
		To:        to,
		Subject:   "Test configuration email",
		Body:      "Test de configuration du serveur email.\n",
	}
}

// headerSafe drops CR and LF so user input cannot inject headers.
func headerSafe(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}
