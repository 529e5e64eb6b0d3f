package reservation

import (
	"strconv"
	"time"
)

// Wire field names of the booking payload posted by the widget.
const (
	FieldName        = "name"
	FieldPhone       = "phone"
	FieldEmail       = "email"
	FieldPickup      = "pickup"
	FieldDestination = "destination"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldServiceType = "serviceType"
	FieldPassengers  = "passengers"
	FieldNotes       = "notes"
	FieldDistance    = "distance"
	FieldDuration    = "duration"
	FieldPrice       = "price"
)

// Request is the booking payload: the fare snapshot plus the customer form.
type Request struct {
	Pickup      string  `json:"pickup"`
	Destination string  `json:"destination"`
	DistanceKm  float64 `json:"distance"`
	Duration    string  `json:"duration"`
	Price       float64 `json:"price"`
	ServiceType string  `json:"serviceType"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	Email       string  `json:"email,omitempty"`
	Passengers  int     `json:"passengers"`
	Notes       string  `json:"notes,omitempty"`
}

// ValidatedBooking is the sanitized, type-checked form of a submission.
// It is only produced when every rule passed.
type ValidatedBooking struct {
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email,omitempty"`
	Pickup      string    `json:"pickup"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	Day         time.Time `json:"-"`
	Time        string    `json:"time"`
	ServiceType string    `json:"serviceType"`
	Passengers  string    `json:"passengers"`
	Notes       string    `json:"notes,omitempty"`
	Distance    string    `json:"distance,omitempty"`
	Duration    string    `json:"duration,omitempty"`
	Price       string    `json:"price,omitempty"`
}

// HasCustomerEmail reports whether a confirmation can be sent to the customer.
func (b ValidatedBooking) HasCustomerEmail() bool {
	return b.Email != ""
}

// NewReservationID returns the timestamp-derived token handed back to the client.
// It is not a durable key.
func NewReservationID(now time.Time) int64 {
	return now.UnixMilli()
}

// FormatReservationID renders the token for logs and message subjects.
func FormatReservationID(id int64) string {
	return strconv.FormatInt(id, 10)
}
