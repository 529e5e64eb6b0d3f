package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
)

var (
	// ErrSuperseded is returned by a quote replaced by a newer one before completing.
	ErrSuperseded = errors.New("quote superseded by a newer request")
	// ErrInvalidTransition is matched by every TransitionError.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrEmptyAddress is returned when pickup or destination is blank.
	ErrEmptyAddress = errors.New("pickup and destination are required")
)

// TransportError is a client/server failure: no response, an unreadable one, or a 5xx.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("server returned %d: %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("request failed: %v", e.Err)
	default:
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError is a 400 from the server: the booking failed validation.
type RejectedError struct {
	Message  string
	Messages []string
	Fields   []reservation.FieldError
}

func (e *RejectedError) Error() string {
	return "booking rejected: " + strings.Join(e.Messages, "; ")
}
