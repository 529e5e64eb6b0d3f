package reservation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
)

const (
	minNameLength    = 2
	minAddressLength = 5
	minPassengers    = 1
	maxPassengers    = 8
	dateLayout       = "2006-01-02"
)

var (
	// French national or international number: 0, +33 or 0033, then a non-zero digit and 8 more.
	phonePattern = regexp.MustCompile(`^(?:0|\+33|0033)[1-9][0-9]{8}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	markupStripper = strings.NewReplacer("<", "", ">", "")
)

// TierSet is the subset of the rate table the validator needs.
type TierSet interface {
	Has(key string) bool
}

// Result is either a ValidatedBooking or a list of field errors, never both.
type Result struct {
	Booking *ValidatedBooking
	Errors  []FieldError
}

// Valid reports whether validation passed.
func (r Result) Valid() bool {
	return r.Booking != nil && len(r.Errors) == 0
}

// Err returns a *ValidationError when validation failed, nil otherwise.
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Fields: r.Errors}
}

// Validator checks raw booking payloads. It holds only read-only state.
type Validator struct {
	tiers TierSet
	loc   *time.Location
	now   func() time.Time
}

// NewValidator creates a Validator comparing dates in loc.
func NewValidator(tiers TierSet, loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{tiers: tiers, loc: loc, now: time.Now}
}

// WithClock returns a copy of the validator using the given clock.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	clone := *v
	clone.now = now
	return &clone
}

// Sanitize strips '<' and '>' and trims surrounding whitespace. Inner text is kept.
func Sanitize(s string) string {
	return strings.TrimSpace(markupStripper.Replace(s))
}

// Validate runs every rule against the raw payload and collects all violations.
// It never panics on malformed input.
func (v *Validator) Validate(raw map[string]any) Result {
	if raw == nil {
		raw = map[string]any{}
	}

	b := ValidatedBooking{
		Name:        Sanitize(text(raw, FieldName)),
		Phone:       Sanitize(text(raw, FieldPhone)),
		Email:       Sanitize(text(raw, FieldEmail)),
		Pickup:      Sanitize(text(raw, FieldPickup)),
		Destination: Sanitize(text(raw, FieldDestination)),
		Date:        Sanitize(text(raw, FieldDate)),
		Time:        Sanitize(text(raw, FieldTime)),
		ServiceType: strings.ToLower(Sanitize(text(raw, FieldServiceType))),
		Notes:       Sanitize(text(raw, FieldNotes)),
		Distance:    Sanitize(display(raw, FieldDistance, func(f float64) string { return fmt.Sprintf("%.1f km", f) })),
		Duration:    Sanitize(display(raw, FieldDuration, func(f float64) string { return fmt.Sprintf("%d min", int(math.Round(f))) })),
		Price:       Sanitize(display(raw, FieldPrice, func(f float64) string { return fare.FormatPrice(f, "EUR") })),
	}

	var errs []FieldError
	add := func(field, msg string) {
		errs = append(errs, FieldError{Field: field, Message: msg})
	}

	if utf8.RuneCountInString(b.Name) < minNameLength {
		add(FieldName, "Le nom doit contenir au moins 2 caractères")
	}

	switch phone := stripSpaces(b.Phone); {
	case phone == "":
		add(FieldPhone, "Le numéro de téléphone est requis")
	case !phonePattern.MatchString(phone):
		add(FieldPhone, "Numéro de téléphone invalide")
	}

	if utf8.RuneCountInString(b.Pickup) < minAddressLength {
		add(FieldPickup, "L'adresse de départ doit contenir au moins 5 caractères")
	}
	if utf8.RuneCountInString(b.Destination) < minAddressLength {
		add(FieldDestination, "L'adresse de destination doit contenir au moins 5 caractères")
	}

	if b.Date == "" {
		add(FieldDate, "La date est requise")
	} else if day, err := time.ParseInLocation(dateLayout, b.Date, v.loc); err != nil {
		add(FieldDate, "Date invalide")
	} else if day.Before(v.today()) {
		add(FieldDate, "La date ne peut pas être dans le passé")
	} else {
		b.Day = day
	}

	if b.Time == "" {
		add(FieldTime, "L'heure est requise")
	}

	if b.Email != "" && !emailPattern.MatchString(b.Email) {
		add(FieldEmail, "Adresse email invalide")
	}

	if v.tiers == nil || !v.tiers.Has(b.ServiceType) {
		add(FieldServiceType, "Type de service invalide")
	}

	if n, ok := passengers(raw[FieldPassengers]); !ok || n < minPassengers || n > maxPassengers {
		add(FieldPassengers, "Le nombre de passagers doit être compris entre 1 et 8")
	} else {
		b.Passengers = strconv.Itoa(n)
	}

	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Booking: &b}
}

func (v *Validator) today() time.Time {
	y, m, d := v.now().In(v.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, v.loc)
}

// text extracts a scalar as a string. Missing keys and non-scalar values read as "".
func text(raw map[string]any, key string) string {
	switch val := raw[key].(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// display formats numeric values with format and passes strings through.
func display(raw map[string]any, key string, format func(float64) string) string {
	switch val := raw[key].(type) {
	case float64:
		return format(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return format(f)
		}
		return val.String()
	default:
		return text(raw, key)
	}
}

func passengers(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.Trunc(val) != val || math.Abs(val) > math.MaxInt32 {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		n, err := strconv.Atoi(val.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
