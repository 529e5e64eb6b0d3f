package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/client"
	"github.com/vtc-premium/service-reservation/internal/logger"
	"github.com/vtc-premium/service-reservation/internal/maps"
)

// quote prices a trip against a running reservation server and, with
// --book, submits the booking the way the web widget does.
func main() {
	var (
		server      = pflag.String("server", "http://localhost:3000", "reservation server base URL")
		pickup      = pflag.String("pickup", "", "pickup address")
		destination = pflag.String("destination", "", "destination address")
		tier        = pflag.String("tier", "standard", "service tier key")
		book        = pflag.Bool("book", false, "submit a booking after quoting")
		date        = pflag.String("date", "", "pickup date (YYYY-MM-DD)")
		clock       = pflag.String("time", "", "pickup time (HH:MM)")
		name        = pflag.String("name", "", "customer name")
		phone       = pflag.String("phone", "", "customer phone")
		email       = pflag.String("email", "", "customer e-mail, for the confirmation")
		passengers  = pflag.Int("passengers", 1, "number of passengers")
		notes       = pflag.String("notes", "", "notes for the driver")
		contact     = pflag.String("contact", "06 12 34 56 78", "operator phone shown when booking fails")
		timeout     = pflag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
		verbose     = pflag.BoolP("verbose", "v", false, "log requests")
	)
	pflag.Parse()

	env := "production"
	if *verbose {
		env = "development"
	}
	log, err := logger.New(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, log, options{
		server: *server, pickup: *pickup, destination: *destination, tier: *tier,
		book: *book, contact: *contact, timeout: *timeout,
		form: client.BookingForm{
			Date: *date, Time: *clock, Name: *name, Phone: *phone,
			Email: *email, Passengers: *passengers, Notes: *notes,
		},
	}); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type options struct {
	server      string
	pickup      string
	destination string
	tier        string
	book        bool
	contact     string
	timeout     time.Duration
	form        client.BookingForm
}

func run(ctx context.Context, log *zap.Logger, opts options) error {
	api := client.NewAPIClient(opts.server, opts.timeout)

	rates, err := api.Tiers(ctx)
	if err != nil {
		return fmt.Errorf("fetch tiers: %w", err)
	}

	session := client.NewSession(client.SessionConfig{
		Estimator:       maps.NewEstimator(api, api, log, maps.WithTimeout(opts.timeout)),
		Reverse:         api,
		Rates:           rates,
		Submitter:       api,
		OperatorContact: opts.contact,
		Logger:          log,
	})

	q, err := session.RequestQuote(ctx, opts.pickup, opts.destination, opts.tier)
	if err != nil {
		return err
	}
	fmt.Printf("Départ       : %s\n", q.Pickup)
	fmt.Printf("Destination  : %s\n", q.Destination)
	fmt.Printf("Distance     : %s\n", q.DistanceDisplay())
	fmt.Printf("Durée        : %s\n", q.DurationDisplay())
	fmt.Printf("Service      : %s\n", rates.Describe(q.Tier.Key))
	fmt.Printf("Prix estimé  : %s\n", q.PriceDisplay())
	if q.Fallback {
		fmt.Println("(distance estimée à vol d'oiseau, itinéraire indisponible)")
	}

	if !opts.book {
		return nil
	}

	conf, err := session.Submit(ctx, opts.form)
	var rejected *client.RejectedError
	if errors.As(err, &rejected) {
		fmt.Println(rejected.Message)
		for _, fe := range session.FieldErrors() {
			fmt.Printf("  - %s\n", fe.Message)
		}
		return errors.New("booking rejected")
	}
	if conf == nil {
		return err
	}

	fmt.Println()
	if conf.ManualContactRequired {
		fmt.Println(conf.Message)
		return err
	}
	fmt.Printf("%s (n° %d)\n", conf.Message, conf.ReservationID)
	fmt.Printf("%s à %s, %s → %s, %s\n", conf.Date, conf.Time, conf.Pickup, conf.Destination, conf.Price)
	if strings.TrimSpace(opts.form.Email) != "" {
		fmt.Println("Un e-mail de confirmation vous a été envoyé.")
	}
	return nil
}
