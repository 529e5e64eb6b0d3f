package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vtc-premium/service-reservation/internal/application"
	"github.com/vtc-premium/service-reservation/internal/config"
	"github.com/vtc-premium/service-reservation/internal/domain/fare"
	"github.com/vtc-premium/service-reservation/internal/domain/reservation"
	"github.com/vtc-premium/service-reservation/internal/events"
	"github.com/vtc-premium/service-reservation/internal/handler"
	"github.com/vtc-premium/service-reservation/internal/logger"
	"github.com/vtc-premium/service-reservation/internal/maps"
	"github.com/vtc-premium/service-reservation/internal/metrics"
	"github.com/vtc-premium/service-reservation/internal/middleware"
	"github.com/vtc-premium/service-reservation/internal/notification"
	"github.com/vtc-premium/service-reservation/internal/repository"
)

const serviceName = "service-reservation"

// writeTimeout covers a submission waiting on both e-mails.
const writeTimeout = 45 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load("VTC")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("maps_provider", cfg.Maps.Provider),
		zap.String("notify_transport", cfg.Notify.Transport),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rates, err := loadRates(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to load rate table", zap.Error(err))
	}
	log.Info("rate table loaded", zap.Strings("tiers", rates.Keys()))

	// Redis backs the geocode cache and idempotency keys; both are optional.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, continuing without cache", zap.Error(err))
		}
		pingCancel()
	}

	// Mapping provider
	mapbox := maps.NewMapboxClient(cfg.Maps.MapboxBaseURL, cfg.Maps.MapboxToken, cfg.Maps.Timeout)
	if !mapbox.Configured() {
		log.Warn("mapbox token not configured, map proxy endpoints will fail")
	}
	var provider maps.Provider = mapbox
	if cfg.Maps.Provider == "google" {
		google, err := maps.NewGoogleClient(cfg.Maps.GoogleAPIKey)
		if err != nil {
			log.Fatal("failed to create google maps client", zap.Error(err))
		}
		provider = google
	}
	if rdb != nil && cfg.Redis.GeocodeTTL > 0 {
		provider = maps.NewCachedProvider(provider, rdb, cfg.Redis.GeocodeTTL, log)
	}
	estimator := maps.NewEstimator(provider, provider, log,
		maps.WithTimeout(cfg.Maps.Timeout),
		maps.WithFallback(cfg.Maps.Fallback),
	)

	// Notification transport
	var sender notification.Sender
	switch cfg.Notify.Transport {
	case "kafka":
		producer := events.NewProducer(cfg.Kafka.Brokers, log)
		defer func() { _ = producer.Close() }()
		sender = notification.NewKafkaSender(producer, cfg.Kafka.Topic, serviceName)
	case "none":
		sender = notification.NewLogSender(log)
	default:
		sender = notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUser,
			Password: cfg.Notify.SMTPPassword,
			Timeout:  cfg.Notify.Timeout,
		})
	}
	dispatcher := notification.NewDispatcher(sender, rates, notification.Config{
		OperatorEmail: cfg.Notify.OperatorEmail,
		SenderEmail:   cfg.Notify.SenderEmail,
		ContactPhone:  cfg.Notify.ContactPhone,
		Timeout:       cfg.Notify.Timeout,
	}, log)

	if cfg.Notify.SelfTest {
		go func() {
			if err := dispatcher.SelfTest(ctx); err != nil {
				log.Error("mail configuration self-test failed", zap.Error(err))
				return
			}
			log.Info("mail configuration self-test sent", zap.String("to", cfg.Notify.OperatorEmail))
		}()
	}

	// Initialize application services
	validator := reservation.NewValidator(rates, cfg.Location())
	reservationService := application.NewReservationService(validator, dispatcher, log)
	quoteService := application.NewQuoteService(estimator, rates, log)

	// Initialize HTTP handlers
	reservationHandler := handler.NewReservationHandler(reservationService, log)
	quoteHandler := handler.NewQuoteHandler(quoteService, log)
	mapsHandler := handler.NewMapsHandler(mapbox, cfg.Maps.MapboxToken, cfg.Maps.MapboxPublicToken, log)
	healthHandler := handler.NewHealthHandler()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register routes
	var reservationMW []gin.HandlerFunc
	if rdb != nil && cfg.Redis.IdempotencyTTL > 0 {
		reservationMW = append(reservationMW, middleware.Idempotency(rdb, cfg.Redis.IdempotencyTTL, max(cfg.Redis.IdempotencyLockTTL, writeTimeout), log))
	}
	healthHandler.RegisterRoutes(&router.RouterGroup)
	reservationHandler.RegisterRoutes(&router.RouterGroup, reservationMW...)
	quoteHandler.RegisterRoutes(&router.RouterGroup)
	mapsHandler.RegisterRoutes(&router.RouterGroup)
	router.GET("/metrics", metrics.Handler())

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}

// loadRates reads the tiers from Postgres when a DSN is configured, seeding
// the table from the configured preset on first start.
func loadRates(ctx context.Context, cfg *config.ServiceConfig, log *zap.Logger) (*fare.RateTable, error) {
	configured, err := cfg.RateTable()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDSN == "" {
		return configured, nil
	}

	db, err := repository.Connect(cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}
	if !cfg.IsProduction() {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto-migration failed: %w", err)
		}
		log.Info("database migration completed (dev auto-migrate)")
	}

	repo := repository.NewGormTierRepository(db)
	if err := repo.SeedIfEmpty(ctx, configured.Tiers()); err != nil {
		return nil, err
	}
	return repository.LoadRateTable(ctx, repo, cfg.Rates.BaseFare, cfg.Rates.Currency)
}
