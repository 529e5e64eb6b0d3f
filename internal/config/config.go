package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
)

// MapsConfig selects and configures the geocoding/routing provider.
type MapsConfig struct {
	Provider          string `validate:"oneof=mapbox google"`
	MapboxToken       string
	MapboxPublicToken string
	MapboxBaseURL     string        `validate:"omitempty,url"`
	GoogleAPIKey      string        `validate:"required_if=Provider google"`
	Timeout           time.Duration `validate:"gt=0"`
	Fallback          bool
}

// NotifyConfig configures reservation e-mails.
type NotifyConfig struct {
	Transport     string `validate:"oneof=smtp kafka none"`
	SMTPHost      string `validate:"required_if=Transport smtp"`
	SMTPPort      int    `validate:"gte=0,lte=65535"`
	SMTPUser      string
	SMTPPassword  string
	OperatorEmail string `validate:"omitempty,email"`
	SenderEmail   string `validate:"omitempty,email"`
	ContactPhone  string
	Timeout       time.Duration `validate:"gt=0"`
	SelfTest      bool
}

// KafkaConfig configures the notification topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string `validate:"required"`
	GroupID string `validate:"required"`
}

// RedisConfig configures the geocode cache and idempotency store. An empty
// address disables both.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	GeocodeTTL     time.Duration `validate:"gte=0"`
	IdempotencyTTL time.Duration `validate:"gte=0"`
	// IdempotencyLockTTL must exceed the longest reservation request.
	IdempotencyLockTTL time.Duration `validate:"gt=0"`
}

// RatesConfig describes the rate table when it is not loaded from the database.
type RatesConfig struct {
	Preset   string  `validate:"oneof=three-tier two-tier"`
	BaseFare float64 `validate:"gte=0"`
	Currency string  `validate:"required,len=3"`
	Tiers    string
}

// ServiceConfig holds all configuration for the reservation service.
type ServiceConfig struct {
	Port           string `validate:"required"`
	AppEnv         string `validate:"oneof=development staging production test"`
	Timezone       string `validate:"required"`
	AllowedOrigins []string
	DatabaseDSN    string
	Maps           MapsConfig
	Notify         NotifyConfig
	Kafka          KafkaConfig
	Redis          RedisConfig
	Rates          RatesConfig

	location *time.Location
}

// legacyEnv maps configuration keys to the unprefixed variable names of the
// first deployment, still honored after the prefixed form.
var legacyEnv = map[string][]string{
	"port":                  {"PORT"},
	"maps.mapbox_token":     {"MAPBOX_TOKEN"},
	"notify.smtp_password":  {"SENDGRID_PASS"},
	"notify.operator_email": {"VTC_EMAIL"},
	"notify.sender_email":   {"EMAIL_USER"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("timezone", "Europe/Paris")
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("maps.provider", "mapbox")
	v.SetDefault("maps.timeout", "5s")
	v.SetDefault("maps.fallback", true)
	v.SetDefault("notify.transport", "smtp")
	v.SetDefault("notify.smtp_host", "smtp.sendgrid.net")
	v.SetDefault("notify.smtp_port", 587)
	v.SetDefault("notify.smtp_user", "apikey")
	v.SetDefault("notify.contact_phone", "06 12 34 56 78")
	v.SetDefault("notify.timeout", "8s")
	v.SetDefault("notify.self_test", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "reservation.notifications")
	v.SetDefault("kafka.group_id", "vtc-mailer")
	v.SetDefault("redis.geocode_ttl", "24h")
	v.SetDefault("redis.idempotency_ttl", "24h")
	v.SetDefault("redis.idempotency_lock_ttl", "60s")
	v.SetDefault("rates.preset", "three-tier")
	v.SetDefault("rates.base_fare", 5.0)
	v.SetDefault("rates.currency", "EUR")
}

var allKeys = []string{
	"port", "app_env", "timezone", "allowed_origins", "database_dsn",
	"maps.provider", "maps.mapbox_token", "maps.mapbox_public_token", "maps.mapbox_base_url",
	"maps.google_api_key", "maps.timeout", "maps.fallback",
	"notify.transport", "notify.smtp_host", "notify.smtp_port", "notify.smtp_user",
	"notify.smtp_password", "notify.operator_email", "notify.sender_email", "notify.contact_phone", "notify.timeout", "notify.self_test",
	"kafka.brokers", "kafka.topic", "kafka.group_id",
	"redis.addr", "redis.password", "redis.db", "redis.geocode_ttl", "redis.idempotency_ttl", "redis.idempotency_lock_ttl",
	"rates.preset", "rates.base_fare", "rates.currency", "rates.tiers",
}

// Load reads configuration from environment variables prefixed with prefix
// (e.g. VTC_MAPS_PROVIDER), falling back to legacy unprefixed names.
func Load(prefix string) (*ServiceConfig, error) {
	v := viper.New()
	setDefaults(v)

	for _, key := range allKeys {
		names := []string{envName(prefix, key)}
		names = append(names, legacyEnv[key]...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &ServiceConfig{
		Port:           normalizePort(v.GetString("port")),
		AppEnv:         v.GetString("app_env"),
		Timezone:       v.GetString("timezone"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		DatabaseDSN:    v.GetString("database_dsn"),
		Maps: MapsConfig{
			Provider:          strings.ToLower(v.GetString("maps.provider")),
			MapboxToken:       v.GetString("maps.mapbox_token"),
			MapboxPublicToken: v.GetString("maps.mapbox_public_token"),
			MapboxBaseURL:     v.GetString("maps.mapbox_base_url"),
			GoogleAPIKey:      v.GetString("maps.google_api_key"),
			Timeout:           v.GetDuration("maps.timeout"),
			Fallback:          v.GetBool("maps.fallback"),
		},
		Notify: NotifyConfig{
			Transport:     strings.ToLower(v.GetString("notify.transport")),
			SMTPHost:      v.GetString("notify.smtp_host"),
			SMTPPort:      v.GetInt("notify.smtp_port"),
			SMTPUser:      v.GetString("notify.smtp_user"),
			SMTPPassword:  v.GetString("notify.smtp_password"),
			OperatorEmail: v.GetString("notify.operator_email"),
			SenderEmail:   v.GetString("notify.sender_email"),
			ContactPhone:  v.GetString("notify.contact_phone"),
			Timeout:       v.GetDuration("notify.timeout"),
			SelfTest:      v.GetBool("notify.self_test"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
			GroupID: v.GetString("kafka.group_id"),
		},
		Redis: RedisConfig{
			Addr:               v.GetString("redis.addr"),
			Password:           v.GetString("redis.password"),
			DB:                 v.GetInt("redis.db"),
			GeocodeTTL:         v.GetDuration("redis.geocode_ttl"),
			IdempotencyTTL:     v.GetDuration("redis.idempotency_ttl"),
			IdempotencyLockTTL: v.GetDuration("redis.idempotency_lock_ttl"),
		},
		Rates: RatesConfig{
			Preset:   strings.ToLower(v.GetString("rates.preset")),
			BaseFare: v.GetFloat64("rates.base_fare"),
			Currency: strings.ToUpper(v.GetString("rates.currency")),
			Tiers:    v.GetString("rates.tiers"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and resolves the timezone.
func (c *ServiceConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	if _, err := c.RateTable(); err != nil {
		return err
	}
	return nil
}

// Location returns the timezone used for date validation.
func (c *ServiceConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// IsProduction reports whether the service runs in production.
func (c *ServiceConfig) IsProduction() bool {
	return c.AppEnv == "production"
}

// RateTable builds the configured rate table. Explicit tiers, given as
// "key:Label:perKm" entries separated by commas, take precedence over the preset.
func (c *ServiceConfig) RateTable() (*fare.RateTable, error) {
	if strings.TrimSpace(c.Rates.Tiers) == "" {
		var preset *fare.RateTable
		if c.Rates.Preset == "two-tier" {
			preset = fare.TwoTierRateTable()
		} else {
			preset = fare.DefaultRateTable()
		}
		return fare.NewRateTable(c.Rates.BaseFare, c.Rates.Currency, preset.Tiers()...)
	}

	tiers, err := ParseTiers(c.Rates.Tiers)
	if err != nil {
		return nil, err
	}
	return fare.NewRateTable(c.Rates.BaseFare, c.Rates.Currency, tiers...)
}

// ParseTiers parses "standard:Standard:1.50,premium:Premium:2.00".
func ParseTiers(s string) ([]fare.ServiceTier, error) {
	var tiers []fare.ServiceTier
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid tier %q: want key:label:perKm", entry)
		}
		perKm, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tier %q: %w", entry, err)
		}
		tiers = append(tiers, fare.ServiceTier{
			Key:   strings.TrimSpace(parts[0]),
			Label: strings.TrimSpace(parts[1]),
			PerKm: perKm,
		})
	}
	return tiers, nil
}

func envName(prefix, key string) string {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if prefix == "" {
		return name
	}
	return strings.ToUpper(prefix) + "_" + name
}

func normalizePort(p string) string {
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
