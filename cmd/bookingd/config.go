package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/coursebook/internal/httpapi"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "BOOKINGD"

	flagDatabaseURL          = "database-url"
	flagHTTPListenAddr       = "http-listen-addr"
	flagGRPCListenAddr       = "grpc-listen-addr"
	flagAllowedOrigins       = "allowed-origins"
	flagTxMaxAttempts        = "tx-max-attempts"
	flagCurrency             = "currency"
	flagBookingURL           = "booking-url"
	flagAMQPURL              = "amqp-url"
	flagAMQPExchange         = "amqp-exchange"
	flagRedisAddr            = "redis-addr"
	flagAvailabilityCacheTTL = "availability-cache-ttl"
	flagStripeSecretKey      = "stripe-secret-key"
	flagStripeWebhookSecret  = "stripe-webhook-secret"
	flagStripePriceID        = "stripe-subscription-price"
	flagGoogleCredentials    = "google-credentials-json"
	flagGoogleCalendarID     = "google-calendar-id"
	flagGoogleSheetID        = "google-sheet-id"
	flagCalendarSyncInterval = "calendar-sync-interval"
	flagDispatchInterval     = "dispatch-interval"
	flagDispatchBatchSize    = "dispatch-batch-size"
	flagDispatchMaxAttempts  = "dispatch-max-attempts"
	flagReserveRatePerMinute = "reserve-rate-per-minute"

	defaultDatabaseURL          = "sqlite:///tmp/coursebook.db"
	defaultHTTPListenAddr       = ":8080"
	defaultGRPCListenAddr       = ":7000"
	defaultTxMaxAttempts        = 5
	defaultCurrency             = "CHF"
	defaultAMQPExchange         = "coursebook.notifications"
	defaultAvailabilityCacheTTL = 30 * time.Second
	defaultCalendarSyncInterval = 15 * time.Minute
	defaultDispatchInterval     = 5 * time.Second
	defaultDispatchBatchSize    = 50
	defaultDispatchMaxAttempts  = 10
	defaultReserveRatePerMinute = 20
)

type runtimeConfig struct {
	DatabaseURL          string
	HTTPListenAddr       string
	GRPCListenAddr       string
	AllowedOrigins       []string
	TxMaxAttempts        int
	Currency             string
	BookingURL           string
	AMQPURL              string
	AMQPExchange         string
	RedisAddr            string
	AvailabilityCacheTTL time.Duration
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePriceID        string
	GoogleCredentials    string
	GoogleCalendarID     string
	GoogleSheetID        string
	CalendarSyncInterval time.Duration
	DispatchInterval     time.Duration
	DispatchBatchSize    int
	DispatchMaxAttempts  int
	ReserveRatePerMinute int
}

func registerPersistentFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or SQLite path")
	flags.String(flagHTTPListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	flags.String(flagGRPCListenAddr, defaultGRPCListenAddr, "gRPC listen address")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.Int(flagTxMaxAttempts, defaultTxMaxAttempts, "attempts per transaction on serialization conflicts")
	flags.String(flagCurrency, defaultCurrency, "ISO currency of all prices")
	flags.String(flagBookingURL, "", "public booking page used in waitlist links")
	flags.String(flagAMQPURL, "", "RabbitMQ URL for notifications (empty logs notifications)")
	flags.String(flagAMQPExchange, defaultAMQPExchange, "RabbitMQ topic exchange for notifications")
	flags.String(flagRedisAddr, "", "Redis address for the availability cache (empty disables caching)")
	flags.Duration(flagAvailabilityCacheTTL, defaultAvailabilityCacheTTL, "availability cache TTL")
	flags.String(flagStripeSecretKey, "", "Stripe secret key (empty disables card payments)")
	flags.String(flagStripeWebhookSecret, "", "Stripe webhook signing secret")
	flags.String(flagStripePriceID, "", "Stripe recurring price id billed for subscription purchases")
	flags.String(flagGoogleCredentials, "", "Google service account credentials JSON")
	flags.String(flagGoogleCalendarID, "", "Google Calendar id holding the course schedule")
	flags.String(flagGoogleSheetID, "", "Google Sheets id receiving reservation rows")
	flags.Duration(flagCalendarSyncInterval, defaultCalendarSyncInterval, "calendar sync period while serving (0 disables)")
	flags.Duration(flagDispatchInterval, defaultDispatchInterval, "outbox poll interval")
	flags.Int(flagDispatchBatchSize, defaultDispatchBatchSize, "outbox messages claimed per poll")
	flags.Int(flagDispatchMaxAttempts, defaultDispatchMaxAttempts, "delivery attempts before an outbox message fails")
	flags.Int(flagReserveRatePerMinute, defaultReserveRatePerMinute, "reservation requests per client per minute")
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Root().PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.HTTPListenAddr = strings.TrimSpace(v.GetString(flagHTTPListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.TxMaxAttempts = v.GetInt(flagTxMaxAttempts)
	cfg.Currency = strings.ToUpper(strings.TrimSpace(v.GetString(flagCurrency)))
	cfg.BookingURL = strings.TrimSpace(v.GetString(flagBookingURL))
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.AvailabilityCacheTTL = v.GetDuration(flagAvailabilityCacheTTL)
	cfg.StripeSecretKey = strings.TrimSpace(v.GetString(flagStripeSecretKey))
	cfg.StripeWebhookSecret = strings.TrimSpace(v.GetString(flagStripeWebhookSecret))
	cfg.StripePriceID = strings.TrimSpace(v.GetString(flagStripePriceID))
	cfg.GoogleCredentials = v.GetString(flagGoogleCredentials)
	cfg.GoogleCalendarID = strings.TrimSpace(v.GetString(flagGoogleCalendarID))
	cfg.GoogleSheetID = strings.TrimSpace(v.GetString(flagGoogleSheetID))
	cfg.CalendarSyncInterval = v.GetDuration(flagCalendarSyncInterval)
	cfg.DispatchInterval = v.GetDuration(flagDispatchInterval)
	cfg.DispatchBatchSize = v.GetInt(flagDispatchBatchSize)
	cfg.DispatchMaxAttempts = v.GetInt(flagDispatchMaxAttempts)
	cfg.ReserveRatePerMinute = v.GetInt(flagReserveRatePerMinute)

	return cfg.Validate()
}

// Validate rejects settings that cannot be served.
func (cfg *runtimeConfig) Validate() error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%s is required", flagDatabaseURL)
	}
	if cfg.TxMaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", flagTxMaxAttempts)
	}
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("%s must be a three letter code: %q", flagCurrency, cfg.Currency)
	}
	if cfg.AMQPURL != "" && cfg.AMQPExchange == "" {
		return fmt.Errorf("%s is required with %s", flagAMQPExchange, flagAMQPURL)
	}
	if cfg.StripeWebhookSecret != "" && cfg.StripeSecretKey == "" {
		return fmt.Errorf("%s requires %s", flagStripeWebhookSecret, flagStripeSecretKey)
	}
	if cfg.StripePriceID != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("%s requires %s", flagStripePriceID, flagStripeWebhookSecret)
	}
	if (cfg.GoogleCalendarID != "" || cfg.GoogleSheetID != "") && strings.TrimSpace(cfg.GoogleCredentials) == "" {
		return fmt.Errorf("%s is required for Google Calendar or Sheets", flagGoogleCredentials)
	}
	if cfg.CalendarSyncInterval < 0 {
		return fmt.Errorf("%s must not be negative", flagCalendarSyncInterval)
	}
	if cfg.ReserveRatePerMinute < 0 {
		return fmt.Errorf("%s must not be negative", flagReserveRatePerMinute)
	}
	return nil
}

func (cfg *runtimeConfig) httpConfig() httpapi.Config {
	return httpapi.Config{
		ListenAddr:           cfg.HTTPListenAddr,
		AllowedOrigins:       cfg.AllowedOrigins,
		ReserveRatePerMinute: cfg.ReserveRatePerMinute,
		AvailabilityCacheTTL: cfg.AvailabilityCacheTTL,
	}
}
