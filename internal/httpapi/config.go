package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr           = ":8080"
	defaultAllowedOrigin        = "http://localhost:8000"
	defaultRequestTimeout       = 10 * time.Second
	defaultReserveRatePerMinute = 20
	defaultReserveBurst         = 5
	defaultAvailabilityCacheTTL = 30 * time.Second
	defaultCourseListLimit      = 100
	maxWebhookBodyBytes         = 64 << 10
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr           string
	AllowedOrigins       []string
	RequestTimeout       time.Duration
	ReserveRatePerMinute int
	ReserveBurst         int
	AvailabilityCacheTTL time.Duration
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReserveRatePerMinute == 0 {
		cfg.ReserveRatePerMinute = defaultReserveRatePerMinute
	}
	if cfg.ReserveBurst <= 0 {
		cfg.ReserveBurst = defaultReserveBurst
	}
	if cfg.AvailabilityCacheTTL <= 0 {
		cfg.AvailabilityCacheTTL = defaultAvailabilityCacheTTL
	}
	if cfg.ReserveRatePerMinute < 0 {
		return fmt.Errorf("reserve rate must not be negative")
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("wildcard origin is not allowed with credentials")
		}
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
